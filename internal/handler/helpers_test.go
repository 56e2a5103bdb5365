package handler

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/catalog"
	"github.com/dukerupert/shoplist/internal/database"
	"github.com/dukerupert/shoplist/internal/metrics"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/propagation"
	"github.com/dukerupert/shoplist/internal/shopping"
	"github.com/dukerupert/shoplist/internal/validation"
	"github.com/dukerupert/shoplist/internal/websocket"
)

var (
	admin = auth.Identity{UserID: 1, UserName: "admin", Role: model.RoleAdmin}
	alice = auth.Identity{UserID: 2, UserName: "alice", Role: model.RoleUser}
	bob   = auth.Identity{UserID: 3, UserName: "bob", Role: model.RoleUser}
)

type testEnv struct {
	db  *sql.DB
	mux *http.ServeMux
}

// newTestEnv wires the catalog and list handlers to an in-memory database.
// Identity is injected per request instead of going through sessions.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	hub := websocket.NewHub(logger)
	v := validation.New()
	policy := auth.RolePolicy{}

	catalogH := NewCatalogHandler(catalog.NewService(db, propagation.NewEngine(m, logger), policy, hub, m, 3, logger), v, logger)
	listH := NewListHandler(shopping.NewService(db, policy, hub, m, 3, logger), v, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/categories", catalogH.ListCategories)
	mux.HandleFunc("POST /api/categories", catalogH.CreateCategory)
	mux.HandleFunc("GET /api/categories/suggest", catalogH.SuggestCategory)
	mux.HandleFunc("GET /api/categories/{id}", catalogH.GetCategory)
	mux.HandleFunc("PUT /api/categories/{id}", catalogH.UpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", catalogH.DeleteCategory)
	mux.HandleFunc("GET /api/products", catalogH.ListProducts)
	mux.HandleFunc("POST /api/products", catalogH.CreateProduct)
	mux.HandleFunc("GET /api/products/{id}", catalogH.GetProduct)
	mux.HandleFunc("PUT /api/products/{id}", catalogH.UpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", catalogH.DeleteProduct)
	mux.HandleFunc("POST /api/products/{id}/move", catalogH.MoveProduct)
	mux.HandleFunc("GET /api/lists", listH.List)
	mux.HandleFunc("POST /api/lists", listH.Create)
	mux.HandleFunc("POST /api/lists/import", listH.Import)
	mux.HandleFunc("GET /api/lists/{id}", listH.Get)
	mux.HandleFunc("PUT /api/lists/{id}", listH.Rename)
	mux.HandleFunc("DELETE /api/lists/{id}", listH.Delete)
	mux.HandleFunc("GET /api/lists/{id}/legacy", listH.Export)
	mux.HandleFunc("POST /api/lists/{id}/items", listH.AddItem)
	mux.HandleFunc("DELETE /api/lists/{id}/items", listH.RemoveItem)
	mux.HandleFunc("PUT /api/lists/{id}/items/acquired", listH.SetAcquired)

	return &testEnv{db: db, mux: mux}
}

func (e *testEnv) do(who auth.Identity, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{Identity: who}))
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createCategory(t *testing.T, name string) model.Category {
	t.Helper()
	rec := e.do(admin, "POST", "/api/categories", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[model.Category](t, rec)
}

func (e *testEnv) createProduct(t *testing.T, name string, categoryID int64) model.Product {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"name": name, "category_id": categoryID})
	rec := e.do(admin, "POST", "/api/products", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[model.Product](t, rec)
}

func (e *testEnv) createList(t *testing.T, who auth.Identity, name string, productIDs ...int64) model.ShoppingList {
	t.Helper()
	if productIDs == nil {
		productIDs = []int64{}
	}
	body, _ := json.Marshal(map[string]any{"name": name, "product_ids": productIDs})
	rec := e.do(who, "POST", "/api/lists", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[model.ShoppingList](t, rec)
}
