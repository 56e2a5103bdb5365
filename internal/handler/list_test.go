package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/model"
)

func TestCreateList(t *testing.T) {
	env := newTestEnv(t)
	c := env.createCategory(t, "Dairy")
	milk := env.createProduct(t, "Milk", c.ID)
	cheese := env.createProduct(t, "Cheese", c.ID)

	list := env.createList(t, alice, "Weekly", cheese.ID, 999, milk.ID, cheese.ID)
	assert.Equal(t, "alice", list.OwnerUserName)
	assert.Equal(t, []model.Item{{ProductName: "Cheese"}, {ProductName: "Milk"}}, list.Items)
}

func TestCreateEmptyListReturnsEmptyItems(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(alice, "POST", "/api/lists", `{"name":"Empty","product_ids":[]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	raw := decodeBody[map[string]any](t, rec)
	assert.Equal(t, []any{}, raw["items"])
}

func TestListMine(t *testing.T) {
	env := newTestEnv(t)
	env.createList(t, alice, "Weekly")
	env.createList(t, alice, "Party")
	env.createList(t, bob, "Camping")

	rec := env.do(alice, "GET", "/api/lists", "")
	require.Equal(t, http.StatusOK, rec.Code)
	lists := decodeBody[[]model.ShoppingList](t, rec)
	require.Len(t, lists, 2)
	for _, l := range lists {
		assert.Equal(t, "alice", l.OwnerUserName)
	}

	rec = env.do(admin, "GET", "/api/lists", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestItemLifecycle(t *testing.T) {
	env := newTestEnv(t)
	list := env.createList(t, alice, "Weekly")
	base := fmt.Sprintf("/api/lists/%d", list.ID)

	rec := env.do(alice, "POST", base+"/items", `{"name":"Milk"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(alice, "POST", base+"/items", `{"name":"Bread"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Adding an existing name is a no-op.
	rec = env.do(alice, "POST", base+"/items", `{"name":"Milk"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[model.ShoppingList](t, rec).Items, 2)

	rec = env.do(alice, "PUT", base+"/items/acquired", `{"name":"Milk","acquired":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.Item{
		{ProductName: "Milk", Acquired: true},
		{ProductName: "Bread"},
	}, decodeBody[model.ShoppingList](t, rec).Items)

	rec = env.do(alice, "GET", base+"/legacy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"id":%d,"name":"Weekly","items":["__ACQUIRED__Milk","Bread"]}`, list.ID), rec.Body.String())

	rec = env.do(alice, "DELETE", base+"/items?name=Milk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.Item{{ProductName: "Bread"}}, decodeBody[model.ShoppingList](t, rec).Items)

	rec = env.do(alice, "DELETE", base+"/items", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddItemRejectsReservedPrefix(t *testing.T) {
	env := newTestEnv(t)
	list := env.createList(t, alice, "Weekly")

	rec := env.do(alice, "POST", fmt.Sprintf("/api/lists/%d/items", list.ID), `{"name":"__ACQUIRED__Milk"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOwnershipGate(t *testing.T) {
	env := newTestEnv(t)
	list := env.createList(t, alice, "Weekly")
	base := fmt.Sprintf("/api/lists/%d", list.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"get", "GET", base, ""},
		{"export", "GET", base + "/legacy", ""},
		{"rename", "PUT", base, `{"name":"Mine now"}`},
		{"add item", "POST", base + "/items", `{"name":"Milk"}`},
		{"remove item", "DELETE", base + "/items?name=Milk", ""},
		{"set acquired", "PUT", base + "/items/acquired", `{"name":"Milk","acquired":true}`},
		{"delete", "DELETE", base, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, who := range []auth.Identity{bob, admin} {
				rec := env.do(who, tt.method, tt.path, tt.body)
				assert.Equal(t, http.StatusForbidden, rec.Code, who.UserName)
			}
		})
	}

	rec := env.do(alice, "GET", base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[model.ShoppingList](t, rec)
	assert.Equal(t, "Weekly", got.Name)
	assert.Empty(t, got.Items)
}

func TestListNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(alice, "GET", "/api/lists/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperr.CodeNotFound, decodeBody[errorResponse](t, rec).Code)

	rec = env.do(alice, "GET", "/api/lists/nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenameAndDeleteList(t *testing.T) {
	env := newTestEnv(t)
	list := env.createList(t, alice, "Weekly")
	base := fmt.Sprintf("/api/lists/%d", list.ID)
	env.do(alice, "POST", base+"/items", `{"name":"Milk"}`)

	rec := env.do(alice, "PUT", base, `{"name":"Monthly"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[model.ShoppingList](t, rec)
	assert.Equal(t, "Monthly", got.Name)
	assert.Equal(t, []model.Item{{ProductName: "Milk"}}, got.Items)

	rec = env.do(alice, "DELETE", base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(alice, "GET", base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportList(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(alice, "POST", "/api/lists/import", `{"name":"Old","items":["__ACQUIRED__Milk","Bread","Milk"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decodeBody[model.ShoppingList](t, rec)
	assert.Equal(t, []model.Item{
		{ProductName: "Milk", Acquired: true},
		{ProductName: "Bread"},
	}, got.Items)

	rec = env.do(alice, "POST", "/api/lists/import", `{"name":"Bad","items":["__ACQUIRED__"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportListCapsItemLength(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("x", 101)

	rec := env.do(alice, "POST", "/api/lists/import", `{"name":"Old","items":["Milk","`+long+`"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeValidation, decodeBody[errorResponse](t, rec).Code)

	// AddItem refuses the same name.
	list := env.createList(t, alice, "Weekly")
	rec = env.do(alice, "POST", fmt.Sprintf("/api/lists/%d/items", list.ID), `{"name":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(alice, "POST", "/api/lists/import", `{"name":"Old","items":["`+strings.Repeat("x", 100)+`"]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
