package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/catalog"
	"github.com/dukerupert/shoplist/internal/handler"
	"github.com/dukerupert/shoplist/internal/metrics"
	"github.com/dukerupert/shoplist/internal/middleware"
	"github.com/dukerupert/shoplist/internal/propagation"
	"github.com/dukerupert/shoplist/internal/shopping"
	"github.com/dukerupert/shoplist/internal/store"
	"github.com/dukerupert/shoplist/internal/validation"
	ws "github.com/dukerupert/shoplist/internal/websocket"
)

// Options carries the tunables the server takes from configuration.
type Options struct {
	SessionTTL    time.Duration
	RetryAttempts uint64
	LoginRate     int
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	authH        *handler.AuthHandler
	catalogH     *handler.CatalogHandler
	listH        *handler.ListHandler
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	v := validation.New()
	policy := auth.RolePolicy{}

	engine := propagation.NewEngine(m, logger)
	catalogSvc := catalog.NewService(db, engine, policy, hub, m, opts.RetryAttempts, logger)
	listSvc := shopping.NewService(db, policy, hub, m, opts.RetryAttempts, logger)

	return &Server{
		db:           db,
		hub:          hub,
		registry:     registry,
		metrics:      m,
		authH:        handler.NewAuthHandler(userStore, sessionStore, opts.SessionTTL, v, logger),
		catalogH:     handler.NewCatalogHandler(catalogSvc, v, logger),
		listH:        handler.NewListHandler(listSvc, v, logger),
		sessionStore: sessionStore,
		userStore:    userStore,
		rateLimiter:  middleware.NewRateLimiter(opts.LoginRate),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("POST /login", s.rateLimited(s.authH.Login))
	outerMux.Handle("POST /register", s.rateLimited(s.authH.Register))

	// Protected routes, wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Catalog
	mux.HandleFunc("GET /api/categories", s.catalogH.ListCategories)
	mux.HandleFunc("POST /api/categories", s.catalogH.CreateCategory)
	mux.HandleFunc("GET /api/categories/suggest", s.catalogH.SuggestCategory)
	mux.HandleFunc("GET /api/categories/{id}", s.catalogH.GetCategory)
	mux.HandleFunc("PUT /api/categories/{id}", s.catalogH.UpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.catalogH.DeleteCategory)

	mux.HandleFunc("GET /api/products", s.catalogH.ListProducts)
	mux.HandleFunc("POST /api/products", s.catalogH.CreateProduct)
	mux.HandleFunc("GET /api/products/{id}", s.catalogH.GetProduct)
	mux.HandleFunc("PUT /api/products/{id}", s.catalogH.UpdateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", s.catalogH.DeleteProduct)
	mux.HandleFunc("POST /api/products/{id}/move", s.catalogH.MoveProduct)

	// Shopping lists
	mux.HandleFunc("GET /api/lists", s.listH.List)
	mux.HandleFunc("POST /api/lists", s.listH.Create)
	mux.HandleFunc("POST /api/lists/import", s.listH.Import)
	mux.HandleFunc("GET /api/lists/{id}", s.listH.Get)
	mux.HandleFunc("PUT /api/lists/{id}", s.listH.Rename)
	mux.HandleFunc("DELETE /api/lists/{id}", s.listH.Delete)
	mux.HandleFunc("GET /api/lists/{id}/legacy", s.listH.Export)
	mux.HandleFunc("POST /api/lists/{id}/items", s.listH.AddItem)
	mux.HandleFunc("DELETE /api/lists/{id}/items", s.listH.RemoveItem)
	mux.HandleFunc("PUT /api/lists/{id}/items/acquired", s.listH.SetAcquired)

	// Change feed
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	// Admin
	mux.Handle("GET /metrics", middleware.RequireAdmin(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}
