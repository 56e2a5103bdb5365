package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/catalog"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/validation"
)

type CatalogHandler struct {
	svc       *catalog.Service
	validator *validation.Validator
	logger    *slog.Logger
}

func NewCatalogHandler(svc *catalog.Service, v *validation.Validator, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, validator: v, logger: logger.With("component", "catalog_handler")}
}

type categoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type productRequest struct {
	Name       string `json:"name" validate:"required,max=100,itemname"`
	CategoryID *int64 `json:"category_id,omitempty" validate:"omitempty,gt=0"`
}

type moveProductRequest struct {
	CategoryID int64 `json:"category_id" validate:"required,gt=0"`
}

// --- Categories ---

func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if categories == nil {
		categories = []model.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	detail, err := h.svc.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if detail.Products == nil {
		detail.Products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.svc.CreateCategory(r.Context(), auth.IdentityFrom(r.Context()), req.Name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	var req categoryRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	c, err := h.svc.RenameCategory(r.Context(), auth.IdentityFrom(r.Context()), id, req.Name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	removed, err := h.svc.DeleteCategory(r.Context(), auth.IdentityFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed_products": removed})
}

// --- Products ---

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	p, err := h.svc.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), auth.IdentityFrom(r.Context()), catalog.ProductInput{
		Name:       req.Name,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	var req productRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.svc.UpdateProduct(r.Context(), auth.IdentityFrom(r.Context()), id, catalog.ProductInput{
		Name:       req.Name,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) MoveProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	var req moveProductRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.svc.MoveProduct(r.Context(), auth.IdentityFrom(r.Context()), id, req.CategoryID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	name, err := h.svc.DeleteProduct(r.Context(), auth.IdentityFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed_product": name})
}

// SuggestCategory answers GET /api/categories/suggest?name=. The category
// is null when nothing matches.
func (h *CatalogHandler) SuggestCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, h.logger, r, apperr.Validationf("name query parameter is required"))
		return
	}
	c, err := h.svc.SuggestCategory(r.Context(), name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "category": c})
}
