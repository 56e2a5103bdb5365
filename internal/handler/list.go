package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/shopping"
	"github.com/dukerupert/shoplist/internal/validation"
)

type ListHandler struct {
	svc       *shopping.Service
	validator *validation.Validator
	logger    *slog.Logger
}

func NewListHandler(svc *shopping.Service, v *validation.Validator, logger *slog.Logger) *ListHandler {
	return &ListHandler{svc: svc, validator: v, logger: logger.With("component", "list_handler")}
}

type createListRequest struct {
	Name       string  `json:"name" validate:"required,max=100"`
	ProductIDs []int64 `json:"product_ids" validate:"max=500,dive,gt=0"`
}

type importListRequest struct {
	Name  string   `json:"name" validate:"required,max=100"`
	Items []string `json:"items" validate:"max=500,dive,max=100"`
}

type renameListRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type itemRequest struct {
	Name string `json:"name" validate:"required,max=100,itemname"`
}

type acquiredRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Acquired bool   `json:"acquired"`
}

type legacyListResponse struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func writeList(w http.ResponseWriter, status int, l *model.ShoppingList) {
	if l.Items == nil {
		l.Items = []model.Item{}
	}
	writeJSON(w, status, l)
}

func (h *ListHandler) List(w http.ResponseWriter, r *http.Request) {
	lists, err := h.svc.ListMine(r.Context(), auth.IdentityFrom(r.Context()))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if lists == nil {
		lists = []model.ShoppingList{}
	}
	for i := range lists {
		if lists[i].Items == nil {
			lists[i].Items = []model.Item{}
		}
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *ListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	l, err := h.svc.Create(r.Context(), auth.IdentityFrom(r.Context()), req.Name, req.ProductIDs)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusCreated, l)
}

// Import creates a list from items in the legacy string form.
func (h *ListHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importListRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	l, err := h.svc.Import(r.Context(), auth.IdentityFrom(r.Context()), req.Name, req.Items)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusCreated, l)
}

func (h *ListHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	l, err := h.svc.Get(r.Context(), auth.IdentityFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

// Export returns the list items in the legacy string form.
func (h *ListHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	l, items, err := h.svc.Export(r.Context(), auth.IdentityFrom(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, legacyListResponse{ID: l.ID, Name: l.Name, Items: items})
}

func (h *ListHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	var req renameListRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	l, err := h.svc.Rename(r.Context(), auth.IdentityFrom(r.Context()), id, req.Name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

func (h *ListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	if err := h.svc.Delete(r.Context(), auth.IdentityFrom(r.Context()), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	var req itemRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	l, err := h.svc.AddItem(r.Context(), auth.IdentityFrom(r.Context()), id, req.Name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

// RemoveItem takes the item name from the "name" query parameter.
func (h *ListHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, h.logger, r, apperr.Validationf("name query parameter is required"))
		return
	}
	l, err := h.svc.RemoveItem(r.Context(), auth.IdentityFrom(r.Context()), id, name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}

func (h *ListHandler) SetAcquired(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, r, badID())
		return
	}
	var req acquiredRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	l, err := h.svc.SetAcquired(r.Context(), auth.IdentityFrom(r.Context()), id, req.Name, req.Acquired)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeList(w, http.StatusOK, l)
}
