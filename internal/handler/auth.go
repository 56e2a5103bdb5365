package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/middleware"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/store"
	"github.com/dukerupert/shoplist/internal/validation"
)

type AuthHandler struct {
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	sessionTTL   time.Duration
	validator    *validation.Validator
	logger       *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, sessionTTL time.Duration, v *validation.Validator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		sessionStore: ss,
		sessionTTL:   sessionTTL,
		validator:    v,
		logger:       logger.With("component", "auth"),
	}
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeValid(w, r, h.validator, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	user, err := h.userStore.Create(r.Context(), req.Username, hash, model.RoleUser)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.logger.Info("user registered", "user_id", user.ID, "username", user.Username)

	if err := h.startSession(w, r, user); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	invalid := apperr.Unauthorized("invalid username or password")
	user, err := h.userStore.GetByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		auth.CheckDummyPassword(req.Password)
		writeError(w, h.logger, r, invalid)
		return
	}
	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if !ok {
		h.logger.Warn("failed login", "username", req.Username, "remote", middleware.RealIP(r))
		writeError(w, h.logger, r, invalid)
		return
	}

	if err := h.startSession(w, r, user); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(r.Context(), ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	user, err := h.userStore.GetByID(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, apperr.NotFoundf("user %d not found", id.UserID))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *model.User) error {
	sess, err := h.sessionStore.Create(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
	return nil
}
