package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/store"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "shoplist_session"

// RequireAuth validates the session cookie and populates AuthContext.
// Requests without a live session get a 401 JSON response.
func RequireAuth(sessionStore *store.SessionStore, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			user, err := userStore.GetByID(r.Context(), sess.UserID)
			if err != nil || user == nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			ac := auth.AuthContext{
				Identity: auth.Identity{
					UserID:   user.ID,
					UserName: user.Username,
					Role:     user.Role,
				},
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
