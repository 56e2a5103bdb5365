package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/shoplist/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and runs it as a hub
// client for the calling user. It must sit behind the auth middleware.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userName := auth.UserName(r.Context())
		if userName == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept", "error", err, "user", userName)
			return
		}

		client := NewClient(hub, conn, userName)
		client.Run(r.Context())
	}
}
