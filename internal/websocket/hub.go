package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Message is a change notification pushed to feed clients.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub maintains the set of active clients. Catalog events go to every
// client; shopping list events only to the clients of the list owner.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	h.deliver(msg, func(*Client) bool { return true })
}

// SendToUser sends a message to the clients opened by userName, compared
// without regard to case.
func (h *Hub) SendToUser(userName string, msg Message) {
	h.deliver(msg, func(c *Client) bool { return strings.EqualFold(c.userName, userName) })
}

func (h *Hub) deliver(msg Message, match func(*Client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal message", "error", err, "type", msg.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow client; drop rather than block the writer.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
