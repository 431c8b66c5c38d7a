// Package websocket pushes schedule-change notifications to connected
// clients so open calendars refresh when a task, meeting, or re-plan lands.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is one schedule-change notification.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	UserID int64          `json:"user_id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, userID, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		UserID: userID,
		Extra:  extra,
	}
}

// Hub maintains the set of active WebSocket clients and routes notifications.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
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

// Notify sends a message to every connection owned by the given user.
// Schedule changes are private; other users' calendars never see them.
func (h *Hub) Notify(userID int64, msg Message) {
	h.send(msg, func(c *Client) bool { return c.userID == userID })
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	h.send(msg, func(*Client) bool { return true })
}

func (h *Hub) send(msg Message, match func(*Client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal notification", "error", err)
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
			// Client buffer full; drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
