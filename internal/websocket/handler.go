package websocket

import (
	"log"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and runs them as Hub clients. The user_id query parameter pins
// the connection to one user's notification stream.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, "user_id is required", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Clients connect from arbitrary app origins
		})
		if err != nil {
			log.Printf("websocket: accept: %v", err)
			return
		}

		client := NewClient(hub, conn, userID)
		client.Run(r.Context())
	}
}
