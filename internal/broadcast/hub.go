// Package broadcast implements the push channel that relays engine log
// lines and alerts to connected dashboard clients over WebSocket.
package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"pomon/internal/utils"
)

// Message is the wire record pushed to clients. The field names match what
// the dashboard expects.
type Message struct {
	Kind    string `json:"type"`
	Message string `json:"message"`
}

// Hub tracks connected WebSocket clients and fans records out to them. The
// engine is a pure producer: publishing with zero clients connected is a
// no-op, never an error.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Register adds a client and sends it the connection greeting.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.send(conn, Message{Kind: "system", Message: "Connection to backend established."})
	utils.Log.Debug("WebSocket client connected")
}

// Unregister drops a client. The connection is closed by the caller.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	utils.Log.Debug("WebSocket client disconnected")
}

// Publish pushes one record to every connected client. Clients that fail to
// take the write are pruned on the spot.
func (h *Hub) Publish(kind, message string) {
	data, err := json.Marshal(Message{Kind: kind, Message: message})
	if err != nil {
		utils.Log.Warnf("Could not marshal broadcast message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.Log.Warnf("Dropping broken WebSocket client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) send(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[conn] {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		delete(h.clients, conn)
	}
}
