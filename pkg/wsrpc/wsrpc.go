// Package wsrpc fans pkg/sessionmanager notifications out to WebSocket
// clients as JSON-RPC 2.0 notification objects, grounded on the teacher's
// a2a/server.go streaming handler (gorilla/websocket upgrade, one
// goroutine per connection writing JSON frames) adapted from one
// task-scoped stream to a shared broadcast hub.
package wsrpc

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	aiwlog "github.com/aiwhisperer/core/pkg/logger"
	"github.com/aiwhisperer/core/pkg/sessionmanager"
)

// Notification is the JSON-RPC 2.0 notification envelope written to every
// connected client.
type Notification struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

// Hub broadcasts session manager notifications to every connected
// WebSocket client. The zero value is not usable; construct with New.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Notification
}

// New creates an empty Hub. CheckOrigin always allows, matching the
// teacher's permissive default (tighten via a reverse proxy or the
// httpsurface auth middleware in production).
func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Notification),
	}
}

// Sink adapts the Hub into a sessionmanager.NotificationSink, broadcasting
// every event to all currently connected clients.
func (h *Hub) Sink() sessionmanager.NotificationSink {
	return func(n sessionmanager.Notification) {
		h.Broadcast(Notification{JSONRPC: "2.0", Method: n.Method, Params: n.Params})
	}
}

// Broadcast enqueues n for delivery to every connected client. A client
// whose outgoing queue is full is dropped rather than blocking the
// broadcaster.
func (h *Hub) Broadcast(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, queue := range h.clients {
		select {
		case queue <- n:
		default:
			h.removeLocked(conn)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and streams
// notifications to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		aiwlog.Get().Warn("wsrpc: upgrade failed", "error", err)
		return
	}

	queue := make(chan Notification, 64)
	h.mu.Lock()
	h.clients[conn] = queue
	h.mu.Unlock()

	go h.readLoop(conn)
	h.writeLoop(conn, queue)
}

// readLoop drains and discards client frames solely to detect
// disconnects; this surface is notification-only and accepts no client
// commands.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			h.removeLocked(conn)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, queue chan Notification) {
	for n := range queue {
		if err := conn.WriteJSON(n); err != nil {
			h.mu.Lock()
			h.removeLocked(conn)
			h.mu.Unlock()
			return
		}
	}
}

// removeLocked closes and forgets conn. Caller must hold h.mu.
func (h *Hub) removeLocked(conn *websocket.Conn) {
	if queue, ok := h.clients[conn]; ok {
		close(queue)
		delete(h.clients, conn)
		_ = conn.Close()
	}
}

// ConnectedClients returns the number of currently connected WebSocket
// clients, for status reporting.
func (h *Hub) ConnectedClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
