// Package dashboard broadcasts live queue snapshots to connected
// dashboards over WebSocket, grounded on the teacher's ws_hub.go
// single-broadcaster pattern.
package dashboard

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxConnections = 200

// Snapshot is the JSON payload pushed to every connected client.
type Snapshot struct {
	Waiting          int `json:"waiting"`
	Blocked          int `json:"blocked"`
	Buildable        int `json:"buildable"`
	ParkedExecutors  int `json:"parked_executors"`
}

// SnapshotSource produces the current queue snapshot on demand.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Hub manages WebSocket connections and broadcasts queue snapshots.
type Hub struct {
	source     SnapshotSource
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

// NewHub builds a Hub that reads snapshots from source.
func NewHub(source SnapshotSource) *Hub {
	return &Hub{
		source:     source,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan struct{}, 1),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Run starts the hub's main loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("dashboard: connection rejected, max connections (%d) reached", maxConnections)
				continue
			}
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
			log.Printf("dashboard: client registered, total %d", len(h.clients))
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case <-h.broadcast:
			h.broadcastAll()
		case <-ticker.C:
			h.broadcastAll()
		}
	}
}

func (h *Hub) broadcastAll() {
	snap := h.source.Snapshot()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snap); err != nil {
			log.Printf("dashboard: write error: %v", err)
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Printf("dashboard: shutting down with %d clients", len(h.clients))
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// Register adds a freshly-upgraded connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// NudgeBroadcast requests an out-of-band snapshot push (used after
// ScheduleMaintenance-triggering events), coalescing with any pending one.
func (h *Hub) NudgeBroadcast() {
	select {
	case h.broadcast <- struct{}{}:
	default:
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard: upgrade failed: %v", err)
		return
	}
	h.Register(conn)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
