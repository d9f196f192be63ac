// Package monitor broadcasts ingestion lifecycle events to operator
// WebSocket clients: DEM tile claims and completions, chunk publications and
// failures. The hub is one-way; client messages are discarded.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event types published by the DEM worker and the chunk coordinator.
const (
	EventDEMClaimed  = "dem_claimed"
	EventDEMReady    = "dem_ready"
	EventDEMFailed   = "dem_failed"
	EventChunkReady  = "chunk_ready"
	EventChunkFailed = "chunk_failed"
)

// Event is one ingestion lifecycle notification.
type Event struct {
	Type         string    `json:"type"`
	WorldVersion string    `json:"world_version"`
	Key          string    `json:"key"`
	Detail       string    `json:"detail,omitempty"`
	Time         time.Time `json:"time"`
}

// Hub manages all active monitor connections
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan []byte
	register    chan *Connection
	unregister  chan *Connection
	// done is closed when Run exits; registrations arriving after that
	// select against it instead of blocking on a loop nobody serves.
	done chan struct{}
	mu   sync.RWMutex
}

// NewHub creates a new monitor hub
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop. It exits when the context is cancelled,
// closing every attached connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.connections {
				close(conn.send)
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			slog.Debug("monitor connection registered", "connections", h.ConnectionCount())

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
			}
			h.mu.Unlock()
			slog.Debug("monitor connection unregistered", "connections", h.ConnectionCount())

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				select {
				case conn.send <- message:
				default:
					// Slow consumer; drop the connection rather than the hub.
					close(conn.send)
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish broadcasts an event to all connected clients. It never blocks the
// caller: when the hub is saturated or not running, the event is dropped.
func (h *Hub) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	message, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal monitor event", "type", event.Type, "error", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		slog.Debug("monitor event dropped", "type", event.Type)
	}
}

// ConnectionCount returns the number of attached clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
