package monitor

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Ping interval for keepalive (30 seconds)
	pingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second
)

// Connection represents an active monitor WebSocket connection
type Connection struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Attach wraps an upgraded WebSocket connection, registers it with the hub,
// and starts its read/write pumps.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := &Connection{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		// The hub already shut down; refuse the connection instead of
		// parking the handler goroutine forever.
		if err := conn.Close(); err != nil {
			slog.Debug("failed to close monitor connection", "error", err)
		}
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump consumes client frames. The monitor stream is outbound-only, so
// incoming payloads are discarded; the pump exists to service pongs and to
// detect closure.
func (c *Connection) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			// Run's shutdown sweep already dropped every connection.
		}
		if err := c.conn.Close(); err != nil {
			slog.Debug("failed to close monitor connection", "error", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Debug("failed to set monitor read deadline", "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("monitor connection read error", "error", err)
			}
			return
		}
	}
}

// writePump forwards hub messages to the client and keeps the connection
// alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			slog.Debug("failed to close monitor connection", "error", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
