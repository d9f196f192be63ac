package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/terracast/server/internal/monitor"
)

// SetupMonitorRoutes registers the ingest monitor WebSocket endpoint. The
// stream is outbound-only: DEM claims and completions, chunk publications
// and failures.
func SetupMonitorRoutes(mux *http.ServeMux, hub *monitor.Hub, allowedOrigins []string) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Non-browser clients send no Origin header.
			origin := r.Header.Get("Origin")
			return origin == "" || isOriginAllowed(origin, allowedOrigins)
		},
	}

	mux.HandleFunc("/api/monitor/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			slog.Debug("monitor upgrade failed", "error", err)
			return
		}
		hub.Attach(conn)
	})
}
