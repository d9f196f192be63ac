package api

import (
	"net/http"
	"strings"
	"time"
)

// SetupChunkRoutes registers chunk delivery and status routes.
func SetupChunkRoutes(mux *http.ServeMux, handlers *ChunkHandlers, requestsPerMinute int) {
	rateLimit := RateLimitMiddleware(requestsPerMinute, 1*time.Minute)

	chunkHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		if strings.HasSuffix(r.URL.Path, "/status") {
			handlers.GetChunkStatus(w, r)
			return
		}
		handlers.GetChunk(w, r)
	})

	mux.Handle("/api/chunks/", rateLimit(chunkHandler))
}
