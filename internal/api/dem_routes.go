package api

import (
	"net/http"
	"time"
)

// SetupDEMRoutes registers the public DEM tile status route.
func SetupDEMRoutes(mux *http.ServeMux, handlers *DEMHandlers, requestsPerMinute int) {
	rateLimit := RateLimitMiddleware(requestsPerMinute, 1*time.Minute)

	demHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		handlers.GetDEMStatus(w, r)
	})

	mux.Handle("/api/dem/status", rateLimit(demHandler))
}
