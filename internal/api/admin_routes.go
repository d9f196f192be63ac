package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/terracast/server/internal/auth"
)

// Admin operations are low-volume by nature; token issuance gets an even
// tighter limit because it is the only unauthenticated admin surface.
const (
	adminRequestsPerMinute = 10
	tokenRequestsPerMinute = 5
)

// SetupAdminRoutes registers operator management routes. Everything under
// /api/admin requires a bearer token except the token issuance endpoint
// itself.
func SetupAdminRoutes(mux *http.ServeMux, handlers *AdminHandlers, tokens *auth.TokenHandlers) {
	adminRateLimit := RateLimitMiddleware(adminRequestsPerMinute, 1*time.Minute)
	tokenRateLimit := RateLimitMiddleware(tokenRequestsPerMinute, 1*time.Minute)

	adminHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/admin")
		path = strings.Trim(path, "/")

		switch {
		case r.Method == http.MethodPost && path == "dem/reset":
			handlers.ResetDEMTile(w, r)
		case r.Method == http.MethodGet && path == "metrics":
			handlers.GetMetrics(w, r)
		default:
			http.NotFound(w, r)
		}
	})

	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		tokens.IssueToken(w, r)
	})

	// The more specific pattern wins, so token issuance bypasses RequireAdmin.
	mux.Handle("/api/admin/token", tokenRateLimit(tokenHandler))
	mux.Handle("/api/admin/", adminRateLimit(tokens.RequireAdmin(adminHandler)))
}
