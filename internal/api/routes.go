package api

import (
	"net/http"

	"github.com/terracast/server/internal/auth"
	"github.com/terracast/server/internal/config"
	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/monitor"
	"github.com/terracast/server/internal/objectstore"
	"github.com/terracast/server/internal/performance"
	"github.com/terracast/server/internal/terrain"
	"github.com/terracast/server/internal/world"
)

// ServiceName identifies the server in health responses and token issuers.
const ServiceName = "terracast-server"

// Dependencies carries the shared components the HTTP layer serves.
type Dependencies struct {
	Config      *config.Config
	Coordinator *terrain.Coordinator
	Objects     *objectstore.Store
	DEMTiles    *database.DEMTileStorage
	Chunks      *database.ChunkStorage
	Versions    *world.VersionCache
	Hub         *monitor.Hub
	Profiler    *performance.Profiler
	Tokens      *auth.TokenHandlers
}

// SetupRoutes registers every HTTP surface on the mux and returns the
// handler wrapped with the global middleware chain.
func SetupRoutes(mux *http.ServeMux, deps Dependencies) http.Handler {
	mux.HandleFunc("/health", handleHealth)

	chunkHandlers := NewChunkHandlers(deps.Coordinator, deps.Objects)
	SetupChunkRoutes(mux, chunkHandlers, deps.Config.RateLimit.RequestsPerMinute)

	demHandlers := NewDEMHandlers(deps.Versions, deps.DEMTiles)
	SetupDEMRoutes(mux, demHandlers, deps.Config.RateLimit.RequestsPerMinute)

	adminHandlers := NewAdminHandlers(deps.DEMTiles, deps.Chunks, deps.Versions, deps.Profiler, deps.Hub)
	SetupAdminRoutes(mux, adminHandlers, deps.Tokens)

	SetupMonitorRoutes(mux, deps.Hub, deps.Config.Server.AllowedOrigins)

	handler := CORSMiddleware(deps.Config.Server.AllowedOrigins)(mux)
	return auth.SecurityHeadersMiddleware(handler)
}

// handleHealth is the liveness probe.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: ServiceName,
	})
}
