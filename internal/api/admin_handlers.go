package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/performance"
)

// demTileResetter is the slice of the DEM tile storage the admin reset uses.
type demTileResetter interface {
	Get(ctx context.Context, version, tileKey string) (*database.DEMTile, error)
	ResetToMissing(ctx context.Context, version, tileKey string) (bool, error)
}

// chunkCounter yields per-status chunk row counts for the metrics report.
type chunkCounter interface {
	CountByStatus(ctx context.Context, version string) (map[string]int64, error)
}

// activeVersionLister yields the active world version snapshot.
type activeVersionLister interface {
	GetActiveVersions() []string
}

// connectionCounter reports attached monitor clients.
type connectionCounter interface {
	ConnectionCount() int
}

// AdminHandlers handles operator management HTTP requests.
type AdminHandlers struct {
	tiles     demTileResetter
	chunks    chunkCounter
	versions  activeVersionLister
	profiler  *performance.Profiler
	monitors  connectionCounter
	validator *validator.Validate
}

// NewAdminHandlers creates a new admin handlers instance
func NewAdminHandlers(
	tiles demTileResetter,
	chunks chunkCounter,
	versions activeVersionLister,
	profiler *performance.Profiler,
	monitors connectionCounter,
) *AdminHandlers {
	return &AdminHandlers{
		tiles:     tiles,
		chunks:    chunks,
		versions:  versions,
		profiler:  profiler,
		monitors:  monitors,
		validator: validator.New(),
	}
}

// ResetDEMTile handles POST /api/admin/dem/reset.
// Downloading and failed rows are terminal to the state machine; this is the
// operator reset that demotes one back to missing so the worker retries it.
func (h *AdminHandlers) ResetDEMTile(w http.ResponseWriter, r *http.Request) {
	var req DEMResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondWithValidationError(w, err)
		return
	}

	reset, err := h.tiles.ResetToMissing(r.Context(), req.Version, req.TileKey)
	if err != nil {
		if errors.Is(err, database.ErrUnknownWorldVersion) {
			respondWithError(w, http.StatusNotFound, "Unknown world version")
			return
		}
		slog.Error("dem tile reset failed", "version", req.Version, "tile", req.TileKey, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to reset DEM tile")
		return
	}

	if !reset {
		tile, err := h.tiles.Get(r.Context(), req.Version, req.TileKey)
		if err != nil {
			slog.Error("dem tile lookup failed", "version", req.Version, "tile", req.TileKey, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to look up DEM tile")
			return
		}
		if tile == nil {
			respondWithError(w, http.StatusNotFound, "No DEM tile row to reset")
			return
		}
		respondWithError(w, http.StatusConflict,
			"Only downloading or failed tiles can be reset; tile is "+tile.Status)
		return
	}

	slog.Info("dem tile reset to missing", "version", req.Version, "tile", req.TileKey)
	respondWithJSON(w, http.StatusOK, DEMResetResponse{
		WorldVersion: req.Version,
		TileKey:      req.TileKey,
		Status:       database.DEMStatusMissing,
	})
}

// GetMetrics handles GET /api/admin/metrics.
func (h *AdminHandlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]map[string]int64)
	for _, version := range h.versions.GetActiveVersions() {
		byStatus, err := h.chunks.CountByStatus(r.Context(), version)
		if err != nil {
			slog.Error("chunk count failed", "version", version, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to count chunks")
			return
		}
		counts[version] = byStatus
	}

	respondWithJSON(w, http.StatusOK, MetricsResponse{
		Profile:     h.profiler.Snapshot(),
		ChunkCounts: counts,
		Monitors:    h.monitors.ConnectionCount(),
	})
}
