package api

import (
	"time"

	"github.com/terracast/server/internal/performance"
)

// ChunkStatusResponse describes one chunk's fabrication state.
type ChunkStatusResponse struct {
	WorldVersion string     `json:"world_version"`
	ChunkX       int        `json:"chunk_x"`
	ChunkZ       int        `json:"chunk_z"`
	Layer        string     `json:"layer"`
	Resolution   int        `json:"resolution"`
	Status       string     `json:"status"`
	ObjectKey    string     `json:"object_key,omitempty"`
	Checksum     string     `json:"checksum,omitempty"`
	GeneratedAt  *time.Time `json:"generated_at,omitempty"`
}

// ChunkPendingResponse is the 202 body returned while fabrication is in
// flight. TileKey is set when delivery is blocked on a DEM tile download.
type ChunkPendingResponse struct {
	Status  string `json:"status"`
	TileKey string `json:"tile_key,omitempty"`
}

// DEMStatusQuery is the parsed query string of the DEM status endpoint.
type DEMStatusQuery struct {
	Version string  `validate:"required"`
	Lat     float64 `validate:"gte=-90,lte=90"`
	Lon     float64 `validate:"gte=-180,lte=180"`
}

// DEMStatusResponse reports the ingestion state of one DEM tile.
type DEMStatusResponse struct {
	WorldVersion string `json:"world_version"`
	TileKey      string `json:"tile_key"`
	Status       string `json:"status"`
	ObjectKey    string `json:"object_key,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// DEMResetRequest asks for a downloading or failed DEM tile to be demoted
// back to missing so the download worker retries it.
type DEMResetRequest struct {
	Version string `json:"version" validate:"required"`
	TileKey string `json:"tile_key" validate:"required"`
}

// DEMResetResponse confirms a reset.
type DEMResetResponse struct {
	WorldVersion string `json:"world_version"`
	TileKey      string `json:"tile_key"`
	Status       string `json:"status"`
}

// MetricsResponse aggregates fabrication timings with per-version chunk
// inventory counts.
type MetricsResponse struct {
	Profile     performance.Report          `json:"profile"`
	ChunkCounts map[string]map[string]int64 `json:"chunk_counts"`
	Monitors    int                         `json:"monitor_connections"`
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
