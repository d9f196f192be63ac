// Package api serves the HTTP surface of the terrain server: chunk delivery,
// DEM tile status, the operator admin endpoints, and the ingest monitor
// WebSocket, with the CORS / rate limit middleware they share.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/objectstore"
	"github.com/terracast/server/internal/srtm"
	"github.com/terracast/server/internal/terrain"
)

// chunkCoordinator is the slice of the fabrication control plane the chunk
// handlers use.
type chunkCoordinator interface {
	GetChunkStatus(ctx context.Context, version string, key database.ChunkKey) (terrain.Status, *database.WorldChunk, error)
	TriggerGeneration(ctx context.Context, version string, key database.ChunkKey) error
	ForceRegenerate(ctx context.Context, version string, key database.ChunkKey) error
}

// objectOpener streams stored chunk payloads.
type objectOpener interface {
	Open(ctx context.Context, key string) (*objectstore.Object, error)
}

// ChunkHandlers handles chunk-related HTTP requests.
type ChunkHandlers struct {
	coordinator chunkCoordinator
	objects     objectOpener
}

// NewChunkHandlers creates a new instance of ChunkHandlers.
func NewChunkHandlers(coordinator chunkCoordinator, objects objectOpener) *ChunkHandlers {
	return &ChunkHandlers{
		coordinator: coordinator,
		objects:     objects,
	}
}

// parseChunkPath extracts (version, key) from a path of the form
// /api/chunks/{version}/terrain/{r}/{x}/{z}[/status]. The trailing flag
// reports whether the status suffix was present.
func parseChunkPath(path string) (string, database.ChunkKey, bool, error) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/api/chunks"), "/")
	parts := strings.Split(trimmed, "/")

	wantStatus := false
	if len(parts) == 6 && parts[5] == "status" {
		wantStatus = true
		parts = parts[:5]
	}
	if len(parts) != 5 {
		return "", database.ChunkKey{}, false, fmt.Errorf("expected {version}/{layer}/{r}/{x}/{z}, got %q", trimmed)
	}

	version := parts[0]
	if version == "" {
		return "", database.ChunkKey{}, false, errors.New("world version is required")
	}
	layer := parts[1]
	if layer != database.LayerTerrain {
		return "", database.ChunkKey{}, false, fmt.Errorf("unknown layer %q", layer)
	}

	resolution, err := strconv.Atoi(parts[2])
	if err != nil || resolution < 1 || resolution > terrain.MaxResolution {
		return "", database.ChunkKey{}, false, fmt.Errorf("invalid resolution %q", parts[2])
	}
	chunkX, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", database.ChunkKey{}, false, fmt.Errorf("invalid chunk x %q", parts[3])
	}
	chunkZ, err := strconv.Atoi(parts[4])
	if err != nil {
		return "", database.ChunkKey{}, false, fmt.Errorf("invalid chunk z %q", parts[4])
	}

	key := database.ChunkKey{
		ChunkX:     chunkX,
		ChunkZ:     chunkZ,
		Layer:      layer,
		Resolution: resolution,
	}
	return version, key, wantStatus, nil
}

// GetChunk handles GET /api/chunks/{version}/terrain/{r}/{x}/{z}.
// A ready chunk is streamed directly; anything else answers 202 with a
// no-store pending body so clients poll, after making sure fabrication has
// been set in motion.
func (h *ChunkHandlers) GetChunk(w http.ResponseWriter, r *http.Request) {
	version, key, _, err := parseChunkPath(r.URL.Path)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, chunk, err := h.coordinator.GetChunkStatus(r.Context(), version, key)
	if err != nil {
		if errors.Is(err, database.ErrUnknownWorldVersion) {
			respondWithError(w, http.StatusNotFound, "Unknown world version")
			return
		}
		slog.Error("chunk status lookup failed", "version", version, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to look up chunk")
		return
	}

	switch status {
	case terrain.StatusReady:
		h.streamChunk(w, r, version, key, chunk)
	case terrain.StatusPending:
		respondPending(w, ChunkPendingResponse{Status: "pending"})
	case terrain.StatusFailed:
		h.retryFailedChunk(w, r, version, key)
	default:
		h.triggerAndRespond(w, r, version, key)
	}
}

// streamChunk delivers the stored object behind a ready row. A ready row
// whose object is gone is drift, not an error surface: the chunk is
// re-fabricated and the client polls like for a cold chunk.
func (h *ChunkHandlers) streamChunk(w http.ResponseWriter, r *http.Request, version string, key database.ChunkKey, chunk *database.WorldChunk) {
	if chunk.S3Key == nil {
		h.regenerateAndRespond(w, r, version, key)
		return
	}

	obj, err := h.objects.Open(r.Context(), *chunk.S3Key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			slog.Warn("ready chunk has no stored object, regenerating",
				"version", version,
				"key", *chunk.S3Key,
			)
			h.regenerateAndRespond(w, r, version, key)
			return
		}
		slog.Error("failed to open chunk object", "version", version, "key", *chunk.S3Key, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to read chunk object")
		return
	}
	defer func() {
		if closeErr := obj.Body.Close(); closeErr != nil {
			slog.Debug("failed to close chunk object body", "error", closeErr)
		}
	}()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if obj.ETag != "" {
		w.Header().Set("ETag", `"`+obj.ETag+`"`)
	}
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Debug("chunk stream interrupted", "version", version, "key", *chunk.S3Key, "error", err)
	}
}

// regenerateAndRespond handles the metadata-says-ready-but-object-missing
// case: force a fresh fabrication past the ready short-circuit and tell the
// client to poll.
func (h *ChunkHandlers) regenerateAndRespond(w http.ResponseWriter, r *http.Request, version string, key database.ChunkKey) {
	err := h.coordinator.ForceRegenerate(r.Context(), version, key)
	h.respondTriggerOutcome(w, version, key, err)
}

// retryFailedChunk surfaces the recorded failure but also restarts
// fabrication: the coordinator moves the failed row back to pending before
// scheduling, so the next poll sees pending instead of the same error.
func (h *ChunkHandlers) retryFailedChunk(w http.ResponseWriter, r *http.Request, version string, key database.ChunkKey) {
	if err := h.coordinator.TriggerGeneration(r.Context(), version, key); err != nil {
		var notReady *terrain.DemTileNotReadyError
		if !errors.As(err, &notReady) {
			slog.Error("failed to restart failed chunk",
				"version", version,
				"chunk_x", key.ChunkX,
				"chunk_z", key.ChunkZ,
				"resolution", key.Resolution,
				"error", err,
			)
		}
	}
	respondWithError(w, http.StatusInternalServerError, "Chunk fabrication failed; regeneration restarted, poll again")
}

// triggerAndRespond starts fabrication for a chunk with no row yet.
func (h *ChunkHandlers) triggerAndRespond(w http.ResponseWriter, r *http.Request, version string, key database.ChunkKey) {
	err := h.coordinator.TriggerGeneration(r.Context(), version, key)
	h.respondTriggerOutcome(w, version, key, err)
}

func (h *ChunkHandlers) respondTriggerOutcome(w http.ResponseWriter, version string, key database.ChunkKey, err error) {
	if err == nil {
		respondPending(w, ChunkPendingResponse{Status: "pending"})
		return
	}

	var notReady *terrain.DemTileNotReadyError
	switch {
	case errors.As(err, &notReady):
		// The missing DEM row now exists, so the download worker will pick
		// it up; the chunk itself stays unscheduled until the tile is ready.
		respondPending(w, ChunkPendingResponse{Status: "pending_dem", TileKey: notReady.TileKey})
	case errors.Is(err, database.ErrUnknownWorldVersion):
		respondWithError(w, http.StatusNotFound, "Unknown world version")
	case errors.Is(err, srtm.ErrOutOfRange):
		respondWithError(w, http.StatusBadRequest, "Chunk lies outside the mappable world")
	default:
		slog.Error("failed to trigger chunk generation",
			"version", version,
			"chunk_x", key.ChunkX,
			"chunk_z", key.ChunkZ,
			"resolution", key.Resolution,
			"error", err,
		)
		respondWithError(w, http.StatusInternalServerError, "Failed to trigger chunk generation")
	}
}

// GetChunkStatus handles GET /api/chunks/{version}/terrain/{r}/{x}/{z}/status.
// Metadata only; the object store is never touched.
func (h *ChunkHandlers) GetChunkStatus(w http.ResponseWriter, r *http.Request) {
	version, key, _, err := parseChunkPath(r.URL.Path)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, chunk, err := h.coordinator.GetChunkStatus(r.Context(), version, key)
	if err != nil {
		if errors.Is(err, database.ErrUnknownWorldVersion) {
			respondWithError(w, http.StatusNotFound, "Unknown world version")
			return
		}
		slog.Error("chunk status lookup failed", "version", version, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to look up chunk")
		return
	}

	resp := ChunkStatusResponse{
		WorldVersion: version,
		ChunkX:       key.ChunkX,
		ChunkZ:       key.ChunkZ,
		Layer:        key.Layer,
		Resolution:   key.Resolution,
		Status:       string(status),
	}
	if chunk != nil {
		if chunk.S3Key != nil {
			resp.ObjectKey = *chunk.S3Key
		}
		if chunk.Checksum != nil {
			resp.Checksum = *chunk.Checksum
		}
		generatedAt := chunk.GeneratedAt
		resp.GeneratedAt = &generatedAt
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// respondPending answers 202 with a no-store hint so intermediaries never
// cache a poll response.
func respondPending(w http.ResponseWriter, body ChunkPendingResponse) {
	w.Header().Set("Cache-Control", "no-store")
	respondWithJSON(w, http.StatusAccepted, body)
}
