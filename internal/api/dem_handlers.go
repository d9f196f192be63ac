package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/srtm"
)

// demTileRepository is the slice of the DEM tile storage the handlers use.
type demTileRepository interface {
	GetOrCreateMissing(ctx context.Context, version, tileKey string) (*database.DEMTile, error)
}

// worldVersionGetter resolves version strings against the active snapshot.
type worldVersionGetter interface {
	GetWorldVersion(version string) *database.WorldVersion
}

// DEMHandlers handles DEM tile status HTTP requests.
type DEMHandlers struct {
	versions  worldVersionGetter
	tiles     demTileRepository
	validator *validator.Validate
}

// NewDEMHandlers creates a new DEM handlers instance
func NewDEMHandlers(versions worldVersionGetter, tiles demTileRepository) *DEMHandlers {
	return &DEMHandlers{
		versions:  versions,
		tiles:     tiles,
		validator: validator.New(),
	}
}

// GetDEMStatus handles GET /api/dem/status?version=&lat=&lon=.
// Asking for a tile that has no row yet creates it as missing, so the status
// query doubles as the enqueue trigger for the download worker.
func (h *DEMHandlers) GetDEMStatus(w http.ResponseWriter, r *http.Request) {
	query := DEMStatusQuery{Version: r.URL.Query().Get("version")}

	var err error
	query.Lat, err = strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lat parameter")
		return
	}
	query.Lon, err = strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid lon parameter")
		return
	}

	if err := h.validator.Struct(query); err != nil {
		respondWithValidationError(w, err)
		return
	}

	if h.versions.GetWorldVersion(query.Version) == nil {
		respondWithError(w, http.StatusNotFound, "Unknown world version")
		return
	}

	tileKey, err := srtm.ComputeTileName(query.Lat, query.Lon)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Coordinates out of range")
		return
	}

	tile, err := h.tiles.GetOrCreateMissing(r.Context(), query.Version, tileKey)
	if err != nil {
		if errors.Is(err, database.ErrUnknownWorldVersion) {
			respondWithError(w, http.StatusNotFound, "Unknown world version")
			return
		}
		slog.Error("dem status lookup failed", "version", query.Version, "tile", tileKey, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to look up DEM tile")
		return
	}

	resp := DEMStatusResponse{
		WorldVersion: query.Version,
		TileKey:      tile.TileKey,
		Status:       tile.Status,
	}
	if tile.S3Key != nil {
		resp.ObjectKey = *tile.S3Key
	}
	if tile.LastError != nil {
		resp.LastError = *tile.LastError
	}
	respondWithJSON(w, http.StatusOK, resp)
}
