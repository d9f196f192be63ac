package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DEM tile ingestion states. missing -> downloading -> ready | failed.
const (
	DEMStatusMissing     = "missing"
	DEMStatusDownloading = "downloading"
	DEMStatusReady       = "ready"
	DEMStatusFailed      = "failed"
)

// DEMTile represents one row of dem_tiles
type DEMTile struct {
	ID             int64
	WorldVersionID int64
	TileKey        string
	Status         string
	S3Key          *string
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DEMTileStorage handles DEM tile status storage and retrieval.
// All methods are scoped by (worldVersion, tileKey); unknown versions fail
// with ErrUnknownWorldVersion.
type DEMTileStorage struct {
	db *sql.DB
}

// NewDEMTileStorage creates a new DEM tile storage instance
func NewDEMTileStorage(db *sql.DB) *DEMTileStorage {
	return &DEMTileStorage{db: db}
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const demTileColumns = `id, world_version_id, tile_key, status, s3_key, last_error, created_at, updated_at`

func scanDEMTile(row rowScanner) (*DEMTile, error) {
	var tile DEMTile
	var s3Key sql.NullString
	var lastError sql.NullString

	err := row.Scan(
		&tile.ID,
		&tile.WorldVersionID,
		&tile.TileKey,
		&tile.Status,
		&s3Key,
		&lastError,
		&tile.CreatedAt,
		&tile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s3Key.Valid {
		tile.S3Key = &s3Key.String
	}
	if lastError.Valid {
		tile.LastError = &lastError.String
	}
	return &tile, nil
}

// GetOrCreateMissing upserts a status="missing" row for the tile and returns
// the current row. An existing row keeps its status; only updated_at is
// bumped. Concurrent calls converge on a single row.
func (s *DEMTileStorage) GetOrCreateMissing(ctx context.Context, version, tileKey string) (*DEMTile, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO dem_tiles (world_version_id, tile_key, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (world_version_id, tile_key)
		DO UPDATE SET updated_at = CURRENT_TIMESTAMP
		RETURNING ` + demTileColumns
	tile, err := scanDEMTile(s.db.QueryRowContext(ctx, query, versionID, tileKey, DEMStatusMissing))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert dem tile %q: %w", tileKey, err)
	}
	return tile, nil
}

// Get retrieves one DEM tile row. Returns nil if no row exists.
func (s *DEMTileStorage) Get(ctx context.Context, version, tileKey string) (*DEMTile, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + demTileColumns + `
		FROM dem_tiles
		WHERE world_version_id = $1 AND tile_key = $2
	`
	tile, err := scanDEMTile(s.db.QueryRowContext(ctx, query, versionID, tileKey))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dem tile %q: %w", tileKey, err)
	}
	return tile, nil
}

// TryClaim moves the tile from missing to downloading. The single conditional
// UPDATE makes the claim atomic: exactly one of N concurrent callers wins.
func (s *DEMTileStorage) TryClaim(ctx context.Context, version, tileKey string) (bool, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE dem_tiles
		SET status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE world_version_id = $1 AND tile_key = $2 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query, versionID, tileKey, DEMStatusDownloading, DEMStatusMissing)
	if err != nil {
		return false, fmt.Errorf("failed to claim dem tile %q: %w", tileKey, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for dem tile %q: %w", tileKey, err)
	}
	return affected == 1, nil
}

// MarkReady records a completed download: status="ready", object key set,
// last error cleared.
func (s *DEMTileStorage) MarkReady(ctx context.Context, version, tileKey, objectKey string) error {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return err
	}

	query := `
		UPDATE dem_tiles
		SET status = $3, s3_key = $4, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE world_version_id = $1 AND tile_key = $2
	`
	if _, err := s.db.ExecContext(ctx, query, versionID, tileKey, DEMStatusReady, objectKey); err != nil {
		return fmt.Errorf("failed to mark dem tile %q ready: %w", tileKey, err)
	}
	return nil
}

// MarkFailed records a failed download with the error text for operators.
func (s *DEMTileStorage) MarkFailed(ctx context.Context, version, tileKey, errorText string) error {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return err
	}

	query := `
		UPDATE dem_tiles
		SET status = $3, last_error = $4, updated_at = CURRENT_TIMESTAMP
		WHERE world_version_id = $1 AND tile_key = $2
	`
	if _, err := s.db.ExecContext(ctx, query, versionID, tileKey, DEMStatusFailed, errorText); err != nil {
		return fmt.Errorf("failed to mark dem tile %q failed: %w", tileKey, err)
	}
	return nil
}

// ListByStatus returns up to limit rows in the given status, oldest first.
func (s *DEMTileStorage) ListByStatus(ctx context.Context, version, status string, limit int) ([]DEMTile, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + demTileColumns + `
		FROM dem_tiles
		WHERE world_version_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, versionID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dem tiles by status %q: %w", status, err)
	}
	defer rows.Close()

	var tiles []DEMTile
	for rows.Next() {
		tile, err := scanDEMTile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dem tile row: %w", err)
		}
		tiles = append(tiles, *tile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dem tile rows: %w", err)
	}
	return tiles, nil
}

// ResetToMissing demotes a downloading or failed tile back to missing so the
// download worker picks it up again. Returns whether a row was changed.
// Orphaned "downloading" rows (a worker died mid-claim) have no automatic
// recovery; this is the operator-facing reset for them.
func (s *DEMTileStorage) ResetToMissing(ctx context.Context, version, tileKey string) (bool, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE dem_tiles
		SET status = $3, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE world_version_id = $1 AND tile_key = $2 AND status IN ($4, $5)
	`
	result, err := s.db.ExecContext(ctx, query, versionID, tileKey, DEMStatusMissing, DEMStatusDownloading, DEMStatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to reset dem tile %q: %w", tileKey, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read reset result for dem tile %q: %w", tileKey, err)
	}
	return affected == 1, nil
}
