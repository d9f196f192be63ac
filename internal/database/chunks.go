package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Chunk fabrication states.
const (
	ChunkStatusPending = "pending"
	ChunkStatusReady   = "ready"
	ChunkStatusFailed  = "failed"
)

// LayerTerrain is the only chunk layer currently fabricated.
const LayerTerrain = "terrain"

// ChunkKey is the natural key of a world chunk within one world version.
type ChunkKey struct {
	ChunkX     int
	ChunkZ     int
	Layer      string
	Resolution int
}

// WorldChunk represents one row of world_chunks. S3Key and Checksum are nil
// until the chunk reaches ready.
type WorldChunk struct {
	WorldVersionID int64
	ChunkX         int
	ChunkZ         int
	Layer          string
	Resolution     int
	S3Key          *string
	Checksum       *string
	Status         string
	GeneratedAt    time.Time
}

// IsReady reports whether the row is in the ready state.
func (c *WorldChunk) IsReady() bool {
	return c.Status == ChunkStatusReady
}

// ChunkStorage handles chunk metadata storage and retrieval.
// All methods are scoped by world version; unknown versions fail with
// ErrUnknownWorldVersion.
type ChunkStorage struct {
	db *sql.DB
}

// NewChunkStorage creates a new chunk storage instance
func NewChunkStorage(db *sql.DB) *ChunkStorage {
	return &ChunkStorage{db: db}
}

const worldChunkColumns = `world_version_id, chunk_x, chunk_z, layer, resolution, s3_key, checksum, status, generated_at`

func scanWorldChunk(row rowScanner) (*WorldChunk, error) {
	var chunk WorldChunk
	var s3Key sql.NullString
	var checksum sql.NullString

	err := row.Scan(
		&chunk.WorldVersionID,
		&chunk.ChunkX,
		&chunk.ChunkZ,
		&chunk.Layer,
		&chunk.Resolution,
		&s3Key,
		&checksum,
		&chunk.Status,
		&chunk.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}

	if s3Key.Valid {
		chunk.S3Key = &s3Key.String
	}
	if checksum.Valid {
		chunk.Checksum = &checksum.String
	}
	return &chunk, nil
}

// Get retrieves one chunk row. Returns nil if no row exists.
func (s *ChunkStorage) Get(ctx context.Context, version string, key ChunkKey) (*WorldChunk, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + worldChunkColumns + `
		FROM world_chunks
		WHERE world_version_id = $1 AND chunk_x = $2 AND chunk_z = $3 AND layer = $4 AND resolution = $5
	`
	chunk, err := scanWorldChunk(s.db.QueryRowContext(ctx, query, versionID, key.ChunkX, key.ChunkZ, key.Layer, key.Resolution))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk (%d,%d) r%d: %w", key.ChunkX, key.ChunkZ, key.Resolution, err)
	}
	return chunk, nil
}

// IsReady reports whether a ready row exists for the key.
func (s *ChunkStorage) IsReady(ctx context.Context, version string, key ChunkKey) (bool, error) {
	chunk, err := s.Get(ctx, version, key)
	if err != nil {
		return false, err
	}
	return chunk != nil && chunk.IsReady(), nil
}

// UpsertReady inserts or updates the row to ready with the published object
// key and checksum. Idempotent under retry: concurrent fabrications of the
// same chunk converge on the same row.
func (s *ChunkStorage) UpsertReady(ctx context.Context, version string, key ChunkKey, objectKey, checksum string) error {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO world_chunks (world_version_id, chunk_x, chunk_z, layer, resolution, s3_key, checksum, status, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)
		ON CONFLICT (world_version_id, chunk_x, chunk_z, layer, resolution)
		DO UPDATE SET
			s3_key = $6,
			checksum = $7,
			status = $8,
			generated_at = CURRENT_TIMESTAMP
	`
	_, err = s.db.ExecContext(ctx, query,
		versionID, key.ChunkX, key.ChunkZ, key.Layer, key.Resolution,
		objectKey, checksum, ChunkStatusReady,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert ready chunk (%d,%d) r%d: %w", key.ChunkX, key.ChunkZ, key.Resolution, err)
	}
	return nil
}

// MarkPending records that fabrication has been scheduled. A fresh key gets a
// pending row; a failed row is re-marked pending for the retry; ready and
// already-pending rows are left untouched.
func (s *ChunkStorage) MarkPending(ctx context.Context, version string, key ChunkKey) error {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO world_chunks (world_version_id, chunk_x, chunk_z, layer, resolution, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (world_version_id, chunk_x, chunk_z, layer, resolution)
		DO UPDATE SET status = $6, generated_at = CURRENT_TIMESTAMP
		WHERE world_chunks.status = $7
	`
	_, err = s.db.ExecContext(ctx, query,
		versionID, key.ChunkX, key.ChunkZ, key.Layer, key.Resolution,
		ChunkStatusPending, ChunkStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark chunk (%d,%d) r%d pending: %w", key.ChunkX, key.ChunkZ, key.Resolution, err)
	}
	return nil
}

// MarkFailed demotes a pending row to failed. Ready rows are never demoted:
// a concurrent fabrication that already published wins.
func (s *ChunkStorage) MarkFailed(ctx context.Context, version string, key ChunkKey) error {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return err
	}

	query := `
		UPDATE world_chunks
		SET status = $6, generated_at = CURRENT_TIMESTAMP
		WHERE world_version_id = $1 AND chunk_x = $2 AND chunk_z = $3 AND layer = $4 AND resolution = $5
			AND status = $7
	`
	_, err = s.db.ExecContext(ctx, query,
		versionID, key.ChunkX, key.ChunkZ, key.Layer, key.Resolution,
		ChunkStatusFailed, ChunkStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark chunk (%d,%d) r%d failed: %w", key.ChunkX, key.ChunkZ, key.Resolution, err)
	}
	return nil
}

// CountByVersion returns the number of chunk rows for a version. The anchor
// seeder uses it to detect a brand-new world.
func (s *ChunkStorage) CountByVersion(ctx context.Context, version string) (int64, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return 0, err
	}

	var count int64
	query := `SELECT COUNT(*) FROM world_chunks WHERE world_version_id = $1`
	if err := s.db.QueryRowContext(ctx, query, versionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks for version %q: %w", version, err)
	}
	return count, nil
}

// CountByStatus returns per-status chunk row counts for a version. Used by
// the metrics endpoint.
func (s *ChunkStorage) CountByStatus(ctx context.Context, version string) (map[string]int64, error) {
	versionID, err := resolveWorldVersionID(ctx, s.db, version)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT status, COUNT(*)
		FROM world_chunks
		WHERE world_version_id = $1
		GROUP BY status
	`
	rows, err := s.db.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks by status for version %q: %w", version, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count row: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunk count rows: %w", err)
	}
	return counts, nil
}
