package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the metadata tables. Statements are idempotent so
// the server can run them unconditionally at startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS world_versions (
		id BIGSERIAL PRIMARY KEY,
		version TEXT UNIQUE NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS dem_tiles (
		id BIGSERIAL PRIMARY KEY,
		world_version_id BIGINT NOT NULL REFERENCES world_versions(id),
		tile_key TEXT NOT NULL,
		status TEXT NOT NULL,
		s3_key TEXT,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (world_version_id, tile_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_dem_tiles_status
		ON dem_tiles (world_version_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS world_chunks (
		world_version_id BIGINT NOT NULL REFERENCES world_versions(id),
		chunk_x INTEGER NOT NULL,
		chunk_z INTEGER NOT NULL,
		layer TEXT NOT NULL,
		resolution INTEGER NOT NULL,
		s3_key TEXT,
		checksum TEXT,
		status TEXT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (world_version_id, chunk_x, chunk_z, layer, resolution)
	)`,
}

// EnsureSchema creates the metadata tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
