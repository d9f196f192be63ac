package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownWorldVersion indicates a request referenced a world version that
// has no row in world_versions. Callers treat it as not-found.
var ErrUnknownWorldVersion = errors.New("unknown world version")

// WorldVersion represents one row of world_versions
type WorldVersion struct {
	ID        int64
	Version   string
	IsActive  bool
	CreatedAt time.Time
}

// WorldVersionStorage handles world version storage and retrieval
type WorldVersionStorage struct {
	db *sql.DB
}

// NewWorldVersionStorage creates a new world version storage instance
func NewWorldVersionStorage(db *sql.DB) *WorldVersionStorage {
	return &WorldVersionStorage{db: db}
}

// EnsureVersions upserts the configured versions as active rows. Versions
// already present are reactivated; rows not listed are left untouched, so an
// operator can retire a version by flipping is_active directly.
func (s *WorldVersionStorage) EnsureVersions(ctx context.Context, versions []string) error {
	query := `
		INSERT INTO world_versions (version, is_active)
		VALUES ($1, TRUE)
		ON CONFLICT (version)
		DO UPDATE SET is_active = TRUE
	`
	for _, version := range versions {
		if _, err := s.db.ExecContext(ctx, query, version); err != nil {
			return fmt.Errorf("failed to ensure world version %q: %w", version, err)
		}
	}
	return nil
}

// GetByVersion retrieves one world version row by its version string.
// Returns nil if no row exists.
func (s *WorldVersionStorage) GetByVersion(ctx context.Context, version string) (*WorldVersion, error) {
	var wv WorldVersion
	query := `
		SELECT id, version, is_active, created_at
		FROM world_versions
		WHERE version = $1
	`
	err := s.db.QueryRowContext(ctx, query, version).Scan(
		&wv.ID,
		&wv.Version,
		&wv.IsActive,
		&wv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query world version: %w", err)
	}
	return &wv, nil
}

// ListActive returns all active world versions ordered by version string.
func (s *WorldVersionStorage) ListActive(ctx context.Context) ([]WorldVersion, error) {
	query := `
		SELECT id, version, is_active, created_at
		FROM world_versions
		WHERE is_active = TRUE
		ORDER BY version
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active world versions: %w", err)
	}
	defer rows.Close()

	var versions []WorldVersion
	for rows.Next() {
		var wv WorldVersion
		if err := rows.Scan(&wv.ID, &wv.Version, &wv.IsActive, &wv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan world version row: %w", err)
		}
		versions = append(versions, wv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate world version rows: %w", err)
	}
	return versions, nil
}

// resolveWorldVersionID looks up the id for a version string. Every
// version-scoped repository call goes through this strict lookup.
func resolveWorldVersionID(ctx context.Context, db *sql.DB, version string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, `SELECT id FROM world_versions WHERE version = $1`, version).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ErrUnknownWorldVersion, version)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve world version %q: %w", version, err)
	}
	return id, nil
}
