package terrain

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/terracast/server/internal/database"
)

// AnchorResolution is the resolution of the seeded origin chunk. Tiny on
// purpose: the anchor exists so a fresh world has one well-known chunk at
// (0,0), not to serve real terrain.
const AnchorResolution = 2

// anchorChunkRepository is the slice of the chunk storage the seeder uses.
type anchorChunkRepository interface {
	CountByVersion(ctx context.Context, version string) (int64, error)
	UpsertReady(ctx context.Context, version string, key database.ChunkKey, objectKey, checksum string) error
}

// AnchorSeeder publishes a flat sea-level chunk at the world origin for every
// active version that has no chunks yet.
type AnchorSeeder struct {
	versions activeVersionLister
	chunks   anchorChunkRepository
	writer   chunkPublisher
}

// activeVersionLister yields the active world version snapshot.
type activeVersionLister interface {
	GetActiveVersions() []string
}

// NewAnchorSeeder creates an anchor seeder
func NewAnchorSeeder(versions activeVersionLister, chunks anchorChunkRepository, writer chunkPublisher) *AnchorSeeder {
	return &AnchorSeeder{
		versions: versions,
		chunks:   chunks,
		writer:   writer,
	}
}

// Seed anchors every active world version, in parallel. A version with any
// chunk rows is left alone, so restarting the server never re-seeds; the
// writer's reuse of existing objects makes a crash between upload and
// metadata publish safe to retry.
func (s *AnchorSeeder) Seed(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, version := range s.versions.GetActiveVersions() {
		version := version
		g.Go(func() error {
			return s.seedVersion(ctx, version)
		})
	}
	return g.Wait()
}

func (s *AnchorSeeder) seedVersion(ctx context.Context, version string) error {
	count, err := s.chunks.CountByVersion(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to check anchor for version %q: %w", version, err)
	}
	if count > 0 {
		return nil
	}

	chunk := NewFlatChunk(0, 0, AnchorResolution)
	published, err := s.writer.Write(ctx, version, database.LayerTerrain, chunk)
	if err != nil {
		return fmt.Errorf("failed to publish anchor chunk for version %q: %w", version, err)
	}

	key := database.ChunkKey{ChunkX: 0, ChunkZ: 0, Layer: database.LayerTerrain, Resolution: AnchorResolution}
	if err := s.chunks.UpsertReady(ctx, version, key, published.ObjectKey, published.Checksum); err != nil {
		return fmt.Errorf("failed to record anchor chunk for version %q: %w", version, err)
	}

	slog.Info("anchor chunk seeded", "version", version, "key", published.ObjectKey)
	return nil
}
