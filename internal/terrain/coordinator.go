package terrain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/geodesy"
	"github.com/terracast/server/internal/monitor"
	"github.com/terracast/server/internal/performance"
	"github.com/terracast/server/internal/srtm"
)

// Status is the fabrication state of a chunk as reported to clients.
type Status string

// Chunk states exposed by GetChunkStatus.
const (
	StatusNotFound Status = "not_found"
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusFailed   Status = "failed"
)

// DemTileNotReadyError reports that fabrication cannot start because the DEM
// tile covering the chunk origin has not been ingested. The row for the tile
// exists by the time this error is returned, so the download worker will pick
// it up; clients poll until the tile turns ready.
type DemTileNotReadyError struct {
	TileKey string
	Status  string
}

func (e *DemTileNotReadyError) Error() string {
	return fmt.Sprintf("dem tile %s not ready (status %s)", e.TileKey, e.Status)
}

// chunkRepository is the slice of the chunk metadata storage the coordinator
// uses.
type chunkRepository interface {
	Get(ctx context.Context, version string, key database.ChunkKey) (*database.WorldChunk, error)
	UpsertReady(ctx context.Context, version string, key database.ChunkKey, objectKey, checksum string) error
	MarkPending(ctx context.Context, version string, key database.ChunkKey) error
	MarkFailed(ctx context.Context, version string, key database.ChunkKey) error
}

// demGate creates-or-reads the DEM tile row guarding fabrication.
type demGate interface {
	GetOrCreateMissing(ctx context.Context, version, tileKey string) (*database.DEMTile, error)
}

// chunkSampler fabricates heightmaps.
type chunkSampler interface {
	Sample(ctx context.Context, chunkX, chunkZ, resolution int) (*Chunk, error)
}

// chunkPublisher uploads serialized chunks.
type chunkPublisher interface {
	Write(ctx context.Context, worldVersion, layer string, chunk *Chunk) (PublishedObject, error)
}

// versionGetter resolves world version strings against the active snapshot.
type versionGetter interface {
	GetWorldVersion(version string) *database.WorldVersion
}

// eventPublisher receives fabrication lifecycle events.
type eventPublisher interface {
	Publish(event monitor.Event)
}

// Coordinator is the chunk fabrication control plane. Request handlers ask it
// for chunk status and trigger generation; fabrication itself runs on
// detached goroutines so a client disconnect never cancels work other
// clients will benefit from.
type Coordinator struct {
	versions versionGetter
	chunks   chunkRepository
	demTiles demGate
	sampler  chunkSampler
	writer   chunkPublisher
	mapper   *geodesy.Mapper
	events   eventPublisher
	profiler *performance.Profiler

	// dbSem bounds concurrent metadata publishes so a fabrication burst
	// cannot exhaust the database pool that request handlers share.
	dbSem *semaphore.Weighted
	wg    sync.WaitGroup
}

// NewCoordinator creates a chunk fabrication coordinator
func NewCoordinator(
	versions versionGetter,
	chunks chunkRepository,
	demTiles demGate,
	sampler chunkSampler,
	writer chunkPublisher,
	mapper *geodesy.Mapper,
	events eventPublisher,
	profiler *performance.Profiler,
	dbWriteLimit int64,
) *Coordinator {
	if dbWriteLimit < 1 {
		dbWriteLimit = 1
	}
	return &Coordinator{
		versions: versions,
		chunks:   chunks,
		demTiles: demTiles,
		sampler:  sampler,
		writer:   writer,
		mapper:   mapper,
		events:   events,
		profiler: profiler,
		dbSem:    semaphore.NewWeighted(dbWriteLimit),
	}
}

// GetChunkMetadata returns the chunk row, or nil when no row exists. Unknown
// or inactive world versions fail with ErrUnknownWorldVersion.
func (c *Coordinator) GetChunkMetadata(ctx context.Context, version string, key database.ChunkKey) (*database.WorldChunk, error) {
	if c.versions.GetWorldVersion(version) == nil {
		return nil, fmt.Errorf("%w: %q", database.ErrUnknownWorldVersion, version)
	}
	return c.chunks.Get(ctx, version, key)
}

// GetChunkStatus classifies the chunk row for request handlers. The returned
// row is nil exactly when the status is StatusNotFound.
func (c *Coordinator) GetChunkStatus(ctx context.Context, version string, key database.ChunkKey) (Status, *database.WorldChunk, error) {
	chunk, err := c.GetChunkMetadata(ctx, version, key)
	if err != nil {
		return "", nil, err
	}
	if chunk == nil {
		return StatusNotFound, nil, nil
	}
	switch chunk.Status {
	case database.ChunkStatusReady:
		return StatusReady, chunk, nil
	case database.ChunkStatusFailed:
		return StatusFailed, chunk, nil
	default:
		return StatusPending, chunk, nil
	}
}

// TriggerGeneration schedules fabrication for a chunk that has no ready row.
// An already-ready chunk is a no-op. When the covering DEM tile is not
// ingested yet, the missing row is created and DemTileNotReadyError is
// returned; no fabrication is scheduled.
func (c *Coordinator) TriggerGeneration(ctx context.Context, version string, key database.ChunkKey) error {
	return c.trigger(ctx, version, key, false)
}

// ForceRegenerate schedules fabrication even for a ready row. Used when
// metadata says ready but the object is gone; the stale row is overwritten
// once the fresh object is published.
func (c *Coordinator) ForceRegenerate(ctx context.Context, version string, key database.ChunkKey) error {
	return c.trigger(ctx, version, key, true)
}

func (c *Coordinator) trigger(ctx context.Context, version string, key database.ChunkKey, force bool) error {
	if c.versions.GetWorldVersion(version) == nil {
		return fmt.Errorf("%w: %q", database.ErrUnknownWorldVersion, version)
	}

	if !force {
		chunk, err := c.chunks.Get(ctx, version, key)
		if err != nil {
			return err
		}
		if chunk != nil && chunk.IsReady() {
			return nil
		}
	}

	status, tileKey, err := c.demTileStatus(ctx, version, key.ChunkX, key.ChunkZ)
	if err != nil {
		return err
	}
	if status != database.DEMStatusReady {
		return &DemTileNotReadyError{TileKey: tileKey, Status: status}
	}

	if err := c.chunks.MarkPending(ctx, version, key); err != nil {
		return err
	}

	c.schedule(ctx, version, key)
	return nil
}

// IsDemReadyForChunk reports whether the DEM tile covering the chunk origin
// is ingested, along with the tile's key. Asking about a cold region creates
// the missing row as a side effect, so the download worker picks it up.
func (c *Coordinator) IsDemReadyForChunk(ctx context.Context, version string, chunkX, chunkZ int) (bool, string, error) {
	if c.versions.GetWorldVersion(version) == nil {
		return false, "", fmt.Errorf("%w: %q", database.ErrUnknownWorldVersion, version)
	}
	status, tileKey, err := c.demTileStatus(ctx, version, chunkX, chunkZ)
	if err != nil {
		return false, tileKey, err
	}
	return status == database.DEMStatusReady, tileKey, nil
}

// demTileStatus resolves the chunk origin to its covering 1x1 degree tile
// and reads the row through the self-provisioning upsert: a cold request
// leaves a missing row behind for the download worker's next tick. Neighbor
// tiles a chunk edge may straddle are resolved on demand during sampling, so
// only the origin tile gates scheduling.
func (c *Coordinator) demTileStatus(ctx context.Context, version string, chunkX, chunkZ int) (string, string, error) {
	lat, lon := c.mapper.GetChunkOriginLatLon(chunkX, chunkZ)
	tileKey, err := srtm.ComputeTileName(lat, lon)
	if err != nil {
		return "", "", err
	}
	tile, err := c.demTiles.GetOrCreateMissing(ctx, version, tileKey)
	if err != nil {
		return "", tileKey, err
	}
	return tile.Status, tileKey, nil
}

// schedule runs fabrication on a detached goroutine. The request context's
// values carry over but its cancellation does not.
func (c *Coordinator) schedule(ctx context.Context, version string, key database.ChunkKey) {
	taskID := uuid.NewString()
	detached := context.WithoutCancel(ctx)

	slog.Info("chunk fabrication scheduled",
		"task", taskID,
		"version", version,
		"chunk_x", key.ChunkX,
		"chunk_z", key.ChunkZ,
		"resolution", key.Resolution,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.fabricate(detached, taskID, version, key)
	}()
}

func (c *Coordinator) fabricate(ctx context.Context, taskID, version string, key database.ChunkKey) {
	op := c.profiler.Start("chunk.sample")
	chunk, err := c.sampler.Sample(ctx, key.ChunkX, key.ChunkZ, key.Resolution)
	op.End()
	if err != nil {
		c.fail(ctx, taskID, version, key, fmt.Errorf("sampling failed: %w", err))
		return
	}

	op = c.profiler.Start("chunk.upload")
	published, err := c.writer.Write(ctx, version, key.Layer, chunk)
	op.End()
	if err != nil {
		c.fail(ctx, taskID, version, key, fmt.Errorf("upload failed: %w", err))
		return
	}

	// The object is durable before the row says ready. A crash between the
	// two leaves a pending row and an orphaned object, never a ready row
	// pointing at nothing.
	op = c.profiler.Start("chunk.publish")
	err = c.publishMetadata(ctx, version, key, published)
	op.End()
	if err != nil {
		c.fail(ctx, taskID, version, key, fmt.Errorf("metadata publish failed: %w", err))
		return
	}

	slog.Info("chunk ready",
		"task", taskID,
		"version", version,
		"chunk_x", key.ChunkX,
		"chunk_z", key.ChunkZ,
		"resolution", key.Resolution,
		"key", published.ObjectKey,
	)
	c.events.Publish(monitor.Event{
		Type:         monitor.EventChunkReady,
		WorldVersion: version,
		Key:          chunkEventKey(key),
	})
}

func (c *Coordinator) publishMetadata(ctx context.Context, version string, key database.ChunkKey, published PublishedObject) error {
	if err := c.dbSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.dbSem.Release(1)
	return c.chunks.UpsertReady(ctx, version, key, published.ObjectKey, published.Checksum)
}

// fail demotes the pending row and reports the failure. The row stays failed
// until a client retry or an operator intervenes; fabrication errors never
// crash the server.
func (c *Coordinator) fail(ctx context.Context, taskID, version string, key database.ChunkKey, cause error) {
	slog.Error("chunk fabrication failed",
		"task", taskID,
		"version", version,
		"chunk_x", key.ChunkX,
		"chunk_z", key.ChunkZ,
		"resolution", key.Resolution,
		"error", cause,
	)
	if err := c.chunks.MarkFailed(ctx, version, key); err != nil {
		slog.Error("failed to record chunk failure",
			"task", taskID,
			"version", version,
			"chunk_x", key.ChunkX,
			"chunk_z", key.ChunkZ,
			"error", err,
		)
	}
	c.events.Publish(monitor.Event{
		Type:         monitor.EventChunkFailed,
		WorldVersion: version,
		Key:          chunkEventKey(key),
		Detail:       cause.Error(),
	})
}

// Wait blocks until every in-flight fabrication finishes. Called during
// graceful shutdown so detached work is not cut off mid-publish.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func chunkEventKey(key database.ChunkKey) string {
	return fmt.Sprintf("%s/r%d/%d/%d", key.Layer, key.Resolution, key.ChunkX, key.ChunkZ)
}
