package dem

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/monitor"
	"github.com/terracast/server/internal/srtm"
)

// Per-tick batch limits. Downloading rows are listed for visibility of
// orphaned claims, but TryClaim only moves missing rows, so they are skipped
// until an operator resets them.
const (
	missingBatchSize     = 5
	downloadingBatchSize = 2
)

// demRepository is the slice of the DEM tile storage the worker uses.
type demRepository interface {
	ListByStatus(ctx context.Context, version, status string, limit int) ([]database.DEMTile, error)
	TryClaim(ctx context.Context, version, tileKey string) (bool, error)
	MarkReady(ctx context.Context, version, tileKey, objectKey string) error
	MarkFailed(ctx context.Context, version, tileKey, errorText string) error
}

// activeVersions yields the current active world version snapshot.
type activeVersions interface {
	GetActiveVersions() []string
}

// eventPublisher receives ingestion lifecycle events.
type eventPublisher interface {
	Publish(event monitor.Event)
}

// Worker is the long-lived DEM download loop. Each tick it scans every
// active world version for missing tiles, claims them one at a time, and
// runs fetch -> validate -> persist -> mark ready. All state lives in the
// database; the worker itself holds no queue.
type Worker struct {
	versions activeVersions
	tiles    demRepository
	fetcher  tileFetcher
	store    tileWriter
	index    *Index
	events   eventPublisher
	interval time.Duration
}

// NewWorker creates a DEM download worker
func NewWorker(
	versions activeVersions,
	tiles demRepository,
	fetcher tileFetcher,
	store tileWriter,
	index *Index,
	events eventPublisher,
	interval time.Duration,
) *Worker {
	return &Worker{
		versions: versions,
		tiles:    tiles,
		fetcher:  fetcher,
		store:    store,
		index:    index,
		events:   events,
		interval: interval,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("dem download worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dem download worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick processes one polling round across all active versions.
func (w *Worker) tick(ctx context.Context) {
	for _, version := range w.versions.GetActiveVersions() {
		missing, err := w.tiles.ListByStatus(ctx, version, database.DEMStatusMissing, missingBatchSize)
		if err != nil {
			slog.Error("failed to list missing dem tiles", "version", version, "error", err)
			continue
		}
		downloading, err := w.tiles.ListByStatus(ctx, version, database.DEMStatusDownloading, downloadingBatchSize)
		if err != nil {
			slog.Error("failed to list downloading dem tiles", "version", version, "error", err)
			continue
		}

		for _, tile := range append(missing, downloading...) {
			if ctx.Err() != nil {
				return
			}
			w.process(ctx, version, tile.TileKey)
		}
	}
}

// process attempts to claim and ingest a single tile. Losing the claim is
// not an error: another worker or a prior orphaned claim owns the row.
func (w *Worker) process(ctx context.Context, version, tileKey string) {
	won, err := w.tiles.TryClaim(ctx, version, tileKey)
	if err != nil {
		slog.Error("failed to claim dem tile", "version", version, "tile", tileKey, "error", err)
		return
	}
	if !won {
		return
	}

	slog.Info("dem tile claimed", "version", version, "tile", tileKey)
	w.events.Publish(monitor.Event{Type: monitor.EventDEMClaimed, WorldVersion: version, Key: tileKey})

	data, err := w.fetcher.Fetch(ctx, tileKey)
	if err != nil {
		w.fail(ctx, version, tileKey, err)
		return
	}
	if !srtm.ValidByteLen(len(data)) {
		w.fail(ctx, version, tileKey, fmt.Errorf("unexpected tile size: %d bytes", len(data)))
		return
	}

	objectKey, err := w.store.WriteTile(ctx, tileKey, data)
	if err != nil {
		w.fail(ctx, version, tileKey, err)
		return
	}

	if err := w.tiles.MarkReady(ctx, version, tileKey, objectKey); err != nil {
		slog.Error("failed to mark dem tile ready", "version", version, "tile", tileKey, "error", err)
		return
	}

	desc, err := DescriptorForTile(tileKey)
	if err != nil {
		slog.Error("failed to index ready dem tile", "version", version, "tile", tileKey, "error", err)
	} else {
		w.index.Add(desc)
	}

	slog.Info("dem tile ready", "version", version, "tile", tileKey, "key", objectKey, "bytes", len(data))
	w.events.Publish(monitor.Event{Type: monitor.EventDEMReady, WorldVersion: version, Key: tileKey})
}

// fail records a download failure. The row becomes terminal until an
// operator resets it.
func (w *Worker) fail(ctx context.Context, version, tileKey string, cause error) {
	slog.Error("dem tile download failed", "version", version, "tile", tileKey, "error", cause)
	if err := w.tiles.MarkFailed(ctx, version, tileKey, cause.Error()); err != nil {
		slog.Error("failed to record dem tile failure", "version", version, "tile", tileKey, "error", err)
	}
	w.events.Publish(monitor.Event{
		Type:         monitor.EventDEMFailed,
		WorldVersion: version,
		Key:          tileKey,
		Detail:       cause.Error(),
	})
}
