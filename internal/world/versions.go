package world

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terracast/server/internal/database"
)

// versionLister is the slice of the version storage the cache needs.
type versionLister interface {
	ListActive(ctx context.Context) ([]database.WorldVersion, error)
}

// VersionCache is a process-wide snapshot of active world versions. Lookups
// are constant-time; unknown or inactive versions resolve to nil and callers
// respond with not-found.
type VersionCache struct {
	storage versionLister

	mu       sync.RWMutex
	byName   map[string]database.WorldVersion
	ordered  []string
	loadedAt time.Time
}

// NewVersionCache creates an empty cache. Call Refresh before serving.
func NewVersionCache(storage versionLister) *VersionCache {
	return &VersionCache{
		storage: storage,
		byName:  make(map[string]database.WorldVersion),
	}
}

// Refresh reloads the snapshot of active versions from storage.
func (c *VersionCache) Refresh(ctx context.Context) error {
	versions, err := c.storage.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh world versions: %w", err)
	}

	byName := make(map[string]database.WorldVersion, len(versions))
	ordered := make([]string, 0, len(versions))
	for _, wv := range versions {
		byName[wv.Version] = wv
		ordered = append(ordered, wv.Version)
	}

	c.mu.Lock()
	c.byName = byName
	c.ordered = ordered
	c.loadedAt = time.Now()
	c.mu.Unlock()

	return nil
}

// GetWorldVersion returns the cached row for a version string, or nil if the
// version is unknown or inactive.
func (c *VersionCache) GetWorldVersion(version string) *database.WorldVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wv, ok := c.byName[version]
	if !ok {
		return nil
	}
	return &wv
}

// GetActiveVersions returns the active version strings in storage order.
func (c *VersionCache) GetActiveVersions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// LoadedAt reports when the snapshot was last refreshed.
func (c *VersionCache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Run refreshes the cache on the given interval until the context is
// cancelled. Refresh failures are logged and the stale snapshot stays in
// place until the next tick.
func (c *VersionCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				slog.Warn("world version refresh failed", "error", err)
			}
		}
	}
}
