package dem

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/terracast/server/internal/srtm"
)

// tileReader fetches raw tile bytes by object key.
type tileReader interface {
	ReadTile(ctx context.Context, objectKey string) ([]byte, error)
}

// TileCache holds decoded tiles keyed by object key. Capacity is bounded:
// a decoded SRTM1 tile is about 26 MB, so the cache, not the object store,
// is what limits memory. Concurrent requests for an uncached tile share one
// read+decode via the flight group.
type TileCache struct {
	store tileReader
	cache *lru.Cache[string, *srtm.Tile]
	group singleflight.Group
}

// NewTileCache creates a decoded-tile cache with the given capacity.
func NewTileCache(store tileReader, capacity int) (*TileCache, error) {
	cache, err := lru.New[string, *srtm.Tile](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}
	return &TileCache{store: store, cache: cache}, nil
}

// GetTile returns the decoded tile for an object key, reading and decoding
// it on first use. The raw bytes carry no position, so the geographic bounds
// are derived from the key and attached here. Decoded tiles are immutable;
// callers must not modify the returned samples.
func (c *TileCache) GetTile(ctx context.Context, objectKey string) (*srtm.Tile, error) {
	if tile, ok := c.cache.Get(objectKey); ok {
		return tile, nil
	}

	// The winning call's context drives the shared read; followers joining
	// mid-flight share its outcome.
	v, err, _ := c.group.Do(objectKey, func() (interface{}, error) {
		if tile, ok := c.cache.Get(objectKey); ok {
			return tile, nil
		}

		name, ok := tileNameFromKey(objectKey)
		if !ok {
			return nil, fmt.Errorf("%w: object key %q is not a dem tile", srtm.ErrInvalidFormat, objectKey)
		}
		bounds, err := srtm.ParseTileName(name)
		if err != nil {
			return nil, fmt.Errorf("failed to derive bounds for %q: %w", objectKey, err)
		}

		data, err := c.store.ReadTile(ctx, objectKey)
		if err != nil {
			return nil, err
		}
		tile, err := srtm.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode dem tile %q: %w", objectKey, err)
		}
		tile.Bounds = bounds

		c.cache.Add(objectKey, tile)
		return tile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*srtm.Tile), nil
}

// Len returns the number of decoded tiles currently cached.
func (c *TileCache) Len() int {
	return c.cache.Len()
}
