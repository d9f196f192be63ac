package dem

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/terracast/server/internal/srtm"
)

// tileFetcher downloads raw tile bytes from the public dataset.
type tileFetcher interface {
	Fetch(ctx context.Context, tileName string) ([]byte, error)
}

// tileWriter persists raw tile bytes in the local store.
type tileWriter interface {
	WriteTile(ctx context.Context, tileName string, data []byte) (string, error)
}

// Resolver ensures a tile covering (lat, lon) is present in the local store
// and the index, fetching it on demand. Fetches for the same tile are
// single-flight: one download runs, concurrent callers share its result.
type Resolver struct {
	index   *Index
	fetcher tileFetcher
	store   tileWriter
	group   singleflight.Group
}

// NewResolver creates a resolver over the shared index
func NewResolver(index *Index, fetcher tileFetcher, store tileWriter) *Resolver {
	return &Resolver{
		index:   index,
		fetcher: fetcher,
		store:   store,
	}
}

// Resolve returns the descriptor of the tile containing (lat, lon). On a
// successful return the descriptor is in the index and the raw bytes are in
// the local store; decoding is the tile cache's concern. Fetch and store
// errors propagate unchanged.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64) (TileDescriptor, error) {
	tileName, err := srtm.ComputeTileName(lat, lon)
	if err != nil {
		return TileDescriptor{}, err
	}

	if desc := r.index.FindContaining(lat, lon); desc != nil {
		return *desc, nil
	}

	objectKey := ObjectKeyForTile(tileName)
	v, err, _ := r.group.Do(objectKey, func() (interface{}, error) {
		if desc := r.index.FindContaining(lat, lon); desc != nil {
			return *desc, nil
		}

		data, err := r.fetcher.Fetch(ctx, tileName)
		if err != nil {
			return nil, err
		}
		if _, err := r.store.WriteTile(ctx, tileName, data); err != nil {
			return nil, err
		}

		desc, err := DescriptorForTile(tileName)
		if err != nil {
			return nil, fmt.Errorf("failed to index fetched tile %q: %w", tileName, err)
		}
		r.index.Add(desc)
		return desc, nil
	})
	if err != nil {
		return TileDescriptor{}, err
	}
	return v.(TileDescriptor), nil
}
