// Package dem manages SRTM elevation tile ingestion: the in-memory tile
// index, the local tile store, the decoded-tile cache, single-flight
// resolution, and the background download worker.
package dem

import (
	"fmt"
	"sync"

	"github.com/terracast/server/internal/srtm"
)

// TileDescriptor identifies one ingested 1°x1° tile: its canonical name, its
// geographic bounds, and the object key holding its raw bytes.
type TileDescriptor struct {
	TileName  string
	Bounds    srtm.TileBounds
	ObjectKey string
}

// DescriptorForTile derives the descriptor for a canonical tile name.
func DescriptorForTile(tileName string) (TileDescriptor, error) {
	bounds, err := srtm.ParseTileName(tileName)
	if err != nil {
		return TileDescriptor{}, fmt.Errorf("failed to derive descriptor for %q: %w", tileName, err)
	}
	return TileDescriptor{
		TileName:  tileName,
		Bounds:    bounds,
		ObjectKey: ObjectKeyForTile(tileName),
	}, nil
}

// Index is the process-wide concurrent map of ingested tile descriptors,
// keyed by object key. Writes are rare (one per tile download); reads happen
// on every chunk vertex resolution.
type Index struct {
	mu    sync.RWMutex
	byKey map[string]TileDescriptor
}

// NewIndex creates an empty tile index
func NewIndex() *Index {
	return &Index{byKey: make(map[string]TileDescriptor)}
}

// Add registers a descriptor. Idempotent: re-adding the same object key
// replaces the previous descriptor.
func (i *Index) Add(desc TileDescriptor) {
	i.mu.Lock()
	i.byKey[desc.ObjectKey] = desc
	i.mu.Unlock()
}

// FindContaining returns the descriptor whose half-open bounds contain the
// point, or nil. Tile bounds partition the plane, so at most one matches.
func (i *Index) FindContaining(lat, lon float64) *TileDescriptor {
	i.mu.RLock()
	defer i.mu.RUnlock()

	for _, desc := range i.byKey {
		if desc.Bounds.Contains(lat, lon) {
			d := desc
			return &d
		}
	}
	return nil
}

// Size returns the number of indexed tiles.
func (i *Index) Size() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.byKey)
}
