package dem

import (
	"context"
	"errors"
	"fmt"

	"github.com/terracast/server/internal/objectstore"
)

// tileKeyPrefix is where raw .hgt tiles live in the host bucket.
const tileKeyPrefix = "dem/srtm/"

// ObjectKeyForTile returns the object key for a canonical tile name.
func ObjectKeyForTile(tileName string) string {
	return tileKeyPrefix + tileName + ".hgt"
}

// objectStore is the slice of the object store the tile store uses.
type objectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error)
	Head(ctx context.Context, key string) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// TileStore persists raw .hgt tiles in the local object store under
// "dem/srtm/{tileName}.hgt".
type TileStore struct {
	store objectStore
}

// NewTileStore creates a tile store over the given object store
func NewTileStore(store objectStore) *TileStore {
	return &TileStore{store: store}
}

// WriteTile uploads raw tile bytes and returns the object key. Overwrites
// are allowed: a later fetch of the same tile wins.
func (s *TileStore) WriteTile(ctx context.Context, tileName string, data []byte) (string, error) {
	key := ObjectKeyForTile(tileName)
	if _, err := s.store.Put(ctx, key, data, "application/octet-stream", ""); err != nil {
		return "", fmt.Errorf("failed to write dem tile %q: %w", tileName, err)
	}
	return key, nil
}

// ReadTile fetches the raw bytes stored under an object key.
func (s *TileStore) ReadTile(ctx context.Context, objectKey string) ([]byte, error) {
	data, err := s.store.Get(ctx, objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read dem tile object %q: %w", objectKey, err)
	}
	return data, nil
}

// Exists reports whether the tile is already persisted. Only a missing
// object maps to false; other errors propagate.
func (s *TileStore) Exists(ctx context.Context, tileName string) (bool, error) {
	_, err := s.store.Head(ctx, ObjectKeyForTile(tileName))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check dem tile %q: %w", tileName, err)
	}
	return true, nil
}

// ListTileKeys returns the object keys of all persisted tiles.
func (s *TileStore) ListTileKeys(ctx context.Context) ([]string, error) {
	keys, err := s.store.List(ctx, tileKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list dem tiles: %w", err)
	}
	return keys, nil
}
