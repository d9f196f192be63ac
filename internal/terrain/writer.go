package terrain

import (
	"context"
	"errors"
	"fmt"

	"github.com/terracast/server/internal/objectstore"
)

const (
	chunkContentType  = "application/octet-stream"
	chunkCacheControl = "public, max-age=31536000, immutable"
)

// objectPublisher is the slice of the object store the writer needs.
type objectPublisher interface {
	Head(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error)
}

// ObjectWriter serializes chunks and publishes them to the object store.
type ObjectWriter struct {
	store objectPublisher
}

// PublishedObject is the stored location and integrity tag of a chunk payload.
type PublishedObject struct {
	ObjectKey string
	Checksum  string
}

// NewObjectWriter creates a chunk object writer
func NewObjectWriter(store objectPublisher) *ObjectWriter {
	return &ObjectWriter{store: store}
}

// Write serializes the chunk and uploads it under the canonical key for the
// given world version and layer. An object already present at the key is
// reused: its checksum is returned without a second upload, so re-running a
// fabrication is idempotent at the storage layer. The metadata row is not
// touched here; publishing the object always precedes publishing metadata.
func (w *ObjectWriter) Write(ctx context.Context, worldVersion, layer string, chunk *Chunk) (PublishedObject, error) {
	key := ObjectKey(worldVersion, layer, chunk.ChunkX, chunk.ChunkZ, chunk.Resolution)

	etag, err := w.store.Head(ctx, key)
	if err == nil {
		return PublishedObject{ObjectKey: key, Checksum: etag}, nil
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		return PublishedObject{}, fmt.Errorf("failed to check chunk object %q: %w", key, err)
	}

	data, err := Serialize(chunk)
	if err != nil {
		return PublishedObject{}, fmt.Errorf("failed to serialize chunk (%d,%d) r%d: %w",
			chunk.ChunkX, chunk.ChunkZ, chunk.Resolution, err)
	}

	etag, err = w.store.Put(ctx, key, data, chunkContentType, chunkCacheControl)
	if err != nil {
		return PublishedObject{}, fmt.Errorf("failed to upload chunk object %q: %w", key, err)
	}
	return PublishedObject{ObjectKey: key, Checksum: etag}, nil
}
