package terrain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/terracast/server/internal/objectstore"
)

// fakePublishStore is an in-memory head/put pair tracking upload calls.
type fakePublishStore struct {
	objects  map[string]string
	data     map[string][]byte
	putCalls int
	headErr  error
	putErr   error

	lastContentType  string
	lastCacheControl string
}

func newFakePublishStore() *fakePublishStore {
	return &fakePublishStore{
		objects: make(map[string]string),
		data:    make(map[string][]byte),
	}
}

func (f *fakePublishStore) Head(ctx context.Context, key string) (string, error) {
	if f.headErr != nil {
		return "", f.headErr
	}
	etag, ok := f.objects[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", objectstore.ErrNotFound, key)
	}
	return etag, nil
}

func (f *fakePublishStore) Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.putCalls++
	f.lastContentType = contentType
	f.lastCacheControl = cacheControl

	etag := fmt.Sprintf("etag-%d", f.putCalls)
	f.objects[key] = etag
	f.data[key] = data
	return etag, nil
}

func TestWriteUploadsNewChunk(t *testing.T) {
	store := newFakePublishStore()
	writer := NewObjectWriter(store)
	chunk := testChunk(t, 4)

	published, err := writer.Write(context.Background(), "v1", "terrain", chunk)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	wantKey := "chunks/v1/terrain/r4/3/-2.bin"
	if published.ObjectKey != wantKey {
		t.Errorf("object key = %q, want %q", published.ObjectKey, wantKey)
	}
	if published.Checksum != "etag-1" {
		t.Errorf("checksum = %q, want etag-1", published.Checksum)
	}
	if store.putCalls != 1 {
		t.Errorf("put calls = %d, want 1", store.putCalls)
	}
	if store.lastContentType != "application/octet-stream" {
		t.Errorf("content type = %q", store.lastContentType)
	}
	if store.lastCacheControl != "public, max-age=31536000, immutable" {
		t.Errorf("cache control = %q", store.lastCacheControl)
	}

	decoded, err := Deserialize(store.data[wantKey], chunk.ChunkX, chunk.ChunkZ)
	if err != nil {
		t.Fatalf("uploaded payload does not deserialize: %v", err)
	}
	if decoded.Resolution != chunk.Resolution {
		t.Errorf("uploaded resolution = %d, want %d", decoded.Resolution, chunk.Resolution)
	}
}

func TestWriteReusesExistingObject(t *testing.T) {
	store := newFakePublishStore()
	key := ObjectKey("v1", "terrain", 3, -2, 4)
	store.objects[key] = "existing-etag"

	writer := NewObjectWriter(store)
	published, err := writer.Write(context.Background(), "v1", "terrain", testChunk(t, 4))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if published.Checksum != "existing-etag" {
		t.Errorf("checksum = %q, want existing-etag", published.Checksum)
	}
	if store.putCalls != 0 {
		t.Errorf("put calls = %d, want 0 when the object already exists", store.putCalls)
	}
}

func TestWritePropagatesHeadError(t *testing.T) {
	store := newFakePublishStore()
	store.headErr = errors.New("store unreachable")

	writer := NewObjectWriter(store)
	if _, err := writer.Write(context.Background(), "v1", "terrain", testChunk(t, 4)); !errors.Is(err, store.headErr) {
		t.Errorf("Write error = %v, want head error", err)
	}
	if store.putCalls != 0 {
		t.Errorf("put calls = %d after head failure, want 0", store.putCalls)
	}
}

func TestWritePropagatesPutError(t *testing.T) {
	store := newFakePublishStore()
	store.putErr = errors.New("upload refused")

	writer := NewObjectWriter(store)
	if _, err := writer.Write(context.Background(), "v1", "terrain", testChunk(t, 4)); !errors.Is(err, store.putErr) {
		t.Errorf("Write error = %v, want put error", err)
	}
}

func TestWriteRejectsInvalidChunk(t *testing.T) {
	store := newFakePublishStore()
	writer := NewObjectWriter(store)

	bad := &Chunk{Resolution: 4, Heights: make([]float32, 3)}
	if _, err := writer.Write(context.Background(), "v1", "terrain", bad); !errors.Is(err, ErrInvariant) {
		t.Errorf("Write error = %v, want ErrInvariant", err)
	}
	if store.putCalls != 0 {
		t.Errorf("put calls = %d for an invalid chunk, want 0", store.putCalls)
	}
}
