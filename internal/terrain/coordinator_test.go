package terrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/terracast/server/internal/database"
	"github.com/terracast/server/internal/geodesy"
	"github.com/terracast/server/internal/monitor"
	"github.com/terracast/server/internal/performance"
)

// callLog records cross-fake call order so tests can assert that the object
// upload happens before the metadata publish.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) index(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.calls {
		if c == call {
			return i
		}
	}
	return -1
}

// fakeChunkRepo mimics the chunk row state machine: pending rows can fail,
// failed rows can go back to pending, ready rows are never demoted.
type fakeChunkRepo struct {
	mu   sync.Mutex
	rows map[string]*database.WorldChunk
	log  *callLog
}

func newFakeChunkRepo(log *callLog) *fakeChunkRepo {
	return &fakeChunkRepo{rows: make(map[string]*database.WorldChunk), log: log}
}

func chunkRowKey(version string, key database.ChunkKey) string {
	return fmt.Sprintf("%s/%s/r%d/%d/%d", version, key.Layer, key.Resolution, key.ChunkX, key.ChunkZ)
}

func (f *fakeChunkRepo) seed(version string, key database.ChunkKey, status, objectKey, checksum string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := &database.WorldChunk{
		ChunkX:     key.ChunkX,
		ChunkZ:     key.ChunkZ,
		Layer:      key.Layer,
		Resolution: key.Resolution,
		Status:     status,
	}
	if objectKey != "" {
		row.S3Key = &objectKey
	}
	if checksum != "" {
		row.Checksum = &checksum
	}
	f.rows[chunkRowKey(version, key)] = row
}

func (f *fakeChunkRepo) row(version string, key database.ChunkKey) *database.WorldChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[chunkRowKey(version, key)]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}

func (f *fakeChunkRepo) Get(ctx context.Context, version string, key database.ChunkKey) (*database.WorldChunk, error) {
	return f.row(version, key), nil
}

func (f *fakeChunkRepo) UpsertReady(ctx context.Context, version string, key database.ChunkKey, objectKey, checksum string) error {
	if f.log != nil {
		f.log.record("upsert_ready")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[chunkRowKey(version, key)] = &database.WorldChunk{
		ChunkX:     key.ChunkX,
		ChunkZ:     key.ChunkZ,
		Layer:      key.Layer,
		Resolution: key.Resolution,
		S3Key:      &objectKey,
		Checksum:   &checksum,
		Status:     database.ChunkStatusReady,
	}
	return nil
}

func (f *fakeChunkRepo) MarkPending(ctx context.Context, version string, key database.ChunkKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := chunkRowKey(version, key)
	row, ok := f.rows[k]
	if !ok {
		f.rows[k] = &database.WorldChunk{
			ChunkX:     key.ChunkX,
			ChunkZ:     key.ChunkZ,
			Layer:      key.Layer,
			Resolution: key.Resolution,
			Status:     database.ChunkStatusPending,
		}
		return nil
	}
	if row.Status == database.ChunkStatusFailed {
		row.Status = database.ChunkStatusPending
	}
	return nil
}

func (f *fakeChunkRepo) MarkFailed(ctx context.Context, version string, key database.ChunkKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[chunkRowKey(version, key)]; ok && row.Status == database.ChunkStatusPending {
		row.Status = database.ChunkStatusFailed
	}
	return nil
}

func (f *fakeChunkRepo) CountByVersion(ctx context.Context, version string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for k := range f.rows {
		if len(k) > len(version) && k[:len(version)+1] == version+"/" {
			count++
		}
	}
	return count, nil
}

// fakeDemGate reports a configurable status per tile and creates missing rows
// on first contact, like the real upsert.
type fakeDemGate struct {
	mu      sync.Mutex
	status  map[string]string
	created []string
	err     error
}

func newFakeDemGate() *fakeDemGate {
	return &fakeDemGate{status: make(map[string]string)}
}

func (f *fakeDemGate) setStatus(version, tileKey, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[version+"/"+tileKey] = status
}

func (f *fakeDemGate) GetOrCreateMissing(ctx context.Context, version, tileKey string) (*database.DEMTile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := version + "/" + tileKey
	f.created = append(f.created, k)
	status, ok := f.status[k]
	if !ok {
		status = database.DEMStatusMissing
		f.status[k] = status
	}
	return &database.DEMTile{TileKey: tileKey, Status: status}, nil
}

// fakeSampler returns a small constant chunk.
type fakeSampler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeSampler) Sample(ctx context.Context, chunkX, chunkZ, resolution int) (*Chunk, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	chunk := NewFlatChunk(chunkX, chunkZ, resolution)
	for i := range chunk.Heights {
		chunk.Heights[i] = 150
	}
	chunk.MinElevation, chunk.MaxElevation = 150, 150
	return chunk, nil
}

func (f *fakeSampler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// loggingPublishStore records put calls in the shared order log.
type loggingPublishStore struct {
	*fakePublishStore
	log *callLog
}

func (s *loggingPublishStore) Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	s.log.record("put")
	return s.fakePublishStore.Put(ctx, key, data, contentType, cacheControl)
}

// fakeEvents collects published monitor events.
type fakeEvents struct {
	mu     sync.Mutex
	events []monitor.Event
}

func (f *fakeEvents) Publish(event monitor.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

// fakeVersionGetter is a static active-version set.
type fakeVersionGetter map[string]bool

func (f fakeVersionGetter) GetWorldVersion(version string) *database.WorldVersion {
	if !f[version] {
		return nil
	}
	return &database.WorldVersion{ID: 1, Version: version, IsActive: true}
}

type coordinatorHarness struct {
	coordinator *Coordinator
	repo        *fakeChunkRepo
	gate        *fakeDemGate
	sampler     *fakeSampler
	store       *fakePublishStore
	events      *fakeEvents
	log         *callLog
}

// originTile is the DEM tile covering the chunk (0,0) origin for the harness
// mapper anchored at (46.5, -112.5).
const originTile = "N46W113"

func newCoordinatorHarness(t *testing.T) *coordinatorHarness {
	t.Helper()

	log := &callLog{}
	repo := newFakeChunkRepo(log)
	gate := newFakeDemGate()
	sampler := &fakeSampler{}
	store := newFakePublishStore()
	events := &fakeEvents{}

	mapper, err := geodesy.NewMapper(46.5, -112.5, 1000, geodesy.DefaultMetersPerDegreeLat)
	if err != nil {
		t.Fatalf("NewMapper failed: %v", err)
	}

	coordinator := NewCoordinator(
		fakeVersionGetter{"v1": true},
		repo,
		gate,
		sampler,
		NewObjectWriter(&loggingPublishStore{fakePublishStore: store, log: log}),
		mapper,
		events,
		performance.NewProfiler(true),
		4,
	)

	return &coordinatorHarness{
		coordinator: coordinator,
		repo:        repo,
		gate:        gate,
		sampler:     sampler,
		store:       store,
		events:      events,
		log:         log,
	}
}

func terrainKey(resolution int) database.ChunkKey {
	return database.ChunkKey{ChunkX: 0, ChunkZ: 0, Layer: database.LayerTerrain, Resolution: resolution}
}

func TestTriggerGenerationGatedOnDemTile(t *testing.T) {
	h := newCoordinatorHarness(t)
	key := terrainKey(16)

	err := h.coordinator.TriggerGeneration(context.Background(), "v1", key)

	var notReady *DemTileNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("error = %v, want DemTileNotReadyError", err)
	}
	if notReady.TileKey != originTile {
		t.Errorf("tile key = %q, want %q", notReady.TileKey, originTile)
	}
	if notReady.Status != database.DEMStatusMissing {
		t.Errorf("tile status = %q, want missing", notReady.Status)
	}

	if len(h.gate.created) != 1 || h.gate.created[0] != "v1/"+originTile {
		t.Errorf("gate calls = %v, want the missing row created once", h.gate.created)
	}

	h.coordinator.Wait()
	if h.sampler.callCount() != 0 {
		t.Error("fabrication ran despite the DEM gate")
	}
	if row := h.repo.row("v1", key); row != nil {
		t.Errorf("chunk row = %+v, want none before the tile is ready", row)
	}
}

func TestTriggerGenerationFabricatesChunk(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.gate.setStatus("v1", originTile, database.DEMStatusReady)
	key := terrainKey(16)

	if err := h.coordinator.TriggerGeneration(context.Background(), "v1", key); err != nil {
		t.Fatalf("TriggerGeneration failed: %v", err)
	}
	h.coordinator.Wait()

	row := h.repo.row("v1", key)
	if row == nil || row.Status != database.ChunkStatusReady {
		t.Fatalf("chunk row = %+v, want ready", row)
	}
	wantObjectKey := ObjectKey("v1", key.Layer, key.ChunkX, key.ChunkZ, key.Resolution)
	if row.S3Key == nil || *row.S3Key != wantObjectKey {
		t.Errorf("row object key = %v, want %q", row.S3Key, wantObjectKey)
	}
	if row.Checksum == nil || *row.Checksum == "" {
		t.Error("ready row has no checksum")
	}

	putAt, upsertAt := h.log.index("put"), h.log.index("upsert_ready")
	if putAt == -1 || upsertAt == -1 || putAt > upsertAt {
		t.Errorf("publish order = %v, want the object stored before the metadata", h.log.calls)
	}

	if types := h.events.types(); len(types) != 1 || types[0] != monitor.EventChunkReady {
		t.Errorf("events = %v, want [chunk_ready]", types)
	}
}

func TestTriggerGenerationReadyIsNoOp(t *testing.T) {
	h := newCoordinatorHarness(t)
	key := terrainKey(16)
	h.repo.seed("v1", key, database.ChunkStatusReady, "chunks/v1/terrain/r16/0/0.bin", "etag")

	if err := h.coordinator.TriggerGeneration(context.Background(), "v1", key); err != nil {
		t.Fatalf("TriggerGeneration failed: %v", err)
	}
	h.coordinator.Wait()

	if h.sampler.callCount() != 0 {
		t.Error("ready chunk was re-fabricated")
	}
	if len(h.gate.created) != 0 {
		t.Errorf("gate calls = %v, want none for a ready chunk", h.gate.created)
	}
}

func TestForceRegeneratePublishesFreshObject(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.gate.setStatus("v1", originTile, database.DEMStatusReady)
	key := terrainKey(16)
	// Metadata says ready but the store has no object: drift.
	h.repo.seed("v1", key, database.ChunkStatusReady, "chunks/v1/terrain/r16/0/0.bin", "stale")

	if err := h.coordinator.ForceRegenerate(context.Background(), "v1", key); err != nil {
		t.Fatalf("ForceRegenerate failed: %v", err)
	}
	h.coordinator.Wait()

	if h.sampler.callCount() != 1 {
		t.Fatalf("sampler calls = %d, want 1", h.sampler.callCount())
	}
	row := h.repo.row("v1", key)
	if row == nil || row.Status != database.ChunkStatusReady {
		t.Fatalf("chunk row = %+v, want ready", row)
	}
	if row.Checksum == nil || *row.Checksum == "stale" {
		t.Error("checksum was not replaced by the regenerated object's")
	}
	if h.store.putCalls != 1 {
		t.Errorf("put calls = %d, want 1", h.store.putCalls)
	}
}

func TestTriggerGenerationRetriesFailedRow(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.gate.setStatus("v1", originTile, database.DEMStatusReady)
	key := terrainKey(16)
	h.repo.seed("v1", key, database.ChunkStatusFailed, "", "")

	if err := h.coordinator.TriggerGeneration(context.Background(), "v1", key); err != nil {
		t.Fatalf("TriggerGeneration failed: %v", err)
	}
	h.coordinator.Wait()

	row := h.repo.row("v1", key)
	if row == nil || row.Status != database.ChunkStatusReady {
		t.Fatalf("chunk row = %+v, want ready after retry", row)
	}
}

func TestFabricationFailureMarksChunkFailed(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.gate.setStatus("v1", originTile, database.DEMStatusReady)
	h.sampler.err = errors.New("dem tile vanished")
	key := terrainKey(16)

	if err := h.coordinator.TriggerGeneration(context.Background(), "v1", key); err != nil {
		t.Fatalf("TriggerGeneration failed: %v", err)
	}
	h.coordinator.Wait()

	row := h.repo.row("v1", key)
	if row == nil || row.Status != database.ChunkStatusFailed {
		t.Fatalf("chunk row = %+v, want failed", row)
	}
	if types := h.events.types(); len(types) != 1 || types[0] != monitor.EventChunkFailed {
		t.Errorf("events = %v, want [chunk_failed]", types)
	}
	if h.log.index("upsert_ready") != -1 {
		t.Error("failed fabrication still published metadata")
	}
}

func TestConcurrentTriggersConverge(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.gate.setStatus("v1", originTile, database.DEMStatusReady)
	key := terrainKey(16)

	for i := 0; i < 2; i++ {
		if err := h.coordinator.TriggerGeneration(context.Background(), "v1", key); err != nil {
			t.Fatalf("TriggerGeneration %d failed: %v", i, err)
		}
	}
	h.coordinator.Wait()

	row := h.repo.row("v1", key)
	if row == nil || row.Status != database.ChunkStatusReady {
		t.Fatalf("chunk row = %+v, want ready", row)
	}
	for _, typ := range h.events.types() {
		if typ != monitor.EventChunkReady {
			t.Errorf("event %q, want only chunk_ready", typ)
		}
	}
}

func TestCoordinatorRejectsUnknownVersion(t *testing.T) {
	h := newCoordinatorHarness(t)
	key := terrainKey(16)
	ctx := context.Background()

	if err := h.coordinator.TriggerGeneration(ctx, "v9", key); !errors.Is(err, database.ErrUnknownWorldVersion) {
		t.Errorf("TriggerGeneration error = %v, want ErrUnknownWorldVersion", err)
	}
	if _, err := h.coordinator.GetChunkMetadata(ctx, "v9", key); !errors.Is(err, database.ErrUnknownWorldVersion) {
		t.Errorf("GetChunkMetadata error = %v, want ErrUnknownWorldVersion", err)
	}
	if _, _, err := h.coordinator.GetChunkStatus(ctx, "v9", key); !errors.Is(err, database.ErrUnknownWorldVersion) {
		t.Errorf("GetChunkStatus error = %v, want ErrUnknownWorldVersion", err)
	}
}

func TestGetChunkStatus(t *testing.T) {
	tests := []struct {
		name       string
		seedStatus string
		want       Status
		wantRow    bool
	}{
		{"no row", "", StatusNotFound, false},
		{"pending row", database.ChunkStatusPending, StatusPending, true},
		{"ready row", database.ChunkStatusReady, StatusReady, true},
		{"failed row", database.ChunkStatusFailed, StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newCoordinatorHarness(t)
			key := terrainKey(16)
			if tt.seedStatus != "" {
				h.repo.seed("v1", key, tt.seedStatus, "", "")
			}

			status, row, err := h.coordinator.GetChunkStatus(context.Background(), "v1", key)
			if err != nil {
				t.Fatalf("GetChunkStatus failed: %v", err)
			}
			if status != tt.want {
				t.Errorf("status = %q, want %q", status, tt.want)
			}
			if (row != nil) != tt.wantRow {
				t.Errorf("row presence = %v, want %v", row != nil, tt.wantRow)
			}
		})
	}
}

func TestIsDemReadyForChunk(t *testing.T) {
	h := newCoordinatorHarness(t)
	ctx := context.Background()

	ready, tileKey, err := h.coordinator.IsDemReadyForChunk(ctx, "v1", 0, 0)
	if err != nil {
		t.Fatalf("IsDemReadyForChunk failed: %v", err)
	}
	if ready {
		t.Error("cold region reported ready")
	}
	if tileKey != originTile {
		t.Errorf("tile key = %q, want %q", tileKey, originTile)
	}
	if len(h.gate.created) != 1 || h.gate.created[0] != "v1/"+originTile {
		t.Errorf("gate calls = %v, want the missing row created once", h.gate.created)
	}

	h.gate.setStatus("v1", originTile, database.DEMStatusReady)
	ready, tileKey, err = h.coordinator.IsDemReadyForChunk(ctx, "v1", 0, 0)
	if err != nil {
		t.Fatalf("IsDemReadyForChunk failed: %v", err)
	}
	if !ready || tileKey != originTile {
		t.Errorf("ready tile reported (%v, %q), want (true, %q)", ready, tileKey, originTile)
	}

	if _, _, err := h.coordinator.IsDemReadyForChunk(ctx, "v9", 0, 0); !errors.Is(err, database.ErrUnknownWorldVersion) {
		t.Errorf("unknown version error = %v, want ErrUnknownWorldVersion", err)
	}
}

func TestTriggerPropagatesGateError(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.gate.err = errors.New("database offline")
	key := terrainKey(16)

	if err := h.coordinator.TriggerGeneration(context.Background(), "v1", key); !errors.Is(err, h.gate.err) {
		t.Errorf("TriggerGeneration error = %v, want gate error", err)
	}
}
