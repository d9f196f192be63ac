package terrain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/terracast/server/internal/dem"
	"github.com/terracast/server/internal/geodesy"
	"github.com/terracast/server/internal/srtm"
	"github.com/terracast/server/internal/testutil"
)

// fakeResolver maps coordinates to descriptors exactly like the real resolver
// does once every tile is local.
type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, lat, lon float64) (dem.TileDescriptor, error) {
	if f.err != nil {
		return dem.TileDescriptor{}, f.err
	}
	name, err := srtm.ComputeTileName(lat, lon)
	if err != nil {
		return dem.TileDescriptor{}, err
	}
	return dem.DescriptorForTile(name)
}

// fakeTileLoader serves decoded tiles by object key.
type fakeTileLoader struct {
	tiles  map[string]*srtm.Tile
	loaded map[string]bool
	err    error
}

func newFakeTileLoader() *fakeTileLoader {
	return &fakeTileLoader{
		tiles:  make(map[string]*srtm.Tile),
		loaded: make(map[string]bool),
	}
}

func (f *fakeTileLoader) add(t *testing.T, tileName string, width int, samples []int16) {
	t.Helper()
	bounds, err := srtm.ParseTileName(tileName)
	if err != nil {
		t.Fatalf("ParseTileName(%q) failed: %v", tileName, err)
	}
	f.tiles[dem.ObjectKeyForTile(tileName)] = &srtm.Tile{
		Bounds:  bounds,
		Width:   width,
		Height:  width,
		Samples: samples,
	}
}

func (f *fakeTileLoader) GetTile(ctx context.Context, objectKey string) (*srtm.Tile, error) {
	if f.err != nil {
		return nil, f.err
	}
	tile, ok := f.tiles[objectKey]
	if !ok {
		return nil, fmt.Errorf("no tile at %s", objectKey)
	}
	f.loaded[objectKey] = true
	return tile, nil
}

func testMapper(t *testing.T, chunkSizeMeters float64) *geodesy.Mapper {
	t.Helper()
	mapper, err := geodesy.NewMapper(0, 0, chunkSizeMeters, geodesy.DefaultMetersPerDegreeLat)
	if err != nil {
		t.Fatalf("NewMapper failed: %v", err)
	}
	return mapper
}

func TestSampleConstantTile(t *testing.T) {
	loader := newFakeTileLoader()
	loader.add(t, "N00E000", 3, testutil.ConstantSamples(3, 1500))
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, loader)

	chunk, err := sampler.Sample(context.Background(), 0, 0, 10)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	if got := len(chunk.Heights); got != 121 {
		t.Fatalf("heights length = %d, want 121", got)
	}
	for i, h := range chunk.Heights {
		if h != 1500 {
			t.Fatalf("heights[%d] = %f, want 1500", i, h)
		}
	}
	if chunk.MinElevation != 1500 || chunk.MaxElevation != 1500 {
		t.Errorf("range = [%f, %f], want [1500, 1500]", chunk.MinElevation, chunk.MaxElevation)
	}
}

func TestSampleSeamBitIdentical(t *testing.T) {
	// Elevation varies along both axes so an indexing slip cannot hide.
	const width = 101
	samples := make([]int16, width*width)
	for y := 0; y < width; y++ {
		for x := 0; x < width; x++ {
			samples[y*width+x] = int16(10*y + x)
		}
	}
	loader := newFakeTileLoader()
	loader.add(t, "N00E000", width, samples)
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, loader)

	const resolution = 16
	west, err := sampler.Sample(context.Background(), 0, 0, resolution)
	if err != nil {
		t.Fatalf("Sample(0,0) failed: %v", err)
	}
	east, err := sampler.Sample(context.Background(), 1, 0, resolution)
	if err != nil {
		t.Fatalf("Sample(1,0) failed: %v", err)
	}

	// The shared edge is column R of the west chunk and column 0 of the east
	// chunk: the same global cells, so the same float bits.
	for z := 0; z <= resolution; z++ {
		w := west.HeightAt(resolution, z)
		e := east.HeightAt(0, z)
		if w != e {
			t.Errorf("seam mismatch at z=%d: west %v, east %v", z, w, e)
		}
	}

	if west.HeightAt(0, 0) == west.HeightAt(resolution, 0) {
		t.Error("gradient tile produced a flat chunk row; test geometry is wrong")
	}
}

func TestSampleNorthSouthOrientation(t *testing.T) {
	// GradientSamples grows southward from the tile's north edge, and chunk +z
	// points north: heights must strictly decrease as z grows. Catches a
	// flipped vertical axis that a symmetric fixture would hide.
	const width = 101
	loader := newFakeTileLoader()
	loader.add(t, "N00E000", width, testutil.GradientSamples(width, 1000))
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, loader)

	const resolution = 4
	chunk, err := sampler.Sample(context.Background(), 0, 0, resolution)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	// The chunk's south edge sits exactly on the tile's southernmost row.
	wantSouth := float32(1000 + width - 1)
	for x := 0; x <= resolution; x++ {
		if got := chunk.HeightAt(x, 0); got != wantSouth {
			t.Errorf("HeightAt(%d, 0) = %f, want %f", x, got, wantSouth)
		}
		for z := 0; z < resolution; z++ {
			if chunk.HeightAt(x, z+1) >= chunk.HeightAt(x, z) {
				t.Errorf("HeightAt(%d, %d) = %f not below HeightAt(%d, %d) = %f; north must slope downhill here",
					x, z+1, chunk.HeightAt(x, z+1), x, z, chunk.HeightAt(x, z))
			}
		}
	}

	// Rows are constant west to east.
	for z := 0; z <= resolution; z++ {
		if chunk.HeightAt(0, z) != chunk.HeightAt(resolution, z) {
			t.Errorf("row z=%d is not constant across x", z)
		}
	}

	if chunk.MaxElevation != float64(wantSouth) {
		t.Errorf("MaxElevation = %f, want %f", chunk.MaxElevation, wantSouth)
	}
	if chunk.MinElevation >= chunk.MaxElevation {
		t.Errorf("range [%f, %f] did not spread", chunk.MinElevation, chunk.MaxElevation)
	}
}

func TestSampleAllMissing(t *testing.T) {
	loader := newFakeTileLoader()
	loader.add(t, "N00E000", 3, testutil.ConstantSamples(3, srtm.MissingValue))
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, loader)

	chunk, err := sampler.Sample(context.Background(), 0, 0, 4)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	for i, h := range chunk.Heights {
		if h != 0 {
			t.Fatalf("heights[%d] = %f, want 0", i, h)
		}
	}
	if chunk.MinElevation != 0 || chunk.MaxElevation != 0 {
		t.Errorf("range = [%f, %f], want [0, 0]", chunk.MinElevation, chunk.MaxElevation)
	}
}

func TestSampleMissingExcludedFromRange(t *testing.T) {
	// 2x2 tile: the north row is missing, the south row is 100. Vertices on
	// the chunk's south edge sit exactly on the tile's south row and sample
	// 100; every other vertex interpolates a missing corner.
	loader := newFakeTileLoader()
	loader.add(t, "N00E000", 2, []int16{
		srtm.MissingValue, srtm.MissingValue,
		100, 100,
	})
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, loader)

	chunk, err := sampler.Sample(context.Background(), 0, 0, 4)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	for x := 0; x <= 4; x++ {
		if got := chunk.HeightAt(x, 0); got != 100 {
			t.Errorf("HeightAt(%d, 0) = %f, want 100", x, got)
		}
		if got := chunk.HeightAt(x, 1); got != 0 {
			t.Errorf("HeightAt(%d, 1) = %f, want 0 for a missing sample", x, got)
		}
	}
	if chunk.MinElevation != 100 || chunk.MaxElevation != 100 {
		t.Errorf("range = [%f, %f], want [100, 100]: missing samples must not count",
			chunk.MinElevation, chunk.MaxElevation)
	}
}

func TestSampleResolvesTilePerVertex(t *testing.T) {
	// Chunk geometry chosen so the easternmost vertex column lands exactly on
	// the longitude 1.0 tile seam. Half-open bounds put it in the east tile,
	// whose western column duplicates the west tile's eastern column.
	loader := newFakeTileLoader()
	loader.add(t, "N00E000", 3, []int16{
		200, 200, 300,
		200, 200, 300,
		200, 200, 300,
	})
	loader.add(t, "N00E001", 3, []int16{
		300, 400, 400,
		300, 400, 400,
		300, 400, 400,
	})
	sampler := NewSampler(testMapper(t, 55660), &fakeResolver{}, loader)

	chunk, err := sampler.Sample(context.Background(), 1, 0, 2)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	wantCols := []float32{200, 250, 300}
	for z := 0; z <= 2; z++ {
		for x := 0; x <= 2; x++ {
			if got := chunk.HeightAt(x, z); got != wantCols[x] {
				t.Errorf("HeightAt(%d, %d) = %f, want %f", x, z, got, wantCols[x])
			}
		}
	}

	for _, key := range []string{dem.ObjectKeyForTile("N00E000"), dem.ObjectKeyForTile("N00E001")} {
		if !loader.loaded[key] {
			t.Errorf("tile %s was never loaded", key)
		}
	}
	if chunk.MinElevation != 200 || chunk.MaxElevation != 300 {
		t.Errorf("range = [%f, %f], want [200, 300]", chunk.MinElevation, chunk.MaxElevation)
	}
}

func TestSampleRejectsBadResolution(t *testing.T) {
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, newFakeTileLoader())

	for _, resolution := range []int{0, -1, MaxResolution + 1} {
		if _, err := sampler.Sample(context.Background(), 0, 0, resolution); !errors.Is(err, srtm.ErrOutOfRange) {
			t.Errorf("Sample(r=%d) error = %v, want ErrOutOfRange", resolution, err)
		}
	}
}

func TestSamplePropagatesResolverError(t *testing.T) {
	wantErr := errors.New("upstream unreachable")
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{err: wantErr}, newFakeTileLoader())

	if _, err := sampler.Sample(context.Background(), 0, 0, 4); !errors.Is(err, wantErr) {
		t.Errorf("Sample error = %v, want resolver error", err)
	}
}

func TestSamplePropagatesLoaderError(t *testing.T) {
	loader := newFakeTileLoader()
	loader.err = errors.New("store unavailable")
	sampler := NewSampler(testMapper(t, 1000), &fakeResolver{}, loader)

	if _, err := sampler.Sample(context.Background(), 0, 0, 4); !errors.Is(err, loader.err) {
		t.Errorf("Sample error = %v, want loader error", err)
	}
}
