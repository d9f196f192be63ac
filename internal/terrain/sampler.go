package terrain

import (
	"context"
	"fmt"

	"github.com/terracast/server/internal/dem"
	"github.com/terracast/server/internal/geodesy"
	"github.com/terracast/server/internal/srtm"
)

// tileResolver ensures the DEM tile covering a point is locally present.
type tileResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (dem.TileDescriptor, error)
}

// tileLoader yields decoded tiles by object key.
type tileLoader interface {
	GetTile(ctx context.Context, objectKey string) (*srtm.Tile, error)
}

// Sampler builds chunk heightmaps from DEM elevation data.
type Sampler struct {
	mapper   *geodesy.Mapper
	resolver tileResolver
	tiles    tileLoader
}

// NewSampler creates a chunk sampler
func NewSampler(mapper *geodesy.Mapper, resolver tileResolver, tiles tileLoader) *Sampler {
	return &Sampler{
		mapper:   mapper,
		resolver: resolver,
		tiles:    tiles,
	}
}

// Sample fabricates the heightmap for a chunk. Vertex positions are computed
// from global integer cell indices (chunkX*R+x), never from a per-chunk base
// plus offset: that keeps the world coordinates of a shared edge bit-identical
// between neighbors, which is what makes chunk seams match exactly. The tile
// is resolved per vertex, so an edge lying on a DEM tile seam samples the
// neighbor tile's border row instead of clamping past the current tile.
//
// Missing elevation stays out of the min/max range and lands in the heightmap
// as 0. Resolution must be at least 1; resolver, load, and range failures
// propagate unchanged.
func (s *Sampler) Sample(ctx context.Context, chunkX, chunkZ, resolution int) (*Chunk, error) {
	if resolution < 1 {
		return nil, fmt.Errorf("%w: resolution %d", srtm.ErrOutOfRange, resolution)
	}
	if resolution > MaxResolution {
		return nil, fmt.Errorf("%w: resolution %d exceeds %d", srtm.ErrOutOfRange, resolution, MaxResolution)
	}

	gridSize := resolution + 1
	cellSize := s.mapper.ChunkSizeMeters() / float64(resolution)
	heights := make([]float32, gridSize*gridSize)

	var minElevation, maxElevation float64
	sampled := false

	for z := 0; z < gridSize; z++ {
		for x := 0; x < gridSize; x++ {
			globalCellX := chunkX*resolution + x
			globalCellZ := chunkZ*resolution + z
			worldX := float64(globalCellX) * cellSize
			worldZ := float64(globalCellZ) * cellSize
			lat, lon := s.mapper.WorldMetersToLatLon(worldX, worldZ)

			desc, err := s.resolver.Resolve(ctx, lat, lon)
			if err != nil {
				return nil, err
			}
			tile, err := s.tiles.GetTile(ctx, desc.ObjectKey)
			if err != nil {
				return nil, err
			}

			elevation := srtm.SampleElevation(lat, lon, tile)
			if elevation == float64(srtm.MissingValue) {
				continue // heights entry stays 0
			}

			heights[z*gridSize+x] = float32(elevation)
			if !sampled || elevation < minElevation {
				minElevation = elevation
			}
			if !sampled || elevation > maxElevation {
				maxElevation = elevation
			}
			sampled = true
		}
	}

	return &Chunk{
		ChunkX:       chunkX,
		ChunkZ:       chunkZ,
		Resolution:   resolution,
		Heights:      heights,
		MinElevation: minElevation,
		MaxElevation: maxElevation,
	}, nil
}
