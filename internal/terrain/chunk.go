// Package terrain fabricates heightmap chunks: sampling elevation from DEM
// tiles, serializing the binary wire format, publishing chunk objects, and
// coordinating the request-time status/generation control plane.
package terrain

import "fmt"

// Chunk is an in-memory heightmap covering one square world cell. Heights
// hold absolute elevation in meters on an (R+1)x(R+1) vertex grid in
// row-major order, index z*(R+1)+x; a vertex with no elevation data is 0.
type Chunk struct {
	ChunkX       int
	ChunkZ       int
	Resolution   int
	Heights      []float32
	MinElevation float64
	MaxElevation float64
}

// GridSize returns the vertex count per side, one more than the resolution
// so that chunk edges overlap with their neighbors.
func (c *Chunk) GridSize() int {
	return c.Resolution + 1
}

// HeightAt returns the elevation at local grid index (x, z).
func (c *Chunk) HeightAt(x, z int) float32 {
	return c.Heights[z*c.GridSize()+x]
}

// NewFlatChunk builds an all-zero chunk at sea level. The startup anchor
// seeder uses it to pin the world origin for a fresh world version.
func NewFlatChunk(chunkX, chunkZ, resolution int) *Chunk {
	gridSize := resolution + 1
	return &Chunk{
		ChunkX:     chunkX,
		ChunkZ:     chunkZ,
		Resolution: resolution,
		Heights:    make([]float32, gridSize*gridSize),
	}
}

// ObjectKey returns the object store key a published chunk lives under:
// chunks/{worldVersion}/{layer}/r{R}/{chunkX}/{chunkZ}.bin. The layout is
// contractual; clients derive CDN paths from it.
func ObjectKey(worldVersion, layer string, chunkX, chunkZ, resolution int) string {
	return fmt.Sprintf("chunks/%s/%s/r%d/%d/%d.bin", worldVersion, layer, resolution, chunkX, chunkZ)
}
