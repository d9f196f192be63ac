package geodesy

import (
	"fmt"
	"math"
)

// DefaultMetersPerDegreeLat is the flat-earth approximation of one degree
// of latitude in meters.
const DefaultMetersPerDegreeLat = 111320.0

// Mapper converts between world meters and geographic coordinates using a
// flat-earth approximation anchored at a configured origin.
//
// The world plane is axis-aligned with the compass: +X is east, +Z is
// north. Longitude scale is fixed at the origin latitude; there is no
// per-chunk re-projection, which keeps the world-to-earth mapping linear
// and chunk edges exactly shared between neighbors.
type Mapper struct {
	originLat          float64
	originLon          float64
	chunkSizeMeters    float64
	metersPerDegreeLat float64
	metersPerDegreeLon float64
}

// NewMapper builds a Mapper from the world origin and chunk size.
// metersPerDegreeLat is typically DefaultMetersPerDegreeLat.
func NewMapper(originLat, originLon, chunkSizeMeters, metersPerDegreeLat float64) (*Mapper, error) {
	if originLat < -90 || originLat > 90 {
		return nil, fmt.Errorf("origin latitude %f out of range [-90, 90]", originLat)
	}
	if originLon < -180 || originLon > 180 {
		return nil, fmt.Errorf("origin longitude %f out of range [-180, 180]", originLon)
	}
	if chunkSizeMeters <= 0 {
		return nil, fmt.Errorf("chunk size %f must be positive", chunkSizeMeters)
	}
	if metersPerDegreeLat <= 0 {
		return nil, fmt.Errorf("meters per degree latitude %f must be positive", metersPerDegreeLat)
	}

	return &Mapper{
		originLat:          originLat,
		originLon:          originLon,
		chunkSizeMeters:    chunkSizeMeters,
		metersPerDegreeLat: metersPerDegreeLat,
		// Longitude degrees shrink with latitude; fix the scale at the origin.
		metersPerDegreeLon: metersPerDegreeLat * math.Cos(originLat*math.Pi/180),
	}, nil
}

// ChunkSizeMeters returns the side length of a chunk in meters.
func (m *Mapper) ChunkSizeMeters() float64 {
	return m.chunkSizeMeters
}

// OriginLatLon returns the geographic coordinates of world (0, 0).
func (m *Mapper) OriginLatLon() (lat, lon float64) {
	return m.originLat, m.originLon
}

// WorldMetersToLatLon converts a world position in meters to geographic
// coordinates. worldX offsets the origin eastward, worldZ northward.
func (m *Mapper) WorldMetersToLatLon(worldX, worldZ float64) (lat, lon float64) {
	lat = m.originLat + worldZ/m.metersPerDegreeLat
	lon = m.originLon + worldX/m.metersPerDegreeLon
	return lat, lon
}

// GetChunkOriginLatLon returns the geographic coordinates of the chunk's
// world origin corner (local grid index 0,0).
func (m *Mapper) GetChunkOriginLatLon(chunkX, chunkZ int) (lat, lon float64) {
	return m.WorldMetersToLatLon(float64(chunkX)*m.chunkSizeMeters, float64(chunkZ)*m.chunkSizeMeters)
}
