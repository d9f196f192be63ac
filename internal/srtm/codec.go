package srtm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SRTM .hgt tiles are square grids of big-endian signed 16-bit samples in
// row-major order with row 0 at the north edge.
const (
	// SRTM3Size is the per-side sample count of a 3-arc-second tile
	SRTM3Size = 1201
	// SRTM1Size is the per-side sample count of a 1-arc-second tile
	SRTM1Size = 3601
	// MissingValue marks a sample with no elevation data
	MissingValue int16 = -32768

	srtm3ByteLen = 2 * SRTM3Size * SRTM3Size
	srtm1ByteLen = 2 * SRTM1Size * SRTM1Size
)

// ErrInvalidFormat indicates bytes that do not parse as a known tile layout
var ErrInvalidFormat = errors.New("invalid SRTM tile format")

// Tile is a decoded elevation tile. Bounds describe the 1x1 degree cell
// the tile covers; they are attached by the loader since the raw bytes
// carry no position.
type Tile struct {
	Bounds  TileBounds
	Width   int
	Height  int
	Samples []int16
}

// Decode parses raw .hgt bytes into a Tile. The byte length must match
// exactly one of the two SRTM grid sizes; anything else is rejected.
func Decode(data []byte) (*Tile, error) {
	var size int
	switch len(data) {
	case srtm3ByteLen:
		size = SRTM3Size
	case srtm1ByteLen:
		size = SRTM1Size
	default:
		return nil, fmt.Errorf("%w: unexpected length %d bytes", ErrInvalidFormat, len(data))
	}

	samples := make([]int16, size*size)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(data[2*i:]))
	}

	return &Tile{
		Width:   size,
		Height:  size,
		Samples: samples,
	}, nil
}

// Encode serializes samples back to the .hgt wire layout. The sample count
// must be a full SRTM3 or SRTM1 grid.
func Encode(samples []int16) ([]byte, error) {
	switch len(samples) {
	case SRTM3Size * SRTM3Size, SRTM1Size * SRTM1Size:
	default:
		return nil, fmt.Errorf("%w: unexpected sample count %d", ErrInvalidFormat, len(samples))
	}

	data := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.BigEndian.PutUint16(data[2*i:], uint16(s))
	}
	return data, nil
}

// ValidByteLen reports whether a byte length matches a full SRTM grid.
func ValidByteLen(n int) bool {
	return n == srtm3ByteLen || n == srtm1ByteLen
}

// At returns the sample at grid position (x, y), where y counts rows from
// the north edge.
func (t *Tile) At(x, y int) int16 {
	return t.Samples[y*t.Width+x]
}
