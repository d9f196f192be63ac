package srtm

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrOutOfRange indicates geographic coordinates outside the valid domain
var ErrOutOfRange = errors.New("coordinates out of range")

// TileBounds is the 1x1 degree cell a tile covers. Containment is half-open:
// the min edges belong to the tile, the max edges to its neighbor.
type TileBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Contains reports whether the point falls inside the half-open bounds.
func (b TileBounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat < b.MaxLat && lon >= b.MinLon && lon < b.MaxLon
}

// ComputeTileName derives the canonical tile name for a coordinate using
// floor semantics: the name encodes the southwest corner of the covering
// cell, so 46.5 falls in N46 and -12.1 falls in S13.
func ComputeTileName(lat, lon float64) (string, error) {
	if lat < -90 || lat > 90 {
		return "", fmt.Errorf("%w: latitude %f", ErrOutOfRange, lat)
	}
	if lon < -180 || lon > 180 {
		return "", fmt.Errorf("%w: longitude %f", ErrOutOfRange, lon)
	}

	latFloor := int(math.Floor(lat))
	lonFloor := int(math.Floor(lon))

	ns := byte('N')
	latMag := latFloor
	if latFloor < 0 {
		ns = 'S'
		latMag = -latFloor
	}

	ew := byte('E')
	lonMag := lonFloor
	if lonFloor < 0 {
		ew = 'W'
		lonMag = -lonFloor
	}

	return fmt.Sprintf("%c%02d%c%03d", ns, latMag, ew, lonMag), nil
}

// ParseTileName converts a tile name back to its half-open bounds. Direction
// letters are accepted in either case.
func ParseTileName(name string) (TileBounds, error) {
	if len(name) != 7 {
		return TileBounds{}, fmt.Errorf("%w: tile name %q", ErrInvalidFormat, name)
	}

	var latSign, lonSign int
	switch name[0] {
	case 'N', 'n':
		latSign = 1
	case 'S', 's':
		latSign = -1
	default:
		return TileBounds{}, fmt.Errorf("%w: tile name %q has bad latitude direction", ErrInvalidFormat, name)
	}
	switch name[3] {
	case 'E', 'e':
		lonSign = 1
	case 'W', 'w':
		lonSign = -1
	default:
		return TileBounds{}, fmt.Errorf("%w: tile name %q has bad longitude direction", ErrInvalidFormat, name)
	}

	latMag, err := strconv.Atoi(name[1:3])
	if err != nil {
		return TileBounds{}, fmt.Errorf("%w: tile name %q has bad latitude digits", ErrInvalidFormat, name)
	}
	lonMag, err := strconv.Atoi(name[4:7])
	if err != nil {
		return TileBounds{}, fmt.Errorf("%w: tile name %q has bad longitude digits", ErrInvalidFormat, name)
	}
	if latMag > 90 {
		return TileBounds{}, fmt.Errorf("%w: tile name %q latitude exceeds 90", ErrInvalidFormat, name)
	}
	if lonMag > 180 {
		return TileBounds{}, fmt.Errorf("%w: tile name %q longitude exceeds 180", ErrInvalidFormat, name)
	}

	minLat := float64(latSign * latMag)
	minLon := float64(lonSign * lonMag)

	return TileBounds{
		MinLat: minLat,
		MaxLat: minLat + 1,
		MinLon: minLon,
		MaxLon: minLon + 1,
	}, nil
}
