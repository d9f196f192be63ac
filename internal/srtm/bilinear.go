package srtm

import "math"

// Bilinear interpolates between the four corner samples of a grid cell.
// z00 is the northwest corner, z10 northeast, z01 southwest, z11 southeast;
// fx is the eastward fraction in [0,1], fy the southward fraction. A missing
// corner makes the whole sample missing; no reconstruction is attempted.
func Bilinear(z00, z10, z01, z11 float64, fx, fy float64) float64 {
	missing := float64(MissingValue)
	if z00 == missing || z10 == missing || z01 == missing || z11 == missing {
		return missing
	}
	return (1-fx)*(1-fy)*z00 + fx*(1-fy)*z10 + (1-fx)*fy*z01 + fx*fy*z11
}

// SampleElevation interpolates the tile at a geographic point. The point is
// mapped to fractional grid coordinates and clamped to the grid, so samples
// on or past the tile border replicate the border row/column.
func SampleElevation(lat, lon float64, tile *Tile) float64 {
	x := (lon - tile.Bounds.MinLon) * float64(tile.Width-1)
	y := (tile.Bounds.MaxLat - lat) * float64(tile.Height-1)

	x = clamp(x, 0, float64(tile.Width-1))
	y = clamp(y, 0, float64(tile.Height-1))

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := min(x0+1, tile.Width-1)
	y1 := min(y0+1, tile.Height-1)

	fx := x - float64(x0)
	fy := y - float64(y0)

	return Bilinear(
		float64(tile.At(x0, y0)),
		float64(tile.At(x1, y0)),
		float64(tile.At(x0, y1)),
		float64(tile.At(x1, y1)),
		fx, fy,
	)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
