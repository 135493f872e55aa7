package detection

import (
	"image"
	"math"
)

// Moments holds the zeroth and first order spatial moments of a region.
type Moments struct {
	M00 float64 // Area
	M10 float64 // Sum of x
	M01 float64 // Sum of y
}

// PolygonMoments computes the moments of the closed polygon pts.
//
// Uses Green's theorem over the polygon edges, so the result depends only on
// the boundary vertices. Orientation does not matter: clockwise polygons are
// normalised to a positive area. Fewer than three points, or a degenerate
// polygon, yields zero moments.
func PolygonMoments(pts []image.Point) Moments {
	if len(pts) < 3 {
		return Moments{}
	}

	var a00, a10, a01 float64
	prev := pts[len(pts)-1]
	for _, p := range pts {
		xp, yp := float64(prev.X), float64(prev.Y)
		x, y := float64(p.X), float64(p.Y)
		cross := xp*y - x*yp
		a00 += cross
		a10 += cross * (xp + x)
		a01 += cross * (yp + y)
		prev = p
	}

	if math.Abs(a00) <= 1e-12 {
		return Moments{}
	}
	sign := 1.0
	if a00 < 0 {
		sign = -1
	}
	return Moments{
		M00: sign * a00 / 2,
		M10: sign * a10 / 6,
		M01: sign * a01 / 6,
	}
}

// Centroid returns (floor(M10/M00), floor(M01/M00)). ok is false when M00
// is zero, in which case no centroid exists.
func (m Moments) Centroid() (x, y int, ok bool) {
	if m.M00 == 0 {
		return 0, 0, false
	}
	return int(math.Floor(m.M10 / m.M00)), int(math.Floor(m.M01 / m.M00)), true
}
