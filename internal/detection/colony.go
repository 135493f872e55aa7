package detection

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// MinCircularity is the exclusive lower bound a contour's circularity must
// exceed to be counted.
const MinCircularity = 0.3

// MaxThreshold is the largest binarization threshold for 8-bit images.
const MaxThreshold = 255

// ErrInvalidParams is returned when processing parameters are out of range.
var ErrInvalidParams = errors.New("invalid parameters")

// Params are the two user-tunable knobs, read fresh for every run.
type Params struct {
	// MinArea is the exclusive lower bound on contour area in square pixels.
	MinArea float64 `json:"min_area"`

	// Threshold is the binarization cutoff (0-255). Pixels darker than or
	// equal to it become foreground.
	Threshold int `json:"threshold"`
}

// Validate reports whether p is usable by the pipeline.
func (p Params) Validate() error {
	if math.IsNaN(p.MinArea) || math.IsInf(p.MinArea, 0) || p.MinArea < 0 {
		return fmt.Errorf("%w: min_area must be a non-negative number, got %v", ErrInvalidParams, p.MinArea)
	}
	if p.Threshold < 0 || p.Threshold > MaxThreshold {
		return fmt.Errorf("%w: threshold must be within 0-%d, got %d", ErrInvalidParams, MaxThreshold, p.Threshold)
	}
	return nil
}

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge (exclusive)
	Y2 int `json:"y2"` // Bottom edge (exclusive)
}

// Contour is one external region boundary produced by the vision pipeline.
type Contour struct {
	// Index is the contour's position in the pipeline's enumeration order.
	Index int

	// Points is the compressed boundary polyline (closed, last point
	// connects back to the first).
	Points []image.Point

	// Area is the enclosed polygon area in square pixels.
	Area float64

	// Perimeter is the closed polygon length in pixels.
	Perimeter float64
}

// Circularity returns 4*pi*area/perimeter^2, or 0 for a zero perimeter.
func Circularity(area, perimeter float64) float64 {
	if perimeter <= 0 {
		return 0
	}
	return 4 * math.Pi * area / (perimeter * perimeter)
}

// Colony is a contour that passed the filter.
type Colony struct {
	// Number is the 1-based colony index shown in labels.
	Number int `json:"number"`

	// ContourIndex links back to Contour.Index.
	ContourIndex int `json:"contour_index"`

	Area        float64 `json:"area"`
	Perimeter   float64 `json:"perimeter"`
	Circularity float64 `json:"circularity"`

	// Centroid is the moment-based center. Only meaningful when HasCentroid.
	Centroid    Point `json:"centroid"`
	HasCentroid bool  `json:"has_centroid"`

	// Bounds is the bounding box of the boundary points.
	Bounds Bounds `json:"bounds"`

	// Points is the boundary, kept for rendering.
	Points []image.Point `json:"-"`
}

// Accepts reports whether a contour qualifies as a colony under p.
func Accepts(c Contour, p Params) bool {
	if !(c.Area > p.MinArea) {
		return false
	}
	return Circularity(c.Area, c.Perimeter) > MinCircularity
}

// Filter returns the colonies among contours, numbered from 1 in input order.
//
// The input slice is not modified. The result is never nil.
func Filter(contours []Contour, p Params) []Colony {
	colonies := make([]Colony, 0, len(contours))
	for _, c := range contours {
		if !Accepts(c, p) {
			continue
		}

		col := Colony{
			Number:       len(colonies) + 1,
			ContourIndex: c.Index,
			Area:         c.Area,
			Perimeter:    c.Perimeter,
			Circularity:  Circularity(c.Area, c.Perimeter),
			Bounds:       boundsOf(c.Points),
			Points:       c.Points,
		}
		if cx, cy, ok := PolygonMoments(c.Points).Centroid(); ok {
			col.Centroid = Point{X: cx, Y: cy}
			col.HasCentroid = true
		}
		colonies = append(colonies, col)
	}
	return colonies
}

// boundsOf returns the bounding box of pts; the zero Bounds for no points.
func boundsOf(pts []image.Point) Bounds {
	if len(pts) == 0 {
		return Bounds{}
	}
	b := Bounds{X1: pts[0].X, Y1: pts[0].Y, X2: pts[0].X, Y2: pts[0].Y}
	for _, p := range pts[1:] {
		b.X1 = min(b.X1, p.X)
		b.Y1 = min(b.Y1, p.Y)
		b.X2 = max(b.X2, p.X)
		b.Y2 = max(b.Y2, p.Y)
	}
	b.X2++
	b.Y2++
	return b
}
