package detection

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AreaStats summarises colony areas in square pixels.
type AreaStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Total  float64 `json:"total"`
}

// Summarize computes AreaStats over colonies. StdDev is the sample standard
// deviation and is 0 for fewer than two colonies. No colonies yields zeros.
func Summarize(colonies []Colony) AreaStats {
	if len(colonies) == 0 {
		return AreaStats{}
	}

	areas := make([]float64, len(colonies))
	for i, c := range colonies {
		areas[i] = c.Area
	}
	sort.Float64s(areas)

	s := AreaStats{
		Mean:   stat.Mean(areas, nil),
		Median: median(areas),
		Min:    floats.Min(areas),
		Max:    floats.Max(areas),
		Total:  floats.Sum(areas),
	}
	if len(areas) > 1 {
		s.StdDev = stat.StdDev(areas, nil)
	}
	return s
}

// median returns the middle of sorted, averaging the two middle values when
// the length is even.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Report is the outcome of one processing run.
type Report struct {
	// Params are the parameters the run used.
	Params Params `json:"params"`

	// Count is the number of colonies, equal to len(Colonies) and to the
	// number of boundaries drawn on Annotated.
	Count int `json:"count"`

	// Contours is how many external contours the pipeline found before
	// filtering.
	Contours int `json:"contours"`

	Colonies []Colony `json:"colonies"`
	Stats    AreaStats `json:"stats"`

	// Labeled reports whether index labels were drawn.
	Labeled bool `json:"labeled"`

	Width  int `json:"width"`
	Height int `json:"height"`

	// Annotated is the display copy with colonies drawn on it.
	Annotated image.Image `json:"-"`
}
