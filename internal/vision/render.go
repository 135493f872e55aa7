//go:build gocv

package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/ironsheep/colony-counter/internal/detection"
)

// render draws each colony's boundary onto canvas and, below the label limit,
// its 1-based number at the centroid. It returns the number of boundaries
// drawn and whether labels were drawn. The first OpenCV failure stops
// drawing and is returned with its original message.
func (e *Engine) render(canvas *gocv.Mat, contours gocv.PointsVector, colonies []detection.Colony) (int, bool, error) {
	drawn := 0
	for _, c := range colonies {
		if err := gocv.DrawContours(canvas, contours, c.ContourIndex, e.style.Outline, e.style.Thickness); err != nil {
			return drawn, false, fmt.Errorf("colony %d: %w", c.Number, err)
		}
		drawn++
	}

	labeled := e.style.ShouldLabel(len(colonies))
	if !labeled {
		return drawn, false, nil
	}
	for _, c := range colonies {
		if !c.HasCentroid {
			continue
		}
		text := LabelText(c.Number)
		origin := e.style.LabelOrigin(c.Centroid.X, c.Centroid.Y, text)
		if err := gocv.PutText(canvas, text, origin, gocv.FontHersheySimplex, e.style.FontScale, e.style.Label, 1); err != nil {
			return drawn, false, fmt.Errorf("label %d: %w", c.Number, err)
		}
	}
	return drawn, true, nil
}
