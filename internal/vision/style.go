package vision

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strconv"

	"github.com/ironsheep/colony-counter/internal/config"
	"github.com/ironsheep/colony-counter/internal/imaging"
)

// Style controls how colonies are drawn on the annotated surface.
type Style struct {
	// Outline is the boundary colour.
	Outline color.RGBA

	// Label is the index text colour.
	Label color.RGBA

	// Thickness is the boundary line width in pixels.
	Thickness int

	// LabelLimit disables index labels once the colony count reaches it.
	LabelLimit int

	// FontScale is the Hershey font scale used for labels.
	FontScale float64
}

// DefaultStyle returns green outlines, red labels, 2 px lines and labels for
// fewer than 100 colonies.
func DefaultStyle() Style {
	return Style{
		Outline:    color.RGBA{R: 0, G: 255, B: 0, A: 255},
		Label:      color.RGBA{R: 255, G: 0, B: 0, A: 255},
		Thickness:  2,
		LabelLimit: 100,
		FontScale:  0.5,
	}
}

// StyleFromConfig builds a Style from the configured hex colours and sizes.
func StyleFromConfig(cfg *config.Config) (Style, error) {
	s := DefaultStyle()
	if cfg == nil {
		return s, nil
	}

	outline, err := imaging.ParseColor(cfg.OutlineColor)
	if err != nil {
		return s, fmt.Errorf("failed to parse outline color: %w", err)
	}
	label, err := imaging.ParseColor(cfg.LabelColor)
	if err != nil {
		return s, fmt.Errorf("failed to parse label color: %w", err)
	}

	s.Outline = outline
	s.Label = label
	if cfg.Thickness > 0 {
		s.Thickness = cfg.Thickness
	}
	if cfg.LabelLimit >= 0 {
		s.LabelLimit = cfg.LabelLimit
	}
	return s, nil
}

// ShouldLabel reports whether a result with count colonies gets index labels.
func (s Style) ShouldLabel(count int) bool {
	return count < s.LabelLimit
}

// LabelOrigin returns the text baseline origin that roughly centres text on
// the centroid (cx, cy). Hershey simplex glyphs are about 20 px wide and 22 px
// tall at scale 1.
func (s Style) LabelOrigin(cx, cy int, text string) image.Point {
	scale := s.FontScale
	if scale <= 0 {
		scale = 0.5
	}
	halfW := int(float64(len(text)) * 20 * scale / 2)
	halfH := int(22 * scale / 2)
	return image.Pt(cx-halfW, cy+halfH)
}

// LabelText is the text drawn for colony number n.
func LabelText(n int) string {
	return strconv.Itoa(n)
}

// Options configure an Engine.
type Options struct {
	Style  Style
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
