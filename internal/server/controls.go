package server

import (
	"github.com/ironsheep/colony-counter/internal/config"
	"github.com/ironsheep/colony-counter/internal/detection"
)

// Control describes one slider on the page. The page renders controls from
// this list, so bounds and defaults live in one place.
type Control struct {
	Name        string  `json:"name"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Step        float64 `json:"step"`
	Default     float64 `json:"default"`
}

// ControlDefinitions returns the slider definitions for cfg.
func ControlDefinitions(cfg *config.Config) []Control {
	return []Control{
		{
			Name:        "min_area",
			Label:       "Minimum colony size",
			Description: "Blobs with an area at or below this many square pixels are ignored.",
			Min:         0,
			Max:         cfg.MinAreaMax,
			Step:        1,
			Default:     cfg.DefaultMinArea,
		},
		{
			Name:        "threshold",
			Label:       "Threshold",
			Description: "Grey level at or below which a pixel counts as colony.",
			Min:         0,
			Max:         detection.MaxThreshold,
			Step:        1,
			Default:     float64(cfg.DefaultThreshold),
		},
	}
}

// ParamsSchema returns a JSON schema for the process request body, in the
// same shape the controls use.
func ParamsSchema(cfg *config.Config) map[string]interface{} {
	props := map[string]interface{}{}
	for _, c := range ControlDefinitions(cfg) {
		typ := "number"
		if c.Name == "threshold" {
			typ = "integer"
		}
		props[c.Name] = map[string]interface{}{
			"type":        typ,
			"description": c.Description,
			"minimum":     c.Min,
			"maximum":     c.Max,
			"default":     c.Default,
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
}

// defaultParams returns the parameters used when a request omits them.
func defaultParams(cfg *config.Config) detection.Params {
	return detection.Params{
		MinArea:   cfg.DefaultMinArea,
		Threshold: cfg.DefaultThreshold,
	}
}
