// Package config holds runtime configuration for the colony counter.
//
// Values start from Default(), may be loaded from a YAML file and are finally
// overridden by COLONY_* environment variables. Validate clamps everything to
// safe ranges so callers never see a half-configured service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the HTTP service, the image loader,
// the vision pipeline and the annotator.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxWidth       int   `yaml:"max_width"`
	MaxHeight      int   `yaml:"max_height"`

	// Slider defaults and bounds
	DefaultMinArea   float64 `yaml:"default_min_area"`
	MinAreaMax       float64 `yaml:"min_area_max"`
	DefaultThreshold int     `yaml:"default_threshold"`

	// PaintDelay is the pause inserted before pipeline work so a polling
	// page can render its busy indicator.
	PaintDelay time.Duration `yaml:"paint_delay"`

	// SessionTTL is how long an untouched session survives.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// Annotation style
	OutlineColor string `yaml:"outline_color"`
	LabelColor   string `yaml:"label_color"`
	Thickness    int    `yaml:"thickness"`
	LabelLimit   int    `yaml:"label_limit"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	return &Config{
		Listen:           ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
		MaxUploadBytes:   5 * 1024 * 1024,
		MaxWidth:         2000,
		MaxHeight:        2000,
		DefaultMinArea:   50,
		MinAreaMax:       5000,
		DefaultThreshold: 127,
		PaintDelay:       50 * time.Millisecond,
		SessionTTL:       30 * time.Minute,
		OutlineColor:     "#00FF00",
		LabelColor:       "#FF0000",
		Thickness:        2,
		LabelLimit:       100,
	}
}

// Validate clamps/normalizes values to safe ranges.
func (c *Config) Validate() error {
	d := Default()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = d.MaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = d.MaxHeight
	}
	if c.DefaultMinArea < 0 {
		c.DefaultMinArea = 0
	}
	if c.MinAreaMax <= 0 {
		c.MinAreaMax = d.MinAreaMax
	}
	if c.DefaultMinArea > c.MinAreaMax {
		c.DefaultMinArea = c.MinAreaMax
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 255 {
		c.DefaultThreshold = d.DefaultThreshold
	}
	if c.PaintDelay < 0 {
		c.PaintDelay = 0
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.OutlineColor == "" {
		c.OutlineColor = d.OutlineColor
	}
	if c.LabelColor == "" {
		c.LabelColor = d.LabelColor
	}
	if c.Thickness <= 0 {
		c.Thickness = d.Thickness
	}
	if c.LabelLimit < 0 {
		c.LabelLimit = d.LabelLimit
	}
	return nil
}

// Load reads configuration from the YAML file at path. An empty path or a
// missing file yields defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from COLONY_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("COLONY_LISTEN", &c.Listen)
	str("COLONY_LOG_LEVEL", &c.LogLevel)
	str("COLONY_LOG_FORMAT", &c.LogFormat)
	str("COLONY_OUTLINE_COLOR", &c.OutlineColor)
	str("COLONY_LABEL_COLOR", &c.LabelColor)

	if v, ok := lookup("COLONY_MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid COLONY_MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		c.MaxUploadBytes = n
	}
	ints := map[string]*int{
		"COLONY_MAX_WIDTH":         &c.MaxWidth,
		"COLONY_MAX_HEIGHT":        &c.MaxHeight,
		"COLONY_DEFAULT_THRESHOLD": &c.DefaultThreshold,
		"COLONY_THICKNESS":         &c.Thickness,
		"COLONY_LABEL_LIMIT":       &c.LabelLimit,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("COLONY_DEFAULT_MIN_AREA"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid COLONY_DEFAULT_MIN_AREA %q: %w", v, err)
		}
		c.DefaultMinArea = f
	}
	durations := map[string]*time.Duration{
		"COLONY_PAINT_DELAY": &c.PaintDelay,
		"COLONY_SESSION_TTL": &c.SessionTTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = d
		}
	}
	return nil
}
