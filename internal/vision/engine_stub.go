//go:build !gocv

package vision

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/ironsheep/colony-counter/internal/detection"
)

// Backend names the vision backend compiled into this binary.
const Backend = "none"

var errNoBackend = errors.New("built without OpenCV support (rebuild with -tags gocv)")

// Engine is a placeholder used when OpenCV is not compiled in. It never
// becomes ready.
type Engine struct {
	log *slog.Logger
}

// NewEngine returns a stub engine.
func NewEngine(opts Options) *Engine {
	return &Engine{log: opts.logger()}
}

// Start logs that no backend is available.
func (e *Engine) Start(ctx context.Context) {
	e.log.Warn("vision engine unavailable", "error", errNoBackend)
}

// Ready always returns false.
func (e *Engine) Ready() bool { return false }

// WaitReady always fails.
func (e *Engine) WaitReady(ctx context.Context) error {
	return errors.Join(ErrPipelineNotReady, errNoBackend)
}

// Versions reports that no backend is compiled in.
func (e *Engine) Versions() map[string]string {
	return map[string]string{"backend": Backend}
}

// Import keeps img on the Go side so uploads still work without OpenCV.
func (e *Engine) Import(img image.Image) (Handle, error) {
	if img == nil {
		return nil, processingError("import", errors.New("nil image"))
	}
	return NewHandle(nil), nil
}

// Analyze always returns ErrPipelineNotReady.
func (e *Engine) Analyze(ctx context.Context, src Handle, p detection.Params) (*detection.Report, error) {
	return nil, ErrPipelineNotReady
}
