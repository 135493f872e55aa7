//go:build gocv

package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/ironsheep/colony-counter/internal/detection"
)

// Backend names the vision backend compiled into this binary.
const Backend = "opencv"

// Engine runs the colony pipeline on OpenCV.
//
// Engine holds no per-run state and is safe for concurrent use; callers are
// expected to serialise runs on a single raster.
type Engine struct {
	style Style
	log   *slog.Logger

	startOnce sync.Once
	ready     atomic.Bool
	done      chan struct{}
	startErr  error
}

// NewEngine returns an engine that is not yet ready. Call Start.
func NewEngine(opts Options) *Engine {
	return &Engine{
		style: opts.Style,
		log:   opts.logger(),
		done:  make(chan struct{}),
	}
}

// Start warms OpenCV up in the background. Readiness flips exactly once, when
// the warm-up succeeds. Calling Start again has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go func() {
			defer close(e.done)
			if err := e.warmUp(); err != nil {
				e.startErr = err
				e.log.Error("vision engine failed to start", "error", err)
				return
			}
			e.ready.Store(true)
			e.log.Info("vision engine ready",
				"gocv", gocv.Version(),
				"opencv", gocv.OpenCVVersion())
		}()
	})
}

// Ready reports whether Analyze may be called.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}

// WaitReady blocks until the warm-up finishes or ctx is done.
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.done:
		if e.startErr != nil {
			return fmt.Errorf("%w: %v", ErrPipelineNotReady, e.startErr)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Versions reports backend library versions.
func (e *Engine) Versions() map[string]string {
	return map[string]string{
		"backend": Backend,
		"gocv":    gocv.Version(),
		"opencv":  gocv.OpenCVVersion(),
	}
}

// warmUp runs a colour conversion on a small probe image so the first real
// run does not pay OpenCV's lazy initialisation.
func (e *Engine) warmUp() (err error) {
	arena := NewArena("warmup", e.log)
	defer arena.Release()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during warm-up: %v", r)
		}
	}()

	probe := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	arena.Track("probe", probe.Close)
	gray := gocv.NewMat()
	arena.Track("gray", gray.Close)

	if err := gocv.CvtColor(probe, &gray, gocv.ColorBGRToGray); err != nil {
		return fmt.Errorf("probe conversion failed: %w", err)
	}
	if gray.Empty() || gray.Channels() != 1 {
		return errors.New("probe conversion produced no grayscale output")
	}
	return nil
}

// raster is a source image held inside OpenCV.
type raster struct {
	Handle
	mat    gocv.Mat
	width  int
	height int
}

// Import copies img into OpenCV as a 3-channel BGR Mat. The returned handle is
// owned by the caller and must be closed.
func (e *Engine) Import(img image.Image) (Handle, error) {
	if img == nil {
		return nil, processingError("import", errors.New("nil image"))
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, processingError("import", err)
	}
	if mat.Empty() {
		_ = mat.Close()
		return nil, processingError("import", errors.New("empty raster"))
	}
	return &raster{
		Handle: NewHandle(mat.Close),
		mat:    mat,
		width:  mat.Cols(),
		height: mat.Rows(),
	}, nil
}

// Analyze runs the pipeline on src and returns the annotated report.
//
// Every OpenCV object allocated here is released before Analyze returns, on
// success, on error and on panic. src itself is not released.
func (e *Engine) Analyze(ctx context.Context, src Handle, p detection.Params) (rep *detection.Report, err error) {
	if !e.Ready() {
		return nil, ErrPipelineNotReady
	}
	r, ok := src.(*raster)
	if !ok || r == nil {
		return nil, processingError("import", errors.New("handle is not a raster from this engine"))
	}
	if h, ok := r.Handle.(*handle); ok && h.Closed() {
		return nil, processingError("import", errors.New("raster already released"))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	arena := NewArena("analyze", e.log)
	defer arena.Release()

	op := "clone"
	defer func() {
		if rec := recover(); rec != nil {
			rep = nil
			err = processingError(op, fmt.Errorf("panic: %v", rec))
		}
	}()

	working := r.mat.Clone()
	arena.Track("working", working.Close)
	if working.Empty() {
		return nil, processingError(op, errors.New("clone produced an empty raster"))
	}

	op = "grayscale"
	gray := gocv.NewMat()
	arena.Track("gray", gray.Close)
	if err := gocv.CvtColor(working, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, processingError(op, err)
	}
	if gray.Empty() || gray.Channels() != 1 {
		return nil, processingError(op, errors.New("no single-channel output"))
	}

	op = "blur"
	blurred := gocv.NewMat()
	arena.Track("blurred", blurred.Close)
	if err := gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault); err != nil {
		return nil, processingError(op, err)
	}
	if blurred.Empty() {
		return nil, processingError(op, errors.New("no output"))
	}

	op = "threshold"
	binary := gocv.NewMat()
	arena.Track("binary", binary.Close)
	gocv.Threshold(blurred, &binary, float32(p.Threshold), 255, gocv.ThresholdBinaryInv)
	if binary.Empty() {
		return nil, processingError(op, errors.New("no output"))
	}

	op = "contours"
	hierarchy := gocv.NewMat()
	arena.Track("hierarchy", hierarchy.Close)
	contours := gocv.FindContoursWithParams(binary, &hierarchy, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	arena.Track("contours", func() error {
		contours.Close()
		return nil
	})

	op = "measure"
	measured := make([]detection.Contour, contours.Size())
	for i := range measured {
		pv := contours.At(i)
		measured[i] = detection.Contour{
			Index:     i,
			Points:    pv.ToPoints(),
			Area:      gocv.ContourArea(pv),
			Perimeter: gocv.ArcLength(pv, true),
		}
	}
	colonies := detection.Filter(measured, p)

	op = "render"
	canvas := r.mat.Clone()
	arena.Track("canvas", canvas.Close)
	if canvas.Empty() {
		return nil, processingError(op, errors.New("display copy is empty"))
	}
	drawn, labeled, err := e.render(&canvas, contours, colonies)
	if err != nil {
		return nil, processingError(op, err)
	}
	if drawn != len(colonies) {
		return nil, processingError(op, fmt.Errorf("drew %d boundaries for %d colonies", drawn, len(colonies)))
	}

	op = "export"
	annotated, err := canvas.ToImage()
	if err != nil {
		return nil, processingError(op, err)
	}

	e.log.Debug("analysis complete",
		"contours", len(measured),
		"colonies", len(colonies),
		"min_area", p.MinArea,
		"threshold", p.Threshold,
		"handles", arena.Len())

	return &detection.Report{
		Params:    p,
		Count:     len(colonies),
		Contours:  len(measured),
		Colonies:  colonies,
		Stats:     detection.Summarize(colonies),
		Labeled:   labeled,
		Width:     r.width,
		Height:    r.height,
		Annotated: annotated,
	}, nil
}
