// Package session holds the per-tab controller state of the colony counter.
//
// A Session owns at most one loaded raster inside the vision engine together
// with the two display surfaces (original and annotated), the last count and
// the error panel. Sessions replace what would otherwise be page-global state,
// so each browser tab works independently.
//
// # Concurrency
//
// Work on a session is serialised by a run lock. Process takes it with
// TryLock and fails with ErrBusy instead of queueing; Load and Reset wait for
// it. Snapshot only needs the state lock and never blocks on a run.
package session

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/ironsheep/colony-counter/internal/detection"
	"github.com/ironsheep/colony-counter/internal/imaging"
	"github.com/ironsheep/colony-counter/internal/vision"
)

// State is the controller state of a session.
type State string

// Session states.
const (
	StateIdle       State = "idle"
	StateLoaded     State = "loaded"
	StateProcessing State = "processing"
	StateResult     State = "result"
	StateError      State = "error"
)

// Engine is the part of the vision engine a session drives.
type Engine interface {
	Ready() bool
	Import(img image.Image) (vision.Handle, error)
	Analyze(ctx context.Context, src vision.Handle, p detection.Params) (*detection.Report, error)
}

// Options configure sessions.
type Options struct {
	// Limits bound uploads.
	Limits imaging.Limits

	// Defaults are the parameters shown before the first run.
	Defaults detection.Params

	// PaintDelay is slept before each analysis so a polling page can render
	// its busy indicator.
	PaintDelay time.Duration

	Logger *slog.Logger

	// Now is the clock used for idle tracking. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Limits == (imaging.Limits{}) {
		o.Limits = imaging.DefaultLimits()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ImageInfo describes the loaded image.
type ImageInfo struct {
	Filename       string `json:"filename,omitempty"`
	Format         string `json:"format"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	OriginalWidth  int    `json:"original_width"`
	OriginalHeight int    `json:"original_height"`
	Rescaled       bool   `json:"rescaled"`
}

// Snapshot is a consistent read of a session for the page.
type Snapshot struct {
	ID         string           `json:"id"`
	State      State            `json:"state"`
	Busy       bool             `json:"busy"`
	Ready      bool             `json:"ready"`
	CanProcess bool             `json:"can_process"`
	Count      int              `json:"count"`
	Params     detection.Params `json:"params"`

	Image        *ImageInfo `json:"image,omitempty"`
	HasOriginal  bool       `json:"has_original"`
	HasAnnotated bool       `json:"has_annotated"`

	Report *detection.Report `json:"report,omitempty"`
	Error  *ErrorPanel       `json:"error,omitempty"`
}

// Session is one user's controller.
type Session struct {
	id     string
	engine Engine
	opts   Options
	log    *slog.Logger

	runMu sync.Mutex

	mu        sync.RWMutex
	state     State
	busy      bool
	raster    vision.Handle
	info      *ImageInfo
	original  image.Image
	annotated image.Image
	report    *detection.Report
	params    detection.Params
	panel     *ErrorPanel
	lastUsed  time.Time
}

// New returns an idle session.
func New(id string, engine Engine, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		id:       id,
		engine:   engine,
		opts:     opts,
		log:      opts.Logger.With("session", id),
		state:    StateIdle,
		params:   opts.Defaults,
		lastUsed: opts.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Load validates and decodes an upload.
//
// On success any previous raster is released, the original surface shows the
// new image and the annotated surface is cleared. The image is handed to the
// engine on the first Process, so Load works before the engine is ready. On
// any failure the session is reset first and then shows the error panel.
func (s *Session) Load(u imaging.Upload) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.touch()

	loaded, err := imaging.Load(u, s.opts.Limits)
	if err != nil {
		return s.failAndReset(err, "load")
	}

	s.mu.Lock()
	prev := s.raster
	s.raster = nil
	s.info = &ImageInfo{
		Filename:       u.Filename,
		Format:         loaded.Format,
		Width:          loaded.Width,
		Height:         loaded.Height,
		OriginalWidth:  loaded.OriginalWidth,
		OriginalHeight: loaded.OriginalHeight,
		Rescaled:       loaded.Rescaled,
	}
	s.original = loaded.Image
	s.annotated = nil
	s.report = nil
	s.panel = nil
	s.state = StateLoaded
	s.mu.Unlock()

	s.release(prev)

	s.log.Info("image loaded",
		"filename", u.Filename,
		"format", loaded.Format,
		"width", loaded.Width,
		"height", loaded.Height,
		"rescaled", loaded.Rescaled)
	return nil
}

// Process counts colonies on the loaded image with p.
//
// A run already in progress makes Process return ErrBusy immediately. Guard
// failures and processing errors set the error panel but leave the loaded
// raster and both surfaces as they were.
func (s *Session) Process(ctx context.Context, p detection.Params) (*detection.Report, error) {
	if !s.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer s.runMu.Unlock()
	s.touch()

	if !s.engine.Ready() {
		return nil, s.fail(vision.ErrPipelineNotReady, "process")
	}

	s.mu.RLock()
	raster, original := s.raster, s.original
	s.mu.RUnlock()
	if original == nil {
		return nil, s.fail(ErrNoImageLoaded, "process")
	}
	if err := p.Validate(); err != nil {
		return nil, s.fail(err, "process")
	}

	if raster == nil {
		var err error
		if raster, err = s.engine.Import(original); err != nil {
			return nil, s.fail(err, "import")
		}
		s.mu.Lock()
		s.raster = raster
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.state = StateProcessing
	s.busy = true
	s.params = p
	s.panel = nil
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	if err := s.paint(ctx); err != nil {
		return nil, s.fail(err, "process")
	}

	start := s.opts.Now()
	rep, err := s.engine.Analyze(context.WithoutCancel(ctx), raster, p)
	if err != nil {
		return nil, s.fail(err, "process")
	}

	s.mu.Lock()
	s.report = rep
	s.annotated = rep.Annotated
	s.state = StateResult
	s.mu.Unlock()

	s.log.Info("colonies counted",
		"count", rep.Count,
		"contours", rep.Contours,
		"min_area", p.MinArea,
		"threshold", p.Threshold,
		"elapsed", s.opts.Now().Sub(start))
	return rep, nil
}

// paint waits PaintDelay unless ctx ends first.
func (s *Session) paint(ctx context.Context) error {
	if s.opts.PaintDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.opts.PaintDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset waits for any run in progress, releases the raster and returns the
// session to idle with both surfaces cleared and a zero count.
func (s *Session) Reset() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.touch()
	s.reset()
	s.log.Debug("session reset")
}

// reset clears everything. The caller holds runMu.
func (s *Session) reset() {
	s.mu.Lock()
	prev := s.raster
	s.raster = nil
	s.info = nil
	s.original = nil
	s.annotated = nil
	s.report = nil
	s.panel = nil
	s.params = s.opts.Defaults
	s.state = StateIdle
	s.mu.Unlock()

	s.release(prev)
}

// release closes h. Failures are logged, never returned.
func (s *Session) release(h vision.Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		s.log.Warn("failed to release raster", "error", err)
	}
}

// fail records err on the error panel without touching surfaces.
func (s *Session) fail(err error, op string) error {
	panel := Classify(err)
	s.log.Error("operation failed", "op", op, "kind", panel.Kind, "error", err)

	s.mu.Lock()
	s.panel = panel
	s.state = StateError
	s.mu.Unlock()
	return err
}

// RejectUpload resets the session and records err for an upload refused
// before it could be read, such as a form without the image field.
func (s *Session) RejectUpload(err error) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.touch()
	return s.failAndReset(err, "load")
}

// RejectParams records err for parameters that could not be parsed. The
// loaded image and both surfaces stay as they were. A session in the middle
// of a run is left alone.
func (s *Session) RejectParams(err error) error {
	if !s.runMu.TryLock() {
		return err
	}
	defer s.runMu.Unlock()
	s.touch()
	return s.fail(err, "process")
}

// failAndReset resets the session and then records err.
func (s *Session) failAndReset(err error, op string) error {
	s.reset()
	return s.fail(err, op)
}

// Snapshot returns the current state for display.
func (s *Session) Snapshot() Snapshot {
	ready := s.engine.Ready()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:           s.id,
		State:        s.state,
		Busy:         s.busy,
		Ready:        ready,
		CanProcess:   ready && s.original != nil && !s.busy,
		Params:       s.params,
		HasOriginal:  s.original != nil,
		HasAnnotated: s.annotated != nil,
		Report:       s.report,
		Error:        s.panel,
	}
	if s.report != nil {
		snap.Count = s.report.Count
	}
	if s.info != nil {
		info := *s.info
		snap.Image = &info
	}
	return snap
}

// Original returns the original surface, nil when cleared.
func (s *Session) Original() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.original
}

// Annotated returns the annotated surface, nil when cleared.
func (s *Session) Annotated() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.annotated
}

// LastUsed returns when the session was last touched.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

func (s *Session) touch() {
	now := s.opts.Now()
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}
