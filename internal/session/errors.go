package session

import (
	"context"
	"errors"

	"github.com/ironsheep/colony-counter/internal/detection"
	"github.com/ironsheep/colony-counter/internal/imaging"
	"github.com/ironsheep/colony-counter/internal/vision"
)

// Sentinel errors raised by the controller itself.
var (
	// ErrNoImageLoaded is returned by Process when no raster is held.
	ErrNoImageLoaded = errors.New("no image loaded")

	// ErrBusy is returned by Process while another run holds the session.
	ErrBusy = errors.New("processing already in progress")

	// ErrNotFound is returned by Manager lookups for unknown or evicted ids.
	ErrNotFound = errors.New("session not found")
)

// Error kinds shown on the error panel and used by the HTTP layer.
const (
	KindUnsupportedType   = "unsupported_type"
	KindTooLarge          = "too_large"
	KindDecode            = "decode_error"
	KindPipelineNotReady  = "pipeline_not_ready"
	KindNoImageLoaded     = "no_image_loaded"
	KindBusy              = "busy"
	KindInvalidParams     = "invalid_params"
	KindProcessingFailure = "processing_failure"
	KindNotFound          = "unknown_session"
	KindCancelled         = "cancelled"
	KindInternal          = "internal"
)

// ErrorPanel is the user-facing rendering of an error: a short message plus
// the technical detail behind an expander.
type ErrorPanel struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Classify maps err onto an ErrorPanel. It returns nil for a nil error.
func Classify(err error) *ErrorPanel {
	if err == nil {
		return nil
	}

	p := &ErrorPanel{Detail: err.Error()}
	switch {
	case errors.Is(err, imaging.ErrUnsupportedType):
		p.Kind = KindUnsupportedType
		p.Message = "Please choose an image file (PNG, JPEG, GIF, BMP, TIFF or WebP)."
	case errors.Is(err, imaging.ErrTooLarge):
		p.Kind = KindTooLarge
		p.Message = "That image is too large to upload."
	case errors.Is(err, imaging.ErrDecode):
		p.Kind = KindDecode
		p.Message = "The image could not be read."
	case errors.Is(err, vision.ErrPipelineNotReady):
		p.Kind = KindPipelineNotReady
		p.Message = "The image processor is still loading. Try again in a moment."
	case errors.Is(err, ErrNoImageLoaded):
		p.Kind = KindNoImageLoaded
		p.Message = "Load an image first."
	case errors.Is(err, ErrBusy):
		p.Kind = KindBusy
		p.Message = "Processing is already running."
	case errors.Is(err, detection.ErrInvalidParams):
		p.Kind = KindInvalidParams
		p.Message = "The parameters are out of range."
	case errors.Is(err, vision.ErrProcessingFailure):
		p.Kind = KindProcessingFailure
		p.Message = "Image processing failed."
	case errors.Is(err, ErrNotFound):
		p.Kind = KindNotFound
		p.Message = "This session has expired. Reload the page."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.Kind = KindCancelled
		p.Message = "The request was cancelled."
	default:
		p.Kind = KindInternal
		p.Message = "Something went wrong."
	}
	return p
}
