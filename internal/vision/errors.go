package vision

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline.
var (
	// ErrPipelineNotReady is returned before the engine has finished starting.
	ErrPipelineNotReady = errors.New("vision pipeline not ready")

	// ErrProcessingFailure matches every *ProcessingError.
	ErrProcessingFailure = errors.New("image processing failed")
)

// ProcessingError wraps a lower-level failure from OpenCV with the pipeline
// step it happened in.
type ProcessingError struct {
	// Op names the pipeline step, e.g. "threshold".
	Op string

	// Err is the original failure.
	Err error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("vision [%s]: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrProcessingFailure) true for every ProcessingError.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessingFailure
}

// processingError wraps err for step op; nil stays nil.
func processingError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ProcessingError{Op: op, Err: err}
}
