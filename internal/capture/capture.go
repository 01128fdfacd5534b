package capture

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
)

// State is the lifecycle phase of a capture loop
type State int32

const (
	Connecting State = iota
	Configuring
	Streaming
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Configuring:
		return "configuring"
	case Streaming:
		return "streaming"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Category groups fatal errors by the stage that raised them
type Category string

const (
	CategoryTransport  Category = "transport"
	CategoryDecode     Category = "decode"
	CategoryProcessing Category = "processing"
)

// FatalError ends a capture session
type FatalError struct {
	Category Category
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Category, e.Reason())
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Reason is the operator-facing message for the underlying error
func (e *FatalError) Reason() string {
	var te *camera.TransportError
	if errors.As(e.Err, &te) {
		return te.Reason()
	}
	if e.Err == nil {
		return "unknown"
	}
	return e.Err.Error()
}

// streamFailure sorts an error from the decoder into its category. Anything
// that is not the decoder's own is a socket problem.
func streamFailure(err error) *FatalError {
	if errors.Is(err, mjpeg.ErrFrameTooLarge) {
		return &FatalError{Category: CategoryDecode, Err: err}
	}
	var te *camera.TransportError
	if !errors.As(err, &te) {
		err = camera.Classify("read", err)
	}
	return &FatalError{Category: CategoryTransport, Err: err}
}
