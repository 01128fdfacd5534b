package camera

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrorKind classifies socket failures. Every kind is fatal to the capture
// session; the kind only selects the message shown to the operator.
type ErrorKind int

const (
	// KindConnectionReset indicates the camera dropped the connection
	KindConnectionReset ErrorKind = iota
	// KindTimeout indicates a connect or read timed out
	KindTimeout
	// KindUnreachable indicates no route to the camera
	KindUnreachable
	// KindOther covers everything else; Code carries the errno when known
	KindOther
)

// String returns a short name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindConnectionReset:
		return "connection-reset"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	default:
		return "other"
	}
}

// TransportError is a classified socket failure
type TransportError struct {
	Kind ErrorKind
	Code int    // errno, 0 if unknown
	Op   string // dial, write, read, shutdown
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("camera %s: %s", e.Op, e.Reason())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Reason returns the operator-facing description of the failure.
func (e *TransportError) Reason() string {
	switch e.Kind {
	case KindConnectionReset:
		return "Connection reset by peer. Camera disconnected."
	case KindTimeout:
		return "Connection timed out."
	case KindUnreachable:
		return "Destination unreachable."
	default:
		if e.Code != 0 {
			return fmt.Sprintf("Socket error: %d", e.Code)
		}
		if e.Err != nil {
			return fmt.Sprintf("Socket error: %v", e.Err)
		}
		return "Socket error"
	}
}

// Classify wraps err into a *TransportError for the given operation. It
// returns nil for a nil error and passes an existing *TransportError through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	out := &TransportError{Kind: KindOther, Op: op, Err: err}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		out.Code = int(errno)
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		out.Kind = KindConnectionReset
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		out.Kind = KindConnectionReset
	case errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.ETIMEDOUT):
		out.Kind = KindTimeout
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		out.Kind = KindUnreachable
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			out.Kind = KindTimeout
		}
	}

	return out
}

// IsTransportError reports whether err carries a *TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
