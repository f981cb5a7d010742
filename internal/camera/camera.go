// Package camera defines the on-demand still-image capability the streaming
// pipeline consumes, plus reference sources for machines without a driver.
package camera

import (
	"context"
	"errors"
	"fmt"
)

// ErrCaptureFailure is matched by every error a Source returns. A failed
// capture is recoverable: the caller skips the cycle and tries again on the
// next tick.
var ErrCaptureFailure = errors.New("capture failed")

// Source captures one encoded (JPEG) still image per call.
//
// Capture is never called concurrently by a single streaming session, but an
// implementation shared between sessions must be safe for concurrent use.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]byte, error)

// Capture calls f(ctx).
func (f SourceFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }

// CaptureError describes why a capture failed.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture failed: %s: %v", e.Reason, e.Err)
	}
	return "capture failed: " + e.Reason
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Is reports ErrCaptureFailure so callers can match the category without
// knowing the concrete reason.
func (e *CaptureError) Is(target error) bool { return target == ErrCaptureFailure }

// Failure builds a CaptureError.
func Failure(reason string, err error) error {
	return &CaptureError{Reason: reason, Err: err}
}

// Common reasons.
var (
	ErrNotReady      = Failure("camera not ready", nil)
	ErrClosed        = Failure("camera closed", nil)
	ErrNotAuthorized = Failure("camera access not authorized", nil)
)

// Guard wraps src so that driver panics and foreign errors both surface as
// CaptureFailure, and an empty buffer is never reported as success.
func Guard(src Source) Source {
	return SourceFunc(func(ctx context.Context) (data []byte, err error) {
		defer func() {
			if r := recover(); r != nil {
				data = nil
				err = Failure("driver panic", fmt.Errorf("%v", r))
			}
		}()
		if err := ctx.Err(); err != nil {
			return nil, Failure("cancelled", err)
		}
		data, err = src.Capture(ctx)
		if err != nil {
			if errors.Is(err, ErrCaptureFailure) {
				return nil, err
			}
			return nil, Failure("hardware error", err)
		}
		if len(data) == 0 {
			return nil, Failure("empty frame", nil)
		}
		return data, nil
	})
}
