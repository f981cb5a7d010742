package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/gyrocam/client/internal/metrics"
)

// ErrSessionActive is returned by Start while a session is connecting or
// streaming.
var ErrSessionActive = errors.New("session already active")

// errDiscarded marks a cycle that completed after its session ended.
var errDiscarded = errors.New("session no longer streaming")

// HandshakeError ends a session before it streams.
type HandshakeError struct {
	Endpoint Endpoint
	Err      error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed: %v", e.Endpoint, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// SendError is a failed best-effort write. It is reported, never escalated.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "send failed: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// FailureEvent describes a per-cycle failure. It is delivered on the channel
// passed to WithFailureEvents.
type FailureEvent struct {
	SessionID string
	Stage     metrics.Stage
	Err       error
	At        time.Time
}
