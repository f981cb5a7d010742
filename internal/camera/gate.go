package camera

import (
	"context"
	"sync/atomic"
)

// Gate is the permission check in front of a camera. The grant itself comes
// from the platform; the gate only records the outcome so that an
// unauthorized capture fails cleanly instead of reaching the driver.
type Gate struct {
	src     Source
	granted atomic.Bool
}

// NewGate wraps src. The gate starts in the given state.
func NewGate(src Source, granted bool) *Gate {
	g := &Gate{src: src}
	g.granted.Store(granted)
	return g
}

// Grant authorizes captures.
func (g *Gate) Grant() { g.granted.Store(true) }

// Revoke blocks further captures.
func (g *Gate) Revoke() { g.granted.Store(false) }

// Granted reports whether captures are authorized.
func (g *Gate) Granted() bool { return g.granted.Load() }

// Capture delegates to the wrapped source when authorized.
func (g *Gate) Capture(ctx context.Context) ([]byte, error) {
	if !g.granted.Load() {
		return nil, ErrNotAuthorized
	}
	return g.src.Capture(ctx)
}
