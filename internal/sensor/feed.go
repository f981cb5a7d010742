// Package sensor holds the motion sensor feed: a process-lifetime subscription
// to a gyroscope stream that keeps only the most recent reading.
package sensor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Reading is a single 3-axis gyroscope sample.
type Reading struct {
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Source pushes readings from a motion driver. The returned channel is closed
// when the driver stops or ctx is cancelled.
type Source interface {
	Readings(ctx context.Context) (<-chan Reading, error)
}

// Feed is a latest-value cell. One producer overwrites it, any number of
// readers take a snapshot without locking.
type Feed struct {
	latest  atomic.Pointer[Reading]
	samples atomic.Uint64
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Publish replaces the current reading.
func (f *Feed) Publish(r Reading) {
	f.latest.Store(&r)
	f.samples.Add(1)
}

// Current returns the last published reading, or the zero Reading if nothing
// has arrived yet. It never blocks.
func (f *Feed) Current() Reading {
	if r := f.latest.Load(); r != nil {
		return *r
	}
	return Reading{}
}

// Samples returns how many readings have been published.
func (f *Feed) Samples() uint64 {
	return f.samples.Load()
}

// Attach subscribes to src and pumps its readings into the feed in a
// background goroutine until ctx is done or the source closes its channel.
func (f *Feed) Attach(ctx context.Context, src Source) error {
	ch, err := src.Readings(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-ch:
				if !ok {
					slog.Debug("Sensor source closed")
					return
				}
				f.Publish(r)
			}
		}
	}()
	return nil
}
