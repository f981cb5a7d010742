// Package cadence drives capture cycles at a fixed wall-clock interval.
//
// Ticks and cycles are decoupled: a tick dispatches a cycle on its own
// goroutine and returns at once. If the previous cycle is still running the
// tick is dropped rather than queued, which bounds concurrency to one cycle
// and keeps memory flat when captures run long.
package cadence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/gyrocam/client/internal/metrics"
)

// DefaultInterval is the reference cadence, roughly 15 Hz.
const DefaultInterval = 66 * time.Millisecond

// ErrStopped is returned by Start on a scheduler that was already stopped.
// A scheduler serves exactly one streaming session.
var ErrStopped = errors.New("cadence scheduler stopped")

// Cycle is the unit of work dispatched per tick. ctx is cancelled when the
// scheduler stops; a cycle still running at that point must not assume the
// session is alive.
type Cycle func(ctx context.Context)

// Stats counts scheduler activity.
type Stats struct {
	Ticks      uint64
	Dispatched uint64
	Skipped    uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler owns one gocron job firing every interval.
type Scheduler struct {
	interval time.Duration
	cycle    Cycle
	rec      metrics.Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	gs      gocron.Scheduler
	started bool
	ctx     context.Context
	cancel  context.CancelFunc

	stopped  atomic.Bool
	inFlight atomic.Bool

	ticks      atomic.Uint64
	dispatched atomic.Uint64
	skipped    atomic.Uint64
}

// New creates a scheduler. It does not tick until Start.
func New(interval time.Duration, cycle Cycle, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		interval: interval,
		cycle:    cycle,
		rec:      metrics.NoopRecorder{},
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking. The first tick fires immediately.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("invalid cadence interval %v", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	gs, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	_, err = gs.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.tick),
		gocron.WithName("capture-cycle"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = gs.Shutdown()
		return fmt.Errorf("failed to create cadence job: %w", err)
	}

	s.gs = gs
	s.started = true
	gs.Start()
	s.logger.Debug("Cadence scheduler started", "interval", s.interval)
	return nil
}

// Stop halts ticking. When it returns no further tick will dispatch a
// cycle. It does not wait for a cycle already in flight; that cycle's
// context is cancelled instead. Stop is idempotent.
func (s *Scheduler) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.cancel()

	s.mu.Lock()
	gs := s.gs
	s.gs = nil
	s.mu.Unlock()

	if gs != nil {
		if err := gs.Shutdown(); err != nil {
			s.logger.Warn("Cadence scheduler shutdown", "error", err)
		}
	}
	s.logger.Debug("Cadence scheduler stopped",
		"ticks", s.ticks.Load(), "skipped", s.skipped.Load())
}

// Running reports whether the scheduler has started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped.Load()
}

// InFlight reports whether a cycle is outstanding.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:      s.ticks.Load(),
		Dispatched: s.dispatched.Load(),
		Skipped:    s.skipped.Load(),
	}
}

func (s *Scheduler) tick() {
	if s.stopped.Load() {
		return
	}
	s.ticks.Add(1)
	s.rec.IncTick()

	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.rec.IncTickSkipped()
		return
	}
	// Re-check after claiming the slot so a Stop racing with this tick
	// cannot be followed by a dispatch.
	if s.stopped.Load() {
		s.inFlight.Store(false)
		return
	}

	s.dispatched.Add(1)
	go func() {
		defer s.inFlight.Store(false)
		s.cycle(s.ctx)
	}()
}
