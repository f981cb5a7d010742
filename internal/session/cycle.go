package session

import (
	"context"
	"errors"
	"time"

	"github.com/gyrocam/client/internal/logging"
	"github.com/gyrocam/client/internal/metrics"
	"github.com/gyrocam/client/internal/payload"
)

// cycle runs capture→encode→send once. Any stage failure is reported and the
// cycle ends; the next tick starts fresh.
func (m *Manager) cycle(ctx context.Context, s *stream) {
	// A cycle dispatched just before teardown may start after it; it must
	// not touch the camera for a session that is no longer live.
	if ctx.Err() != nil || !m.live(s) {
		m.discard()
		return
	}

	start := time.Now()
	frame, err := m.camera.Capture(ctx)
	m.rec.ObserveCaptureDuration(time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			m.discard()
			return
		}
		m.reportFailure(s, metrics.StageCapture, err)
		return
	}

	data, err := payload.Build(frame, m.feed.Current())
	if err != nil {
		m.reportFailure(s, metrics.StageEncode, err)
		return
	}

	if err := m.send(s, data); err != nil {
		if errors.Is(err, errDiscarded) {
			m.discard()
			return
		}
		m.reportFailure(s, metrics.StageSend, err)
		return
	}
	m.sent.Add(1)
	m.sentBytes.Add(uint64(len(data)))
	m.rec.IncCycle(metrics.CycleSent)
	m.rec.AddSentBytes(len(data))
}

func (m *Manager) discard() {
	m.discarded.Add(1)
	m.rec.IncCycle(metrics.CycleDiscarded)
}

// reportFailure records a per-cycle failure. The session state is never
// changed here. Warnings are rate limited per stage; the rest go to debug.
func (m *Manager) reportFailure(s *stream, stage metrics.Stage, err error) {
	m.failed.Add(1)
	m.rec.IncCycle(metrics.CycleFailed)
	m.rec.IncCycleFailure(stage)

	now := time.Now()
	m.failMu.Lock()
	last := m.lastFailLog[stage]
	warn := last.IsZero() || now.Sub(last) >= failureLogEvery
	suppressed := m.suppressed[stage]
	if warn {
		m.lastFailLog[stage] = now
		m.suppressed[stage] = 0
	} else {
		m.suppressed[stage]++
	}
	m.failMu.Unlock()

	if warn {
		s.logger.Warn("Cycle failed",
			logging.Stage(string(stage)), logging.Error(err), "suppressed", suppressed)
	} else {
		s.logger.Debug("Cycle failed", logging.Stage(string(stage)), logging.Error(err))
	}

	if m.failures == nil {
		return
	}
	select {
	case m.failures <- FailureEvent{SessionID: s.id, Stage: stage, Err: err, At: now}:
	default:
	}
}
