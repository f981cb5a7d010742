// Package metrics exposes counters for the capture pipeline. Components take
// a Recorder; NoopRecorder is the default when metrics are not configured.
package metrics

import "time"

// Stage names a per-cycle pipeline step.
type Stage string

const (
	StageCapture Stage = "capture"
	StageEncode  Stage = "encode"
	StageSend    Stage = "send"
)

// CycleResult is the outcome of one capture→encode→send cycle.
type CycleResult string

const (
	CycleSent      CycleResult = "sent"
	CycleFailed    CycleResult = "failed"
	CycleDiscarded CycleResult = "discarded" // finished after the session ended
)

// Recorder receives pipeline observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncTick()
	IncTickSkipped()
	IncCycle(result CycleResult)
	IncCycleFailure(stage Stage)
	ObserveCaptureDuration(d time.Duration)
	AddSentBytes(n int)
	SetSessionPhase(phase string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncTick()                             {}
func (NoopRecorder) IncTickSkipped()                      {}
func (NoopRecorder) IncCycle(CycleResult)                 {}
func (NoopRecorder) IncCycleFailure(Stage)                {}
func (NoopRecorder) ObserveCaptureDuration(time.Duration) {}
func (NoopRecorder) AddSentBytes(int)                     {}
func (NoopRecorder) SetSessionPhase(string)               {}
