package sensor

import (
	"context"
	"math"
	"time"
)

// Simulated is a synthetic gyroscope that emits phase-shifted sine waves on
// each axis. It stands in for a hardware driver on machines without one.
type Simulated struct {
	Interval  time.Duration
	Amplitude float64 // rad/s
	Period    time.Duration

	now func() time.Time
}

// NewSimulated creates a simulated gyroscope sampling every interval.
func NewSimulated(interval time.Duration) *Simulated {
	return &Simulated{
		Interval:  interval,
		Amplitude: 1.5,
		Period:    4 * time.Second,
		now:       time.Now,
	}
}

// Readings starts the sampling goroutine. Slow consumers miss samples rather
// than stall the generator.
func (s *Simulated) Readings(ctx context.Context) (<-chan Reading, error) {
	out := make(chan Reading, 1)
	start := s.now()

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r := s.sample(s.now().Sub(start))
				select {
				case out <- r:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (s *Simulated) sample(elapsed time.Duration) Reading {
	period := s.Period
	if period <= 0 {
		period = 4 * time.Second
	}
	phase := 2 * math.Pi * elapsed.Seconds() / period.Seconds()
	return Reading{
		X:          s.Amplitude * math.Sin(phase),
		Y:          s.Amplitude * math.Sin(phase+2*math.Pi/3),
		Z:          s.Amplitude * 0.5 * math.Sin(2*phase+4*math.Pi/3),
		CapturedAt: s.now(),
	}
}
