package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Phases lists every session phase label so the state gauge always exports
// a complete one-hot vector.
var Phases = []string{"idle", "connecting", "streaming", "disconnected", "failed"}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	ticks           prom.Counter
	ticksSkipped    prom.Counter
	cycles          *prom.CounterVec
	cycleFailures   *prom.CounterVec
	captureDuration prom.Histogram
	sentBytes       prom.Counter
	sessionPhase    *prom.GaugeVec
}

// NewPrometheusRecorder creates and registers the collectors on reg. A nil
// reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	p := &PrometheusRecorder{
		ticks: prom.NewCounter(prom.CounterOpts{
			Namespace: "gyrocam",
			Name:      "ticks_total",
			Help:      "Cadence scheduler ticks",
		}),
		ticksSkipped: prom.NewCounter(prom.CounterOpts{
			Namespace: "gyrocam",
			Name:      "ticks_skipped_total",
			Help:      "Ticks dropped because a cycle was still in flight",
		}),
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gyrocam",
			Name:      "cycles_total",
			Help:      "Completed capture cycles by result",
		}, []string{"result"}),
		cycleFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gyrocam",
			Name:      "cycle_failures_total",
			Help:      "Per-cycle failures by pipeline stage",
		}, []string{"stage"}),
		captureDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "gyrocam",
			Name:      "capture_duration_seconds",
			Help:      "Still image capture latency",
			Buckets:   []float64{.005, .01, .025, .05, .066, .1, .25, .5, 1},
		}),
		sentBytes: prom.NewCounter(prom.CounterOpts{
			Namespace: "gyrocam",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to the collector socket",
		}),
		sessionPhase: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "gyrocam",
			Name:      "session_state",
			Help:      "1 for the current session phase, 0 otherwise",
		}, []string{"phase"}),
	}
	reg.MustRegister(p.ticks, p.ticksSkipped, p.cycles, p.cycleFailures, p.captureDuration, p.sentBytes, p.sessionPhase)
	p.SetSessionPhase("idle")
	return p
}

func (p *PrometheusRecorder) IncTick()        { p.ticks.Inc() }
func (p *PrometheusRecorder) IncTickSkipped() { p.ticksSkipped.Inc() }

func (p *PrometheusRecorder) IncCycle(result CycleResult) {
	p.cycles.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncCycleFailure(stage Stage) {
	p.cycleFailures.WithLabelValues(string(stage)).Inc()
}

func (p *PrometheusRecorder) ObserveCaptureDuration(d time.Duration) {
	p.captureDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddSentBytes(n int) { p.sentBytes.Add(float64(n)) }

func (p *PrometheusRecorder) SetSessionPhase(phase string) {
	for _, ph := range Phases {
		v := 0.0
		if ph == phase {
			v = 1
		}
		p.sessionPhase.WithLabelValues(ph).Set(v)
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// HTTPHandler serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
