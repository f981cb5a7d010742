package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPrometheusRecorder(reg)

	p.IncTick()
	p.IncTick()
	p.IncTickSkipped()
	p.IncCycle(CycleSent)
	p.IncCycleFailure(StageCapture)
	p.IncCycleFailure(StageCapture)
	p.AddSentBytes(128)
	p.ObserveCaptureDuration(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.ticksSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cycles.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.cycleFailures.WithLabelValues("capture")))
	assert.Equal(t, 128.0, testutil.ToFloat64(p.sentBytes))
}

func TestSessionPhaseIsOneHot(t *testing.T) {
	p := NewPrometheusRecorder(nil)
	p.SetSessionPhase("streaming")

	for _, ph := range Phases {
		want := 0.0
		if ph == "streaming" {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(p.sessionPhase.WithLabelValues(ph)), ph)
	}
}

func TestHTTPHandlerExposesMetrics(t *testing.T) {
	reg := NewRegistry()
	p := NewPrometheusRecorder(reg)
	p.IncTick()

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gyrocam_ticks_total 1")
	assert.Contains(t, string(body), `gyrocam_session_state{phase="idle"} 1`)
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncTick()
	r.SetSessionPhase("idle")
}
