package app

import (
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyrocam/client/internal/metrics"
	"github.com/gyrocam/client/internal/sensor"
	"github.com/gyrocam/client/internal/session"
)

type fakeController struct {
	mu       sync.Mutex
	state    session.State
	starts   []string
	stops    int
	startErr error
	reading  sensor.Reading
	counters session.Counters
	states   chan session.State
}

func newFakeController() *fakeController {
	return &fakeController{
		state:  session.State{Phase: session.Idle},
		states: make(chan session.State, 4),
	}
}

func (f *fakeController) Start(host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, host)
	if f.startErr != nil {
		return f.startErr
	}
	f.state = session.State{Phase: session.Connecting}
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = session.State{Phase: session.Disconnected}
}

func (f *fakeController) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) setState(st session.State) {
	f.mu.Lock()
	f.state = st
	f.mu.Unlock()
}

func (f *fakeController) Endpoint() (session.Endpoint, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.state.Active() || len(f.starts) == 0 {
		return session.Endpoint{}, false
	}
	ep, err := session.ParseEndpoint(f.starts[len(f.starts)-1], session.DefaultPort)
	return ep, err == nil
}

func (f *fakeController) LatestReading() sensor.Reading { return f.reading }

func (f *fakeController) Counters() session.Counters { return f.counters }

func (f *fakeController) Subscribe() (<-chan session.State, func()) {
	return f.states, func() {}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func TestTypeHostAndStart(t *testing.T) {
	ctrl := newFakeController()
	m := New(ctrl, Options{})
	require.True(t, m.editing, "empty host starts in edit mode")

	m, _ = update(t, m, keyRunes("192.168.1.50"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"192.168.1.50"}, ctrl.starts)
	assert.False(t, m.editing)
	assert.Equal(t, "connecting", m.statusBar.Phase)
	assert.Equal(t, "ws://192.168.1.50:8765", m.statusBar.Endpoint)
}

func TestEditKeysDoNotTriggerCommands(t *testing.T) {
	ctrl := newFakeController()
	m := New(ctrl, Options{})

	m, _ = update(t, m, keyRunes("q"))
	m, _ = update(t, m, keyRunes("s"))
	assert.Equal(t, "qs", m.input.Value())
	assert.Zero(t, ctrl.stops)
	assert.True(t, m.editing)
}

func TestStartDisabledWhileActive(t *testing.T) {
	ctrl := newFakeController()
	m := New(ctrl, Options{Host: "10.0.0.5"})
	require.False(t, m.editing)

	ctrl.setState(session.State{Phase: session.Streaming})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, ctrl.starts)
	assert.Contains(t, m.log.Entries[len(m.log.Entries)-1].Message, "ignored")

	m, _ = update(t, m, keyRunes("e"))
	assert.False(t, m.editing, "host cannot be edited mid-session")
}

func TestInvalidHostShowsError(t *testing.T) {
	ctrl := newFakeController()
	ctrl.startErr = errors.Join(session.ErrInvalidEndpoint, errors.New("host is empty"))
	m := New(ctrl, Options{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.statusBar.Error, "invalid endpoint")
	assert.Equal(t, "idle", m.statusBar.Phase)
}

func TestStopAndQuit(t *testing.T) {
	ctrl := newFakeController()
	m := New(ctrl, Options{Host: "localhost"})

	m, _ = update(t, m, keyRunes("s"))
	assert.Equal(t, 1, ctrl.stops)
	assert.Equal(t, "disconnected", m.statusBar.Phase)

	_, cmd := update(t, m, keyRunes("q"))
	require.NotNil(t, cmd)
	_, quit := cmd().(tea.QuitMsg)
	assert.True(t, quit)
	assert.Equal(t, 2, ctrl.stops)
}

func TestStateMessageUpdatesStatus(t *testing.T) {
	ctrl := newFakeController()
	m := sized(t, New(ctrl, Options{Host: "localhost"}))

	failed := session.State{Phase: session.Failed, Reason: "connection refused"}
	ctrl.setState(failed)
	m, cmd := update(t, m, stateMsg{State: failed})
	require.NotNil(t, cmd, "state pump must be re-armed")

	assert.Equal(t, "failed", m.statusBar.Phase)
	assert.Contains(t, m.View(), "Failed: connection refused")
	assert.Equal(t, 1, m.log.Count("sess"))

	ctrl.states <- session.State{Phase: session.Idle}
	assert.Equal(t, stateMsg{State: session.State{Phase: session.Idle}}, cmd())
}

func TestFailureMessageLogged(t *testing.T) {
	ctrl := newFakeController()
	failures := make(chan session.FailureEvent, 1)
	m := New(ctrl, Options{Host: "localhost", Failures: failures})

	m, cmd := update(t, m, failureMsg{Event: session.FailureEvent{
		Stage: metrics.StageCapture, Err: errors.New("camera not ready"),
	}})
	require.NotNil(t, cmd)
	require.Len(t, m.log.Entries, 1)
	assert.Equal(t, "capture: camera not ready", m.log.Entries[0].Message)
}

func TestFrameUpdatesGaugeAndCounters(t *testing.T) {
	ctrl := newFakeController()
	ctrl.reading = sensor.Reading{X: 1, Y: -1, Z: 0.5}
	ctrl.counters = session.Counters{Sent: 7, Failed: 2}
	m := New(ctrl, Options{Host: "localhost", Samples: func() uint64 { return 99 }})

	m, cmd := update(t, m, frameMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, uint64(7), m.statusBar.Sent)
	assert.Equal(t, uint64(2), m.statusBar.Failed)
	assert.Equal(t, uint64(99), m.statusBar.Samples)
	assert.Positive(t, m.gauge.Displayed()[0])
	assert.Negative(t, m.gauge.Displayed()[1])
}

func TestOverlays(t *testing.T) {
	ctrl := newFakeController()
	m := sized(t, New(ctrl, Options{Host: "localhost"}))

	m, _ = update(t, m, keyRunes("?"))
	assert.Equal(t, OverlayHelp, m.overlay)
	assert.Contains(t, m.View(), "8765")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, OverlayNone, m.overlay)

	m, _ = update(t, m, keyRunes("d"))
	assert.Equal(t, OverlayDebug, m.overlay)
	assert.Contains(t, m.View(), "EVENT LOG")

	// Start is not reachable from behind an overlay.
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, ctrl.starts)
	m, _ = update(t, m, keyRunes("d"))
	assert.Equal(t, OverlayNone, m.overlay)
}

func TestViewBeforeSize(t *testing.T) {
	m := New(newFakeController(), Options{Host: "localhost"})
	assert.Equal(t, "Initializing...", m.View())

	m = sized(t, m)
	v := m.View()
	assert.True(t, strings.Contains(v, "Idle"), v)
	assert.Contains(t, v, "GYRO")
}
