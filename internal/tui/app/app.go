// Package app is the root Bubble Tea model of the gyrocam shell. It edits the
// collector host, starts and stops sessions, and shows the session state,
// the live gyro reading and an event log.
package app

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gyrocam/client/internal/sensor"
	"github.com/gyrocam/client/internal/session"
	"github.com/gyrocam/client/internal/tui/theme"
	"github.com/gyrocam/client/internal/tui/views/debug"
	"github.com/gyrocam/client/internal/tui/views/gyro"
	"github.com/gyrocam/client/internal/tui/views/help"
	"github.com/gyrocam/client/internal/tui/views/status"
)

// Controller is the session surface the shell drives.
type Controller interface {
	Start(host string) error
	Stop()
	State() session.State
	Endpoint() (session.Endpoint, bool)
	LatestReading() sensor.Reading
	Counters() session.Counters
	Subscribe() (<-chan session.State, func())
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDebug
	OverlayHelp
)

const frameInterval = time.Second / gyro.FPS

// --- Bubble Tea messages ---

type stateMsg struct{ State session.State }

type failureMsg struct{ Event session.FailureEvent }

type frameMsg time.Time

// Options configures the model.
type Options struct {
	Host     string
	Port     int
	Failures <-chan session.FailureEvent
	Samples  func() uint64
}

// Model is the root Bubble Tea model.
type Model struct {
	ctrl        Controller
	states      <-chan session.State
	unsubscribe func()
	failures    <-chan session.FailureEvent
	samples     func() uint64

	keys   KeyMap
	width  int
	height int

	input   textinput.Model
	editing bool
	overlay Overlay

	statusBar status.Model
	gauge     gyro.Model
	log       debug.Model
	help      help.Model
}

// New creates the root model.
func New(ctrl Controller, opts Options) Model {
	keys := DefaultKeyMap()

	ti := textinput.New()
	ti.Placeholder = "collector host, e.g. 192.168.1.50"
	ti.Prompt = "host › "
	ti.CharLimit = 253
	ti.SetValue(opts.Host)

	port := opts.Port
	if port == 0 {
		port = session.DefaultPort
	}

	states, unsubscribe := ctrl.Subscribe()
	m := Model{
		ctrl:        ctrl,
		states:      states,
		unsubscribe: unsubscribe,
		failures:    opts.Failures,
		samples:     opts.Samples,
		keys:        keys,
		input:       ti,
		statusBar:   status.New(),
		gauge:       gyro.New(),
		log:         debug.New(),
		help:        help.New(port, keys.HelpBindings()...),
	}
	if opts.Host == "" {
		m.editing = true
		m.input.Focus()
	}
	m.syncState(ctrl.State())
	return m
}

// Init starts the state, failure and frame pumps.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForState(m.states), frameTick()}
	if m.failures != nil {
		cmds = append(cmds, waitForFailure(m.failures))
	}
	if m.editing {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

func waitForState(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg{State: st}
	}
}

func waitForFailure(ch <-chan session.FailureEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return failureMsg{Event: ev}
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.gauge.Width = msg.Width
		m.input.Width = max(msg.Width-12, 20)
		if m.overlay == OverlayHelp {
			m.help.Render(m.width)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		m.syncState(msg.State)
		m.log.Add(debug.KindSession, msg.State.String())
		return m, waitForState(m.states)

	case failureMsg:
		m.log.Addf(debug.KindFailure, "%s: %v", msg.Event.Stage, msg.Event.Err)
		m.statusBar.Failed = m.ctrl.Counters().Failed
		return m, waitForFailure(m.failures)

	case frameMsg:
		r := m.ctrl.LatestReading()
		m.gauge.SetTarget(r.X, r.Y, r.Z)
		m.gauge.Step()
		c := m.ctrl.Counters()
		m.statusBar.Sent = c.Sent
		m.statusBar.Failed = c.Failed
		if m.samples != nil {
			m.statusBar.Samples = m.samples()
		}
		return m, frameTick()
	}

	if m.editing {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) syncState(st session.State) {
	m.statusBar.Phase = st.Phase.Label()
	m.statusBar.State = st.String()
	if ep, ok := m.ctrl.Endpoint(); ok {
		m.statusBar.Endpoint = ep.URL()
	} else if !st.Active() {
		m.statusBar.Endpoint = ""
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.editing {
		switch msg.Type {
		case tea.KeyEnter:
			m.editing = false
			m.input.Blur()
			return m.start()
		case tea.KeyEsc:
			m.editing = false
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	if m.overlay != OverlayNone {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Help) && m.overlay == OverlayHelp,
			key.Matches(msg, m.keys.Debug) && m.overlay == OverlayDebug:
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up) && m.overlay == OverlayDebug:
			m.log.ScrollUp(1)
		case key.Matches(msg, m.keys.Down) && m.overlay == OverlayDebug:
			m.log.ScrollDown(1)
		case key.Matches(msg, m.keys.Quit):
			return m.quit()
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Start):
		return m.start()

	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
		m.log.Add(debug.KindUI, "stop requested")
		m.syncState(m.ctrl.State())
		return m, nil

	case key.Matches(msg, m.keys.Edit):
		if m.ctrl.State().Active() {
			m.log.Add(debug.KindUI, "host is fixed while a session is active; stop first")
			return m, nil
		}
		m.editing = true
		m.statusBar.Error = ""
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		m.help.Render(m.width)
		return m, nil
	}
	return m, nil
}

// start is ignored while a session is connecting or streaming.
func (m Model) start() (tea.Model, tea.Cmd) {
	if m.ctrl.State().Active() {
		m.log.Add(debug.KindUI, "start ignored: session already active")
		return m, nil
	}
	if err := m.ctrl.Start(m.input.Value()); err != nil {
		m.statusBar.Error = err.Error()
		m.log.Addf(debug.KindUI, "start rejected: %v", err)
		return m, nil
	}
	m.statusBar.Error = ""
	m.log.Addf(debug.KindUI, "start requested for %q", m.input.Value())
	m.syncState(m.ctrl.State())
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.ctrl.Stop()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

// View renders the shell.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayDebug:
		return m.log.View(m.width, m.height)
	case OverlayHelp:
		return m.help.View(m.width)
	}

	sections := []string{
		m.statusBar.View(),
		"",
		m.renderInput(),
		"",
		theme.StyleBorder.Width(max(m.width-2, 20)).Render(m.gauge.View()),
		m.renderHints(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderInput() string {
	if m.editing {
		return "  " + m.input.View() + theme.StyleDimmed.Render("  enter:start  esc:cancel")
	}
	host := m.input.Value()
	if host == "" {
		host = theme.StyleDimmed.Render("(no host)")
	}
	return "  host › " + host
}

func (m Model) renderHints() string {
	start := "enter:start"
	if m.ctrl.State().Active() {
		start = lipgloss.NewStyle().Strikethrough(true).Render(start)
	}
	return theme.StyleDimmed.Render("  e:edit host  ") + theme.StyleDimmed.Render(start) +
		theme.StyleDimmed.Render("  s:stop  d:log  ?:help  q:quit")
}
