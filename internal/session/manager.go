// Package session owns the collector connection lifecycle and drives the
// capture→encode→send pipeline while streaming.
//
// A Manager runs at most one session at a time. Start validates the host and
// dials in the background; a successful handshake starts the cadence
// scheduler, and Stop tears both down. Once Stop returns no further frame is
// written for the stopped session, even if a cycle was still in flight.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyrocam/client/internal/cadence"
	"github.com/gyrocam/client/internal/camera"
	"github.com/gyrocam/client/internal/logging"
	"github.com/gyrocam/client/internal/metrics"
	"github.com/gyrocam/client/internal/sensor"
	"github.com/gyrocam/client/internal/transport"
)

const (
	subscriberBuffer = 16
	dropLogInterval  = 10 * time.Second
	failureLogEvery  = 5 * time.Second
)

// Counters are process-lifetime pipeline totals.
type Counters struct {
	Sent      uint64
	Failed    uint64
	Discarded uint64
	SentBytes uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithPort overrides DefaultPort.
func WithPort(port int) Option {
	return func(m *Manager) { m.port = port }
}

// WithInterval overrides the cadence interval.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d transport.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) { m.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithFailureEvents delivers per-cycle failures on ch. Sends never block;
// events are dropped when ch is full.
func WithFailureEvents(ch chan<- FailureEvent) Option {
	return func(m *Manager) { m.failures = ch }
}

// stream is one Start..Stop lifetime.
type stream struct {
	id       string
	endpoint Endpoint
	logger   *slog.Logger
	cancel   context.CancelFunc

	// Set under Manager.mu once the handshake succeeds.
	conn  transport.Conn
	sched *cadence.Scheduler
}

// Manager is the connection manager.
type Manager struct {
	feed     *sensor.Feed
	camera   camera.Source
	dialer   transport.Dialer
	port     int
	interval time.Duration
	rec      metrics.Recorder
	logger   *slog.Logger
	failures chan<- FailureEvent

	mu      sync.Mutex
	state   State
	current *stream
	subs    map[int]chan State
	nextSub int

	// lifeMu serialises Stop and fail so a terminal state is published only
	// after the previous session is fully torn down.
	lifeMu sync.Mutex

	// sendMu serialises the liveness check and the write so Stop can wait
	// out a write that passed the check.
	sendMu sync.Mutex

	dropped     int
	lastDropLog time.Time

	failMu      sync.Mutex
	lastFailLog map[metrics.Stage]time.Time
	suppressed  map[metrics.Stage]int

	sent      atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
	sentBytes atomic.Uint64
}

// New creates an idle manager reading gyro samples from feed and frames from
// cam.
func New(feed *sensor.Feed, cam camera.Source, opts ...Option) *Manager {
	m := &Manager{
		feed:        feed,
		camera:      camera.Guard(cam),
		port:        DefaultPort,
		interval:    cadence.DefaultInterval,
		rec:         metrics.NoopRecorder{},
		logger:      slog.Default(),
		state:       State{Phase: Idle},
		subs:        make(map[int]chan State),
		lastFailLog: make(map[metrics.Stage]time.Time),
		suppressed:  make(map[metrics.Stage]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = transport.NewDialer(transport.Options{})
	}
	m.rec.SetSessionPhase(Idle.Label())
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Endpoint returns the endpoint of the active session, if any.
func (m *Manager) Endpoint() (Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Endpoint{}, false
	}
	return m.current.endpoint, true
}

// LatestReading returns the most recent gyro sample, or zeros before the
// first one arrives.
func (m *Manager) LatestReading() sensor.Reading {
	return m.feed.Current()
}

// Counters returns pipeline totals.
func (m *Manager) Counters() Counters {
	return Counters{
		Sent:      m.sent.Load(),
		Failed:    m.failed.Load(),
		Discarded: m.discarded.Load(),
		SentBytes: m.sentBytes.Load(),
	}
}

// Subscribe returns a channel receiving every state transition and a func to
// unsubscribe. A slow subscriber misses transitions rather than blocking the
// manager; State always has the latest.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Start validates hostText and begins connecting in the background. It
// returns ErrInvalidEndpoint without any state change for bad input, and
// ErrSessionActive while a session is connecting or streaming.
func (m *Manager) Start(hostText string) error {
	ep, err := ParseEndpoint(hostText, m.port)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state.Active() {
		m.mu.Unlock()
		return ErrSessionActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{
		id:       uuid.NewString(),
		endpoint: ep,
		cancel:   cancel,
	}
	s.logger = m.logger.With(logging.SessionID(s.id), logging.Endpoint(ep.URL()))
	m.current = s
	m.setStateLocked(State{Phase: Connecting})
	m.mu.Unlock()

	go m.connect(ctx, s)
	return nil
}

// Stop ends the current session. It is idempotent and safe from any state;
// the manager is Disconnected afterwards. After Stop returns, nothing more
// is sent for the stopped session.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		m.teardown(s)
	}

	m.mu.Lock()
	if m.current == nil && m.state.Phase != Disconnected {
		m.setStateLocked(State{Phase: Disconnected})
	}
	m.mu.Unlock()

	if s != nil {
		s.logger.Info("Session stopped")
	}
}

func (m *Manager) connect(ctx context.Context, s *stream) {
	s.logger.Info("Connecting to collector")
	start := time.Now()
	conn, err := m.dialer.Dial(ctx, s.endpoint.URL())

	m.mu.Lock()
	if m.current != s {
		// Stopped while dialing.
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		herr := &HandshakeError{Endpoint: s.endpoint, Err: err}
		m.current = nil
		m.setStateLocked(State{Phase: Failed, Reason: err.Error()})
		m.mu.Unlock()
		s.cancel()
		s.logger.Warn("Handshake failed", logging.Error(herr))
		return
	}

	sched := cadence.New(m.interval,
		func(cctx context.Context) { m.cycle(cctx, s) },
		cadence.WithRecorder(m.rec),
		cadence.WithLogger(s.logger),
	)
	if err := sched.Start(); err != nil {
		m.current = nil
		m.setStateLocked(State{Phase: Failed, Reason: err.Error()})
		m.mu.Unlock()
		s.cancel()
		_ = conn.Close()
		s.logger.Error("Failed to start cadence scheduler", logging.Error(err))
		return
	}
	s.conn = conn
	s.sched = sched
	m.setStateLocked(State{Phase: Streaming})
	m.mu.Unlock()

	s.logger.Info("Streaming",
		logging.Remote(conn.RemoteAddr()),
		logging.DurationMS(float64(time.Since(start).Microseconds())/1000))
	go m.watchPeer(s, conn)
}

// watchPeer escalates a collector-initiated close to Failed.
func (m *Manager) watchPeer(s *stream, conn transport.Conn) {
	for err := range conn.PeerClosed() {
		m.fail(s, "closed by peer: "+err.Error())
	}
}

// fail tears s down and then publishes Failed, so observers never see a
// terminal state while the scheduler or socket is still live.
func (m *Manager) fail(s *stream, reason string) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	s.logger.Warn("Session failed", "reason", reason)
	m.teardown(s)

	m.mu.Lock()
	if m.current == nil {
		m.setStateLocked(State{Phase: Failed, Reason: reason})
	}
	m.mu.Unlock()
}

// teardown must be called after s was detached from m.current. When it
// returns the scheduler is stopped, the socket is closed and no write for s
// is in progress.
func (m *Manager) teardown(s *stream) {
	m.mu.Lock()
	sched, conn := s.sched, s.conn
	m.mu.Unlock()

	s.cancel()
	if sched != nil {
		sched.Stop()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Close connection", logging.Error(err))
		}
	}
	// Barrier: wait out a write that passed the liveness check.
	m.sendMu.Lock()
	m.sendMu.Unlock() //nolint:staticcheck
}

// setStateLocked must be called with m.mu held.
func (m *Manager) setStateLocked(st State) {
	prev := m.state
	m.state = st
	m.rec.SetSessionPhase(st.Phase.Label())
	m.logger.Debug("Session state changed",
		"from", prev.String(), logging.State(st.String()))

	for _, ch := range m.subs {
		select {
		case ch <- st:
		default:
			m.dropped++
		}
	}
	if m.dropped > 0 {
		now := time.Now()
		if m.lastDropLog.IsZero() || now.Sub(m.lastDropLog) >= dropLogInterval {
			m.logger.Warn("State notifications dropped", "count", m.dropped)
			m.dropped = 0
			m.lastDropLog = now
		}
	}
}

// live reports whether s is still the streaming session.
func (m *Manager) live(s *stream) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == s && m.state.Phase == Streaming
}

// send writes data if s is still the live streaming session.
func (m *Manager) send(s *stream, data []byte) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	live := m.current == s && m.state.Phase == Streaming
	conn := s.conn
	m.mu.Unlock()
	if !live || conn == nil {
		return errDiscarded
	}
	if err := conn.WriteText(data); err != nil {
		return &SendError{Err: err}
	}
	return nil
}
