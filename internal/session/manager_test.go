package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyrocam/client/internal/camera"
	"github.com/gyrocam/client/internal/metrics"
	"github.com/gyrocam/client/internal/payload"
	"github.com/gyrocam/client/internal/sensor"
	"github.com/gyrocam/client/internal/transport"
)

const testInterval = 10 * time.Millisecond

var testFrame = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func staticCamera(frame []byte) camera.Source {
	return camera.SourceFunc(func(context.Context) ([]byte, error) {
		return frame, nil
	})
}

// --- fake transport ---

type fakeConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	peer     chan error
	closed   atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{peer: make(chan error, 1)}
}

func (c *fakeConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return c.writeErr
}

func (c *fakeConn) PeerClosed() <-chan error { return c.peer }
func (c *fakeConn) Close() error             { c.closed.Store(true); return nil }
func (c *fakeConn) RemoteAddr() string       { return "127.0.0.1:8765" }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

type fakeDialer struct {
	conn  *fakeConn
	err   error
	gate  chan struct{} // if set, Dial blocks until closed or ctx done
	urls  chan string
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.dials.Add(1)
	if d.urls != nil {
		d.urls <- url
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func newTestManager(t *testing.T, cam camera.Source, opts ...Option) (*Manager, *sensor.Feed) {
	t.Helper()
	feed := sensor.NewFeed()
	opts = append([]Option{WithInterval(testInterval)}, opts...)
	m := New(feed, cam, opts...)
	t.Cleanup(m.Stop)
	return m, feed
}

func waitForPhase(t *testing.T, m *Manager, p Phase) State {
	t.Helper()
	require.Eventually(t, func() bool { return m.State().Phase == p },
		2*time.Second, 5*time.Millisecond, "want phase %s, have %s", p.Label(), m.State())
	return m.State()
}

func nextFailure(t *testing.T, ch <-chan FailureEvent) FailureEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no failure event")
		return FailureEvent{}
	}
}

// --- tests ---

func TestNewManagerIsIdle(t *testing.T) {
	m, _ := newTestManager(t, staticCamera(testFrame))
	assert.Equal(t, State{Phase: Idle}, m.State())
	_, ok := m.Endpoint()
	assert.False(t, ok)
	assert.Equal(t, sensor.Reading{}, m.LatestReading())
}

func TestStartRejectsInvalidHost(t *testing.T) {
	d := &fakeDialer{conn: newFakeConn()}
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(d))

	for _, host := range []string{"", "   ", "ws://x", "host:1"} {
		err := m.Start(host)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, host)
	}
	assert.Equal(t, Idle, m.State().Phase)
	assert.Zero(t, d.dials.Load())
}

func TestStreamingSendsFramesWithLatestReading(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{conn: conn, urls: make(chan string, 1)}
	m, feed := newTestManager(t, staticCamera(testFrame), WithDialer(d))
	feed.Publish(sensor.Reading{X: 0.12, Y: -0.03, Z: 0.98})

	require.NoError(t, m.Start("192.168.1.50"))
	assert.Equal(t, "ws://192.168.1.50:8765", <-d.urls)
	waitForPhase(t, m, Streaming)

	ep, ok := m.Endpoint()
	require.True(t, ok)
	assert.Equal(t, "192.168.1.50", ep.Host)

	require.Eventually(t, func() bool { return conn.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	conn.mu.Lock()
	first := conn.writes[0]
	conn.mu.Unlock()
	msg, frame, err := payload.Decode(first)
	require.NoError(t, err)
	assert.Equal(t, testFrame, frame)
	assert.Equal(t, payload.Gyro{X: 0.12, Y: -0.03, Z: 0.98}, msg.Gyro)

	c := m.Counters()
	assert.GreaterOrEqual(t, c.Sent, uint64(3))
	assert.Positive(t, c.SentBytes)
}

func TestStopHaltsSending(t *testing.T) {
	conn := newFakeConn()
	var captures atomic.Int32
	cam := camera.SourceFunc(func(context.Context) ([]byte, error) {
		captures.Add(1)
		return testFrame, nil
	})
	m, _ := newTestManager(t, cam, WithDialer(&fakeDialer{conn: conn}))

	require.NoError(t, m.Start("localhost"))
	waitForPhase(t, m, Streaming)
	require.Eventually(t, func() bool { return conn.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	after, captured := conn.count(), captures.Load()
	assert.Equal(t, State{Phase: Disconnected}, m.State())
	assert.True(t, conn.closed.Load())

	time.Sleep(10 * testInterval)
	assert.Equal(t, after, conn.count(), "frames written after Stop returned")
	// At most the cycle already past its liveness check may still capture.
	assert.LessOrEqual(t, captures.Load(), captured+1, "captures continued after Stop returned")
}

func TestStopDiscardsInFlightCycle(t *testing.T) {
	conn := newFakeConn()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	cam := camera.SourceFunc(func(context.Context) ([]byte, error) {
		once.Do(func() { close(entered) })
		<-release
		return testFrame, nil
	})
	m, _ := newTestManager(t, cam, WithDialer(&fakeDialer{conn: conn}))

	require.NoError(t, m.Start("localhost"))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("capture never started")
	}

	m.Stop()
	close(release)

	require.Eventually(t, func() bool { return m.Counters().Discarded >= 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Zero(t, conn.count())
	assert.Zero(t, m.Counters().Sent)
}

func TestSlowCaptureNeverOverlaps(t *testing.T) {
	var running, maxRunning, calls atomic.Int32
	cam := camera.SourceFunc(func(context.Context) ([]byte, error) {
		n := running.Add(1)
		for {
			cur := maxRunning.Load()
			if n <= cur || maxRunning.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * testInterval)
		running.Add(-1)
		calls.Add(1)
		return testFrame, nil
	})
	conn := newFakeConn()
	m, _ := newTestManager(t, cam, WithDialer(&fakeDialer{conn: conn}))

	require.NoError(t, m.Start("localhost"))
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 3*time.Second, 5*time.Millisecond)
	m.Stop()

	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestStartWhileActive(t *testing.T) {
	d := &fakeDialer{conn: newFakeConn(), gate: make(chan struct{})}
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(d))

	require.NoError(t, m.Start("localhost"))
	assert.Equal(t, Connecting, m.State().Phase)
	assert.ErrorIs(t, m.Start("localhost"), ErrSessionActive)

	close(d.gate)
	waitForPhase(t, m, Streaming)
	assert.ErrorIs(t, m.Start("other-host"), ErrSessionActive)
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestStopWhileConnecting(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{conn: conn, gate: make(chan struct{})}
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(d))

	require.NoError(t, m.Start("localhost"))
	m.Stop()
	assert.Equal(t, Disconnected, m.State().Phase)

	// A dial that resolves after Stop must not revive the session.
	close(d.gate)
	time.Sleep(10 * testInterval)
	assert.Equal(t, Disconnected, m.State().Phase)
	assert.Zero(t, conn.count())
}

func TestHandshakeFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("dial tcp 10.0.0.5:8765: connect: connection refused")}
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(d))

	require.NoError(t, m.Start("10.0.0.5"))
	st := waitForPhase(t, m, Failed)
	assert.Contains(t, st.Reason, "connection refused")
	assert.Equal(t, "Failed: "+st.Reason, st.String())

	_, ok := m.Endpoint()
	assert.False(t, ok)
}

func TestHandshakeRefusedRealSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m, _ := newTestManager(t, staticCamera(testFrame), WithPort(port))
	require.NoError(t, m.Start("127.0.0.1"))
	st := waitForPhase(t, m, Failed)
	assert.Contains(t, st.Reason, "refused")
}

func TestRestartAfterFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(d))

	require.NoError(t, m.Start("localhost"))
	waitForPhase(t, m, Failed)

	conn := newFakeConn()
	m.dialer = &fakeDialer{conn: conn}
	require.NoError(t, m.Start("localhost"))
	waitForPhase(t, m, Streaming)
	require.Eventually(t, func() bool { return conn.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestPeerCloseFailsSession(t *testing.T) {
	conn := newFakeConn()
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(&fakeDialer{conn: conn}))
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	require.NoError(t, m.Start("localhost"))
	waitForPhase(t, m, Streaming)
	require.Eventually(t, func() bool { return conn.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	conn.peer <- &websocket.CloseError{Code: websocket.CloseGoingAway, Text: "bye"}
	close(conn.peer)

	// The socket is already released when Failed becomes observable.
	timeout := time.After(2 * time.Second)
	for failed := false; !failed; {
		select {
		case st := <-ch:
			if st.Phase == Failed {
				failed = true
				assert.True(t, conn.closed.Load(), "Failed published before the socket was closed")
			}
		case <-timeout:
			t.Fatal("no Failed transition")
		}
	}

	st := m.State()
	assert.Contains(t, st.Reason, "closed by peer")
	assert.True(t, conn.closed.Load())

	// No tick dispatches once Failed is observable.
	writes, sent := conn.count(), m.Counters().Sent
	time.Sleep(10 * testInterval)
	assert.Equal(t, writes, conn.count())
	assert.Equal(t, sent, m.Counters().Sent)

	m.Stop()
	assert.Equal(t, Disconnected, m.State().Phase)
}

func TestStopPublishesDisconnectedAfterTeardown(t *testing.T) {
	conn := newFakeConn()
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(&fakeDialer{conn: conn}))
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	require.NoError(t, m.Start("localhost"))
	waitForPhase(t, m, Streaming)

	done := make(chan bool, 1)
	go func() {
		for st := range ch {
			if st.Phase == Disconnected {
				done <- conn.closed.Load()
				return
			}
		}
	}()
	m.Stop()

	select {
	case closed := <-done:
		assert.True(t, closed, "Disconnected published before the socket was closed")
	case <-time.After(2 * time.Second):
		t.Fatal("no Disconnected transition")
	}
}

func TestCaptureFailureDoesNotChangeState(t *testing.T) {
	var n atomic.Int32
	cam := camera.SourceFunc(func(context.Context) ([]byte, error) {
		if n.Add(1) == 1 {
			return nil, camera.ErrNotReady
		}
		return testFrame, nil
	})
	events := make(chan FailureEvent, 8)
	conn := newFakeConn()
	m, _ := newTestManager(t, cam,
		WithDialer(&fakeDialer{conn: conn}), WithFailureEvents(events))

	require.NoError(t, m.Start("localhost"))

	select {
	case ev := <-events:
		assert.Equal(t, metrics.StageCapture, ev.Stage)
		assert.ErrorIs(t, ev.Err, camera.ErrCaptureFailure)
		assert.NotEmpty(t, ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no failure event")
	}

	require.Eventually(t, func() bool { return conn.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Streaming, m.State().Phase)
	assert.GreaterOrEqual(t, m.Counters().Failed, uint64(1))
}

func TestEmptyFrameIsCaptureFailure(t *testing.T) {
	events := make(chan FailureEvent, 8)
	conn := newFakeConn()
	m, _ := newTestManager(t, staticCamera(nil),
		WithDialer(&fakeDialer{conn: conn}), WithFailureEvents(events))

	require.NoError(t, m.Start("localhost"))
	ev := nextFailure(t, events)
	assert.Equal(t, metrics.StageCapture, ev.Stage)
	assert.Zero(t, conn.count())
}

func TestSendFailureIsReportedOnly(t *testing.T) {
	events := make(chan FailureEvent, 32)
	conn := newFakeConn()
	conn.setWriteErr(errors.New("broken pipe"))
	m, _ := newTestManager(t, staticCamera(testFrame),
		WithDialer(&fakeDialer{conn: conn}), WithFailureEvents(events))

	require.NoError(t, m.Start("localhost"))
	ev := nextFailure(t, events)
	assert.Equal(t, metrics.StageSend, ev.Stage)
	var se *SendError
	assert.ErrorAs(t, ev.Err, &se)
	assert.Equal(t, Streaming, m.State().Phase)

	conn.setWriteErr(nil)
	before := m.Counters().Sent
	require.Eventually(t, func() bool { return m.Counters().Sent > before },
		2*time.Second, 5*time.Millisecond)
}

func TestNonFiniteReadingIsEncodeFailure(t *testing.T) {
	events := make(chan FailureEvent, 8)
	conn := newFakeConn()
	m, feed := newTestManager(t, staticCamera(testFrame),
		WithDialer(&fakeDialer{conn: conn}), WithFailureEvents(events))
	var zero float64
	feed.Publish(sensor.Reading{X: zero / zero})

	require.NoError(t, m.Start("localhost"))
	ev := nextFailure(t, events)
	assert.Equal(t, metrics.StageEncode, ev.Stage)
	assert.ErrorIs(t, ev.Err, payload.ErrEncodeFailure)
}

func TestStopIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, staticCamera(testFrame))

	m.Stop()
	assert.Equal(t, State{Phase: Disconnected}, m.State())
	m.Stop()
	assert.Equal(t, State{Phase: Disconnected}, m.State())
}

func TestSubscribeSeesTransitions(t *testing.T) {
	m, _ := newTestManager(t, staticCamera(testFrame), WithDialer(&fakeDialer{conn: newFakeConn()}))
	ch, cancel := m.Subscribe()
	defer cancel()

	require.NoError(t, m.Start("localhost"))
	waitForPhase(t, m, Streaming)
	m.Stop()

	var got []Phase
	for len(got) < 3 {
		select {
		case st := <-ch:
			got = append(got, st.Phase)
		case <-time.After(2 * time.Second):
			t.Fatalf("missing transitions, have %v", got)
		}
	}
	assert.Equal(t, []Phase{Connecting, Streaming, Disconnected}, got)

	cancel()
	cancel()
	require.NoError(t, m.Start("localhost"))
	select {
	case st := <-ch:
		t.Fatalf("unexpected notification after unsubscribe: %v", st)
	case <-time.After(5 * testInterval):
	}
}

// TestEndToEndWebSocket streams to a real WebSocket listener.
func TestEndToEndWebSocket(t *testing.T) {
	received := make(chan []byte, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			select {
			case received <- data:
			default:
			}
		}
	}))
	defer srv.Close()

	host, portText, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portText)
	require.NoError(t, err)

	m, feed := newTestManager(t, staticCamera(testFrame), WithPort(port))
	feed.Publish(sensor.Reading{X: 1, Y: 2, Z: 3})
	require.NoError(t, m.Start(host))
	waitForPhase(t, m, Streaming)

	select {
	case data := <-received:
		msg, frame, err := payload.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, testFrame, frame)
		assert.Equal(t, payload.Gyro{X: 1, Y: 2, Z: 3}, msg.Gyro)
	case <-time.After(2 * time.Second):
		t.Fatal("collector received nothing")
	}

	m.Stop()
	assert.Equal(t, Disconnected, m.State().Phase)
}
