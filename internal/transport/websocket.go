// Package transport is the socket layer under the connection manager: it
// dials the collector over WebSocket and exposes a write-only text channel
// with keepalive pings and peer-close detection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	closeGracePeriod        = time.Second
)

// ErrClosed is returned by writes on a connection closed locally.
var ErrClosed = errors.New("connection closed")

// Options tunes the dialer and its connections. Zero values pick defaults;
// a zero PingInterval disables keepalive pings.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	Header           http.Header
}

// Dialer opens connections to a collector.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is an open collector connection. WriteText and Close are safe for
// concurrent use.
type Conn interface {
	// WriteText sends one text frame.
	WriteText(data []byte) error
	// PeerClosed yields the peer's close reason if the remote end sends a
	// close frame, and is closed once the connection stops reading.
	PeerClosed() <-chan error
	// Close sends a normal-closure frame and releases the socket.
	Close() error
	RemoteAddr() string
}

// WSDialer dials with gorilla/websocket.
type WSDialer struct {
	opts Options
}

// NewDialer creates a WebSocket dialer.
func NewDialer(opts Options) *WSDialer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &WSDialer{opts: opts}
}

// Dial performs the WebSocket handshake. It honours ctx cancellation and
// the handshake timeout.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.opts.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	return newWSConn(conn, d.opts), nil
}

type wsConn struct {
	conn *websocket.Conn
	opts Options

	writeMu sync.Mutex // serialises data frames and pings

	closeOnce sync.Once
	local     chan struct{} // closed when Close is called
	peer      chan error
	pingStop  context.CancelFunc
}

func newWSConn(conn *websocket.Conn, opts Options) *wsConn {
	pingCtx, pingStop := context.WithCancel(context.Background())
	c := &wsConn{
		conn:     conn,
		opts:     opts,
		local:    make(chan struct{}),
		peer:     make(chan error, 1),
		pingStop: pingStop,
	}
	go c.readLoop()
	if opts.PingInterval > 0 {
		go c.pingLoop(pingCtx)
	}
	return c
}

func (c *wsConn) WriteText(data []byte) error {
	select {
	case <-c.local:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) PeerClosed() <-chan error { return c.peer }

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.local)
		c.pingStop()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// WriteControl may run concurrently with a data write.
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		err = c.conn.Close()
	})
	return err
}

// readLoop discards inbound data so the library can process ping, pong and
// close control frames. Only a close frame from the peer is surfaced.
func (c *wsConn) readLoop() {
	defer close(c.peer)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			select {
			case <-c.local:
				return
			default:
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.peer <- ce
				return
			}
			slog.Debug("Collector read ended", "error", err)
			return
		}
	}
}

// pingLoop sends periodic pings until ctx is cancelled or a ping fails.
func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
