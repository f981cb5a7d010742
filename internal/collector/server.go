// Package collector is a development sink for the streaming client. It
// accepts WebSocket connections, decodes each message and keeps running
// counters; it never replies with data.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyrocam/client/internal/logging"
	"github.com/gyrocam/client/internal/payload"
)

const (
	defaultMaxClients     = 8
	defaultReportInterval = 10 * time.Second
	readLimit             = 8 << 20
	closeGracePeriod      = time.Second
)

// ErrTooManyConnections is returned when MaxClients is reached.
var ErrTooManyConnections = errors.New("too many collector connections")

// Options configures a Server. Zero values pick defaults.
type Options struct {
	MaxClients     int
	AllowedOrigins []string
	ReportInterval time.Duration
	Logger         *slog.Logger
	// OnMessage, if set, is called for every decoded message.
	OnMessage func(msg payload.Message, frame []byte)
}

type client struct {
	conn   *websocket.Conn
	remote string
}

// Server is the collector.
type Server struct {
	opts           Options
	logger         *slog.Logger
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu      sync.RWMutex
	clients map[*client]bool

	stats *counters
}

// NewServer creates a collector.
func NewServer(opts Options) *Server {
	if opts.MaxClients <= 0 {
		opts.MaxClients = defaultMaxClients
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = defaultReportInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:           opts,
		logger:         opts.Logger,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		clients:        make(map[*client]bool),
		stats:          newCounters(),
	}
	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// SetupRoutes registers the WebSocket endpoint on every path, since the
// streaming client connects to the bare host:port.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleWS)
}

// Handler returns a mux with the collector routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	if s.ClientCount() >= s.opts.MaxClients {
		http.Error(w, ErrTooManyConnections.Error(), http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", logging.Remote(r.RemoteAddr), logging.Error(err))
		return
	}

	c, err := s.addClient(conn, r.RemoteAddr)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		conn.Close()
		return
	}
	s.logger.Info("Client connected", logging.Remote(c.remote))
	go s.readLoop(c)
}

func (s *Server) addClient(conn *websocket.Conn, remote string) (*client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= s.opts.MaxClients {
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, remote: remote}
	s.clients[c] = true
	return c, nil
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.removeClient(c)
		s.logger.Info("Client disconnected", logging.Remote(c.remote))
	}()
	c.conn.SetReadLimit(readLimit)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Client read ended", logging.Remote(c.remote), logging.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			s.stats.decodeError()
			continue
		}
		msg, frame, err := payload.Decode(data)
		if err != nil {
			s.stats.decodeError()
			s.logger.Debug("Undecodable message", logging.Remote(c.remote), logging.Error(err))
			continue
		}
		s.stats.record(msg, len(data), len(frame))
		if s.opts.OnMessage != nil {
			s.opts.OnMessage(msg, frame)
		}
	}
}

// CloseClients sends a close frame with code and text to every client and
// drops them.
func (s *Server) CloseClients(code int, text string) {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		s.removeClient(c)
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	st := s.stats.snapshot()
	st.Clients = s.ClientCount()
	return st
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Serve accepts connections on ln until ctx is cancelled, logging a rate
// summary every ReportInterval.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		s.reportLoop(ctx)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.CloseClients(websocket.CloseGoingAway, "collector shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-reportDone
		return err
	case err := <-errCh:
		<-reportDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ListenAndServe listens on host:port and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("collector listen on %s: %w", addr, err)
	}
	s.logger.Info("Collector listening", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}

func (s *Server) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.ReportInterval)
	defer ticker.Stop()

	var prev Stats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := s.Stats()
			if cur.Messages == prev.Messages && cur.Clients == prev.Clients {
				continue
			}
			rate := float64(cur.Messages-prev.Messages) / s.opts.ReportInterval.Seconds()
			s.logger.Info("Collector rate",
				"clients", cur.Clients,
				"messages", cur.Messages,
				"rate_hz", fmt.Sprintf("%.1f", rate),
				"decode_errors", cur.DecodeErrors,
				"last_frame_bytes", cur.LastFrameSize,
				"gyro_x", cur.LastGyro.X, "gyro_y", cur.LastGyro.Y, "gyro_z", cur.LastGyro.Z)
			prev = cur
		}
	}
}
