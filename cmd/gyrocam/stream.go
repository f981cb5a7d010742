package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyrocam/client/internal/logging"
	"github.com/gyrocam/client/internal/session"
)

const statsLogInterval = 10 * time.Second

// StreamCmd streams without a UI.
type StreamCmd struct {
	Host string `arg:"" optional:"" help:"Collector host (defaults to session.host)"`
}

func (s *StreamCmd) Run(g *Global, root *CLI) error {
	cfg := root.cfg
	host := s.Host
	if host == "" {
		host = cfg.Session.Host
	}
	logger := g.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("Shutdown", logging.Error(err))
		}
	}()

	states, unsubscribe := rt.manager.Subscribe()
	defer unsubscribe()

	if err := rt.manager.Start(host); err != nil {
		return err
	}

	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rt.manager.Stop()
			c := rt.manager.Counters()
			logger.Info("Stopped", "sent", c.Sent, "failed", c.Failed, "discarded", c.Discarded, logging.Bytes(int(c.SentBytes)))
			return nil

		case st := <-states:
			logger.Info("Session state", logging.State(st.String()))
			if st.Phase == session.Failed {
				return fmt.Errorf("session failed: %s", st.Reason)
			}

		case <-rt.failures:
			// Already logged by the manager; drained so the channel stays live.

		case <-ticker.C:
			c := rt.manager.Counters()
			logger.Info("Streaming stats",
				"sent", c.Sent, "failed", c.Failed, logging.Bytes(int(c.SentBytes)),
				"gyro_samples", rt.feed.Samples())
		}
	}
}
