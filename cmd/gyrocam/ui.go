package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gyrocam/client/internal/logging"
	"github.com/gyrocam/client/internal/tui/app"
)

// UICmd implements the interactive shell.
type UICmd struct {
	Host string `arg:"" optional:"" help:"Collector host (defaults to session.host)"`
}

func (u *UICmd) Run(_ *Global, root *CLI) error {
	cfg := root.cfg
	host := u.Host
	if host == "" {
		host = cfg.Session.Host
	}

	// The alt screen owns the terminal; logs go to a file instead.
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := logging.Setup(logFile, cfg.Log.Level, cfg.Log.Format)

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

	m := app.New(rt.manager, app.Options{
		Host:     host,
		Port:     cfg.Session.Port,
		Failures: rt.failures,
		Samples:  rt.feed.Samples,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
