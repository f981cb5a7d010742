package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gyrocam/client/internal/collector"
)

// CollectCmd runs the development collector.
type CollectCmd struct {
	Host string `help:"Listen host (defaults to collector.host)"`
	Port int    `short:"p" help:"Listen port (defaults to collector.port)"`
}

func (c *CollectCmd) Run(g *Global, root *CLI) error {
	cfg := root.cfg.Collector
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := collector.NewServer(collector.Options{
		MaxClients:     cfg.MaxClients,
		AllowedOrigins: cfg.AllowedOrigins,
		ReportInterval: cfg.ReportInterval,
		Logger:         g.Logger,
	})
	return srv.ListenAndServe(ctx, cfg.Host, cfg.Port)
}
