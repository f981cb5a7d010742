package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gyrocam/client/internal/camera"
	"github.com/gyrocam/client/internal/config"
	"github.com/gyrocam/client/internal/logging"
	"github.com/gyrocam/client/internal/metrics"
	"github.com/gyrocam/client/internal/sensor"
	"github.com/gyrocam/client/internal/session"
	"github.com/gyrocam/client/internal/transport"
)

const failureBuffer = 64

// runtime wires the client components from configuration.
type runtime struct {
	cfg      *config.Config
	feed     *sensor.Feed
	gate     *camera.Gate
	manager  *session.Manager
	failures chan session.FailureEvent

	closers []func() error
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		feed:     sensor.NewFeed(),
		failures: make(chan session.FailureEvent, failureBuffer),
	}

	reg := metrics.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)

	if err := rt.feed.Attach(ctx, sensor.NewSimulated(cfg.Sensor.SampleInterval)); err != nil {
		return nil, fmt.Errorf("attach sensor: %w", err)
	}

	src, err := rt.openCamera()
	if err != nil {
		return nil, err
	}
	rt.gate = camera.NewGate(src, true)

	dialer := transport.NewDialer(transport.Options{
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		WriteTimeout:     cfg.Session.WriteTimeout,
		PingInterval:     cfg.Session.PingInterval,
	})
	rt.manager = session.New(rt.feed, rt.gate,
		session.WithPort(cfg.Session.Port),
		session.WithInterval(cfg.Cadence.Interval),
		session.WithDialer(dialer),
		session.WithRecorder(rec),
		session.WithLogger(logger),
		session.WithFailureEvents(rt.failures),
	)

	if cfg.Metrics.Listen != "" {
		rt.serveMetrics(cfg.Metrics.Listen, metrics.HTTPHandler(reg), logger)
	}
	return rt, nil
}

func (rt *runtime) openCamera() (camera.Source, error) {
	c := rt.cfg.Camera
	switch c.Source {
	case config.CameraDirectory:
		dir, err := camera.NewDirectory(c.Directory)
		if err != nil {
			return nil, fmt.Errorf("open camera directory: %w", err)
		}
		rt.closers = append(rt.closers, dir.Close)
		return dir, nil
	default:
		return camera.NewSynthetic(c.Width, c.Height, c.Quality), nil
	}
}

func (rt *runtime) serveMetrics(addr string, h http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", logging.Error(err))
		}
	}()
	rt.closers = append(rt.closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Close stops the session and releases resources.
func (rt *runtime) Close() error {
	rt.manager.Stop()
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
