package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/gyrocam/client/internal/config"
	"github.com/gyrocam/client/internal/logging"
)

// CLI definition and global flags.
type CLI struct {
	Config    string `short:"c" help:"Configuration file path (optional)" default:"gyrocam.yaml" type:"path"`
	EnvFile   string `help:"Dotenv file loaded before the environment is read" default:".env" type:"path"`
	Verbose   bool   `short:"v" help:"Enable debug logging"`
	LogFormat string `help:"Log format (text or json); defaults to log.format"`

	UI      UICmd      `cmd:"" default:"withargs" help:"Interactive shell (default)"`
	Stream  StreamCmd  `cmd:"" help:"Stream headless until interrupted or the session fails"`
	Collect CollectCmd `cmd:"" help:"Run a development collector"`

	cfg *config.Config `kong:"-"`
}

// Global is shared state bound into every command.
type Global struct {
	Logger *slog.Logger
}

// AfterApply loads configuration and sets up logging once, after flag
// parsing and before any command runs.
func (c *CLI) AfterApply() error {
	if err := config.LoadDotEnv(c.EnvFile); err != nil {
		return err
	}
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Verbose {
		cfg.Log.Level = "debug"
	}
	switch c.LogFormat {
	case "":
	case "text", "json":
		cfg.Log.Format = c.LogFormat
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	c.cfg = cfg
	logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gyrocam"),
		kong.Description("Stream camera frames tagged with gyroscope readings to a WebSocket collector."),
		kong.UsageOnError(),
	)
	err := kctx.Run(&Global{Logger: slog.Default()}, &cli)
	if err != nil {
		slog.Error("Command failed", logging.Error(err))
		os.Exit(1)
	}
}
