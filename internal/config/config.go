// Package config loads gyrocam settings from YAML, a .env file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Camera and sensor source names.
const (
	CameraSynthetic = "synthetic"
	CameraDirectory = "directory"
	SensorSimulated = "simulated"
)

type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Cadence   CadenceConfig   `yaml:"cadence"`
	Camera    CameraConfig    `yaml:"camera"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Collector CollectorConfig `yaml:"collector"`
}

type SessionConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

type CadenceConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type CameraConfig struct {
	Source    string `yaml:"source"`
	Directory string `yaml:"directory"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Quality   int    `yaml:"quality"`
}

type SensorConfig struct {
	Source         string        `yaml:"source"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

type MetricsConfig struct {
	// Listen is the /metrics address; empty disables the endpoint.
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File receives logs while the terminal UI owns the screen.
	File string `yaml:"file"`
}

type CollectorConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxClients     int           `yaml:"max_clients"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			Port:             8765,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
			PingInterval:     30 * time.Second,
		},
		Cadence: CadenceConfig{
			Interval: 66 * time.Millisecond,
		},
		Camera: CameraConfig{
			Source:  CameraSynthetic,
			Width:   320,
			Height:  240,
			Quality: 70,
		},
		Sensor: SensorConfig{
			Source:         SensorSimulated,
			SampleInterval: 10 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "gyrocam.log",
		},
		Collector: CollectorConfig{
			Host:           "0.0.0.0",
			Port:           8765,
			MaxClients:     8,
			ReportInterval: 10 * time.Second,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables already set. Missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from GYROCAM_* variables looked up via getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("GYROCAM_HOST"); v != "" {
		c.Session.Host = v
	}
	if v := getenv("GYROCAM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GYROCAM_PORT: %w", err)
		}
		c.Session.Port = port
	}
	if v := getenv("GYROCAM_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GYROCAM_INTERVAL: %w", err)
		}
		c.Cadence.Interval = d
	}
	if v := getenv("GYROCAM_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	if v := getenv("GYROCAM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Cadence.Interval <= 0 {
		errs = append(errs, fmt.Errorf("cadence.interval must be positive, got %v", c.Cadence.Interval))
	}
	if !validPort(c.Session.Port) {
		errs = append(errs, fmt.Errorf("session.port %d out of range", c.Session.Port))
	}
	if !validPort(c.Collector.Port) {
		errs = append(errs, fmt.Errorf("collector.port %d out of range", c.Collector.Port))
	}
	switch c.Camera.Source {
	case CameraSynthetic:
		if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
			errs = append(errs, fmt.Errorf("camera size %dx%d invalid", c.Camera.Width, c.Camera.Height))
		}
	case CameraDirectory:
		if c.Camera.Directory == "" {
			errs = append(errs, errors.New("camera.directory required for directory source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown camera.source %q", c.Camera.Source))
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		errs = append(errs, fmt.Errorf("camera.quality %d out of range 1..100", c.Camera.Quality))
	}
	if c.Sensor.Source != SensorSimulated {
		errs = append(errs, fmt.Errorf("unknown sensor.source %q", c.Sensor.Source))
	}
	if c.Sensor.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("sensor.sample_interval must be positive, got %v", c.Sensor.SampleInterval))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
