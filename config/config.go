// Package config loads canteen's server configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/searchktools/canteen/core"
	"github.com/searchktools/canteen/core/socket"
	"github.com/searchktools/canteen/logging"
)

// Config holds all application configuration.
type Config struct {
	Addr           string        `yaml:"addr"`
	Capacity       int           `yaml:"capacity"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
	MaxEvents      int           `yaml:"max_events"`
	Backlog        int           `yaml:"backlog"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Env            string        `yaml:"env"`

	Log   LogConfig   `yaml:"log"`
	Stats StatsConfig `yaml:"stats"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StatsConfig controls the built-in statistics route.
type StatsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		Capacity:       core.DefaultCapacity,
		ReadBufferSize: core.DefaultReadBufferSize,
		MaxEvents:      core.DefaultMaxEvents,
		Backlog:        socket.DefaultBacklog,
		PollInterval:   core.DefaultPollInterval,
		Env:            "development",
		Log:            LogConfig{Level: "info", Format: "text"},
		Stats:          StatsConfig{Path: "/_canteen/stats"},
	}
}

// Load reads the YAML file at path over the defaults, expanding ${VAR} and
// ${VAR:-default} references first, then applies the PORT and CANTEEN_ADDR
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides the listen address from the environment. PORT keeps
// the configured host; CANTEEN_ADDR replaces the address outright and wins
// over PORT.
func (c *Config) ApplyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("invalid PORT %q", port)
		}
		host, _, err := net.SplitHostPort(c.Addr)
		if err != nil {
			host = ""
		}
		c.Addr = net.JoinHostPort(host, port)
	}
	if addr := os.Getenv("CANTEEN_ADDR"); addr != "" {
		c.Addr = addr
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		errs = append(errs, fmt.Errorf("addr: %w", err))
	}
	if c.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %d", c.Capacity))
	}
	if c.ReadBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("read_buffer_size must be positive, got %d", c.ReadBufferSize))
	}
	if c.MaxEvents <= 0 {
		errs = append(errs, fmt.Errorf("max_events must be positive, got %d", c.MaxEvents))
	}
	if c.Backlog <= 0 {
		errs = append(errs, fmt.Errorf("backlog must be positive, got %d", c.Backlog))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle_timeout must not be negative, got %s", c.IdleTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	if c.Stats.Enabled && !strings.HasPrefix(c.Stats.Path, "/") {
		errs = append(errs, fmt.Errorf("stats.path must begin with '/', got %q", c.Stats.Path))
	}
	return errors.Join(errs...)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} with the value of VAR and ${VAR:-default} with
// default when VAR is unset or empty.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
