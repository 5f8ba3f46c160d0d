// Package app wires configuration, logging and the engine into a runnable
// server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/canteen/config"
	"github.com/searchktools/canteen/core"
	"github.com/searchktools/canteen/core/http"
	"github.com/searchktools/canteen/core/observability"
	"github.com/searchktools/canteen/logging"
)

// App is one configured server.
type App struct {
	cfg    *config.Config
	engine *core.Engine
	logger *slog.Logger
}

// New creates an application instance with a logger and engine built from
// cfg.
func New(cfg *config.Config) (*App, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithEngine(cfg, core.NewEngine(EngineOptions(cfg, logger)...), logger)
}

// NewWithEngine creates an application instance around a pre-configured
// engine.
func NewWithEngine(cfg *config.Config, engine *core.Engine, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &App{cfg: cfg, engine: engine, logger: logger}

	if cfg.Stats.Enabled {
		if err := engine.GET(cfg.Stats.Path, StatsHandler(engine)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// NewLogger builds the logger described by cfg.Log.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: level, Format: format}), nil
}

// EngineOptions translates cfg into engine options. Enabling stats also
// turns on per-route monitoring.
func EngineOptions(cfg *config.Config, logger *slog.Logger) []core.Option {
	opts := []core.Option{
		core.WithCapacity(cfg.Capacity),
		core.WithReadBufferSize(cfg.ReadBufferSize),
		core.WithMaxEvents(cfg.MaxEvents),
		core.WithBacklog(cfg.Backlog),
		core.WithIdleTimeout(cfg.IdleTimeout),
		core.WithPollInterval(cfg.PollInterval),
		core.WithLogger(logger),
	}
	if cfg.Stats.Enabled {
		opts = append(opts, core.WithMonitor(observability.NewMonitor()))
	}
	return opts
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Run binds the configured address and serves until ctx is cancelled or
// the process receives SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.engine.Listen(a.cfg.Addr); err != nil {
		return err
	}
	a.logger.Info("starting server",
		"addr", a.engine.Addr().String(),
		"env", a.cfg.Env,
		"routes", a.engine.Routes().Len())

	if err := a.engine.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	a.logger.Info("server stopped", "stats", a.engine.Stats().String())
	return nil
}

// StatsHandler serves the engine counters as JSON, or as a protobuf
// google.protobuf.Struct when the client accepts application/x-protobuf.
// Per-route metrics are included when the engine has a monitor.
func StatsHandler(e *core.Engine) http.HandlerFunc {
	return func(req *http.Request) *http.Response {
		stats := e.Stats().Map()
		if m := e.Monitor(); m != nil {
			stats["routes"] = m.Map()
			var slow []any
			for _, b := range m.Bottlenecks() {
				slow = append(slow, map[string]any{"kind": b.Kind, "route": b.Route, "details": b.Details})
			}
			stats["bottlenecks"] = slow
		}

		st, err := structpb.NewStruct(stats)
		if err != nil {
			return http.Error(http.StatusInternalServerError)
		}
		return http.Encode(req, http.StatusOK, st)
	}
}
