// Package app owns the daemon lifecycle: it wires stores, caches, blob
// storage, services, pipelines, and notifications, then hands control to
// whichever operating mode the configuration names.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gogratta/pm-contracts/internal/config"
)

// App carries the configuration and logger through startup and keeps the
// teardown hooks accumulated along the way.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependency graph and blocks inside the configured mode
// until ctx is cancelled. Teardown happens in Close, not here.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	modes := map[string]func(context.Context, *Dependencies) error{
		"serve":   a.ServeMode,
		"archive": a.ArchiveMode,
		"monitor": a.MonitorMode,
		"full":    a.FullMode,
	}
	run, ok := modes[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	return run(ctx, deps)
}

// Close runs the teardown hooks in reverse registration order. Calling it
// again is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
