package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// HoldingSnapshotter persists the registry's current collateral holdings to
// the store.
type HoldingSnapshotter interface {
	SnapshotHoldings(ctx context.Context) (int, error)
}

// Snapshotter periodically writes the full balance set to cold storage and
// refreshes the persisted collateral holdings.
type Snapshotter struct {
	archiver domain.Archiver
	holdings HoldingSnapshotter
	logger   *slog.Logger
}

// NewSnapshotter creates a new Snapshotter. holdings may be nil when no
// collateral registry is running.
func NewSnapshotter(archiver domain.Archiver, holdings HoldingSnapshotter, logger *slog.Logger) *Snapshotter {
	return &Snapshotter{
		archiver: archiver,
		holdings: holdings,
		logger:   logger,
	}
}

// Run executes a single snapshot run: one balance snapshot upload and one
// holdings refresh.
func (s *Snapshotter) Run(ctx context.Context) error {
	path, err := s.archiver.SnapshotBalances(ctx)
	if err != nil {
		return fmt.Errorf("snapshotting balances: %w", err)
	}
	s.logger.Info("balance snapshot uploaded", slog.String("path", path))

	if s.holdings != nil {
		count, err := s.holdings.SnapshotHoldings(ctx)
		if err != nil {
			return fmt.Errorf("snapshotting holdings: %w", err)
		}
		s.logger.Info("collateral holdings snapshotted", slog.Int("count", count))
	}

	return nil
}

// RunLoop runs the snapshotter on a repeating interval until the context is
// cancelled. A send on trigger runs one extra cycle immediately.
func (s *Snapshotter) RunLoop(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshotter loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("snapshot run failed", slog.String("error", err.Error()))
			}
		case <-trigger:
			s.logger.Info("snapshot run triggered")
			if err := s.Run(ctx); err != nil {
				s.logger.Error("snapshot run failed", slog.String("error", err.Error()))
			}
		}
	}
}
