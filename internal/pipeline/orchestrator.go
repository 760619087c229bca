package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// worker is one maintenance loop: it ticks on its interval, runs early on a
// trigger send, and stops when ctx is cancelled.
type worker struct {
	name     string
	interval time.Duration
	trigger  chan struct{}
	run      func(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error
}

// Orchestrator runs the background maintenance workers: balance
// snapshotting and journal archival.
type Orchestrator struct {
	workers []worker
	logger  *slog.Logger
}

// NewOrchestrator wires the two maintenance workers with their intervals.
func NewOrchestrator(
	snapshotter *Snapshotter,
	archiver *Archiver,
	snapshotInterval time.Duration,
	archiveInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		workers: []worker{
			{
				name:     "snapshotter",
				interval: snapshotInterval,
				trigger:  make(chan struct{}, 1),
				run:      snapshotter.RunLoop,
			},
			{
				name:     "archiver",
				interval: archiveInterval,
				trigger:  make(chan struct{}, 1),
				run:      archiver.RunLoop,
			},
		},
		logger: logger,
	}
}

// SnapshotTrigger returns the channel a non-blocking send on which runs one
// snapshot cycle.
func (o *Orchestrator) SnapshotTrigger() chan<- struct{} { return o.workers[0].trigger }

// ArchiveTrigger returns the channel a non-blocking send on which runs one
// archive cycle.
func (o *Orchestrator) ArchiveTrigger() chan<- struct{} { return o.workers[1].trigger }

// Run starts every worker in an errgroup and blocks until all of them stop.
// A worker error cancels the rest; cancellation itself is a clean stop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("snapshot_interval", o.workers[0].interval),
		slog.Duration("archive_interval", o.workers[1].interval),
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range o.workers {
		g.Go(func() error {
			o.logger.Info("starting worker loop", slog.String("worker", w.name))
			err := w.run(ctx, w.interval, w.trigger)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("%s: %w", w.name, err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
