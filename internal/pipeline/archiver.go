package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
)

const (
	// archiveLockKey guards archive runs across replicas.
	archiveLockKey = "pipeline:archive"

	// archiveLockTTL bounds how long a crashed run can block the next one.
	archiveLockTTL = 15 * time.Minute
)

// JournalPruner deletes archived journal rows from the primary store.
type JournalPruner interface {
	DeleteThrough(ctx context.Context, seq uint64) (int64, error)
}

// Archiver moves old journal records from the database to S3 cold storage
// and prunes them from the primary store.
type Archiver struct {
	blobArchiver  domain.Archiver
	journal       JournalPruner
	locks         domain.LockManager
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, journal JournalPruner, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		journal:       journal,
		locks:         locks,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive run under the distributed lock. It moves
// journal records older than the retention cutoff to cold storage one batch
// at a time, pruning each batch only after its upload succeeded. If another
// replica holds the lock the run is skipped.
func (a *Archiver) Run(ctx context.Context) error {
	unlock, err := a.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.Info("archive run skipped, another replica holds the lock")
			return nil
		}
		return fmt.Errorf("acquiring archive lock: %w", err)
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var totalArchived, totalPruned int64
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("archive run cancelled: %w", err)
		}

		count, lastSeq, err := a.blobArchiver.ArchiveEvents(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archiving events before %v: %w", cutoff, err)
		}
		if count == 0 {
			break
		}
		totalArchived += count

		pruned, err := a.journal.DeleteThrough(ctx, lastSeq)
		if err != nil {
			return fmt.Errorf("pruning journal through seq %d: %w", lastSeq, err)
		}
		totalPruned += pruned

		a.logger.Info("archived journal batch",
			slog.Int64("count", count),
			slog.Uint64("last_seq", lastSeq),
			slog.Int64("pruned", pruned),
		)
	}

	a.logger.Info("archive run complete",
		slog.Int64("events_archived", totalArchived),
		slog.Int64("events_pruned", totalPruned),
	)
	return nil
}

// RunLoop runs the archiver on a repeating interval until the context is
// cancelled. A send on trigger runs one extra cycle immediately.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration, trigger <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		case <-trigger:
			a.logger.Info("archive run triggered")
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
