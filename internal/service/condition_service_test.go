package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/service"
)

func TestConditionServicePrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("persists, caches, journals, and audits", func(t *testing.T) {
		f := newFixture(t)

		cond, err := f.condSvc.Prepare(ctx, oracle, question("title-2026"), 3)
		require.NoError(t, err)
		assert.Equal(t, f.condSvc.ComputeID(oracle, question("title-2026"), 3), cond.ID)
		assert.Equal(t, uint(3), cond.OutcomeSlotCount)
		assert.False(t, cond.Resolved())

		stored, err := f.conditions.GetByID(ctx, cond.ID)
		require.NoError(t, err)
		assert.Equal(t, oracle, stored.Oracle)

		cached, err := f.condCache.Get(ctx, cond.ID)
		require.NoError(t, err)
		assert.Equal(t, cond.ID, cached.ID)

		require.Len(t, f.events.recs, 1)
		assert.Equal(t, domain.EventConditionPreparation, f.events.recs[0].Type)
		assert.Len(t, f.bus.published[service.ChannelConditions], 1)

		require.Len(t, f.audit.events, 1)
		assert.Equal(t, "condition_prepared", f.audit.events[0])
	})

	t.Run("engine rejection reaches the caller", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.condSvc.Prepare(ctx, oracle, question("q"), 2)
		require.NoError(t, err)

		_, err = f.condSvc.Prepare(ctx, oracle, question("q"), 2)
		assert.ErrorIs(t, err, domain.ErrAlreadyPrepared)
		assert.Len(t, f.events.recs, 1)
	})

	t.Run("store failure does not fail the operation", func(t *testing.T) {
		f := newFixture(t)
		f.conditions.upsertErr = assert.AnError

		cond, err := f.condSvc.Prepare(ctx, oracle, question("q"), 2)
		require.NoError(t, err)
		assert.Equal(t, uint(2), cond.OutcomeSlotCount)
	})

	t.Run("read-only deployment rejects writes", func(t *testing.T) {
		f := newReadOnlyFixture(newFixture(t))
		_, err := f.condSvc.Prepare(ctx, oracle, question("q"), 2)
		assert.ErrorIs(t, err, domain.ErrReadOnly)
	})
}

func TestConditionServiceReport(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves the stored row", func(t *testing.T) {
		f := newFixture(t)
		prepared, err := f.condSvc.Prepare(ctx, oracle, question("q1"), 2)
		require.NoError(t, err)

		cond, err := f.condSvc.Report(ctx, oracle, question("q1"), payoutResult(1, 3))
		require.NoError(t, err)
		assert.Equal(t, prepared.ID, cond.ID)
		require.True(t, cond.Resolved())
		assert.Equal(t, u(4), cond.PayoutDenominator)

		stored, err := f.conditions.GetByID(ctx, cond.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ResolvedAt)
		assert.Equal(t, u(1), stored.PayoutNumerators[0])
		assert.Equal(t, u(3), stored.PayoutNumerators[1])

		// The resolution displaces the stale cached row.
		_, err = f.condCache.Get(ctx, cond.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.Len(t, f.events.recs, 2)
		assert.Equal(t, domain.EventConditionResolution, f.events.recs[1].Type)
		assert.Equal(t, "condition_resolved", f.audit.events[len(f.audit.events)-1])
	})

	t.Run("rebuilds a lost row before resolving", func(t *testing.T) {
		f := newFixture(t)
		cond, err := f.condSvc.Prepare(ctx, oracle, question("q1"), 2)
		require.NoError(t, err)

		// Simulate a lost prepare-time write.
		delete(f.conditions.rows, cond.ID)

		_, err = f.condSvc.Report(ctx, oracle, question("q1"), payoutResult(1, 0))
		require.NoError(t, err)

		stored, err := f.conditions.GetByID(ctx, cond.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.ResolvedAt)
	})

	t.Run("impostor reporter cannot resolve", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.condSvc.Prepare(ctx, oracle, question("q1"), 2)
		require.NoError(t, err)

		_, err = f.condSvc.Report(ctx, bob, question("q1"), payoutResult(1, 0))
		assert.ErrorIs(t, err, domain.ErrOutcomeCountMismatch)
	})
}

func TestConditionServiceGet(t *testing.T) {
	ctx := context.Background()

	t.Run("live engine answers directly", func(t *testing.T) {
		f := newFixture(t)
		cond, err := f.condSvc.Prepare(ctx, oracle, question("q1"), 2)
		require.NoError(t, err)

		got, err := f.condSvc.Get(ctx, cond.ID)
		require.NoError(t, err)
		assert.Equal(t, cond.ID, got.ID)

		_, err = f.condSvc.Get(ctx, question("missing"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("read-only replica falls back to store and backfills cache", func(t *testing.T) {
		primary := newFixture(t)
		cond, err := primary.condSvc.Prepare(ctx, oracle, question("q1"), 2)
		require.NoError(t, err)

		replica := newReadOnlyFixture(primary)
		got, err := replica.condSvc.Get(ctx, cond.ID)
		require.NoError(t, err)
		assert.Equal(t, cond.ID, got.ID)
		assert.Equal(t, 1, replica.condCache.sets)

		// Second read is served from the replica's cache.
		_, err = replica.condSvc.Get(ctx, cond.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, replica.condCache.sets)
	})

	t.Run("list and count reflect stored rows", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.condSvc.Prepare(ctx, oracle, question("q1"), 2)
		require.NoError(t, err)
		_, err = f.condSvc.Prepare(ctx, oracle, question("q2"), 3)
		require.NoError(t, err)

		listed, err := f.condSvc.List(ctx, domain.ListOpts{})
		require.NoError(t, err)
		assert.Len(t, listed, 2)

		count, err := f.condSvc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		byQ, err := f.condSvc.GetByQuestion(ctx, question("q1"))
		require.NoError(t, err)
		require.Len(t, byQ, 1)
		assert.Equal(t, uint(2), byQ[0].OutcomeSlotCount)
	})
}
