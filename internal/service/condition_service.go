package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
)

// ConditionService handles condition preparation, oracle reports, and
// condition reads. When no live engine is attached (monitor mode) it serves
// reads from cache and store and rejects writes.
type ConditionService struct {
	engine     *ctf.Ledger
	conditions domain.ConditionStore
	cache      domain.ConditionCache
	journal    *Journal
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewConditionService creates a ConditionService with all required
// dependencies. engine may be nil for read-only deployments.
func NewConditionService(
	engine *ctf.Ledger,
	conditions domain.ConditionStore,
	cache domain.ConditionCache,
	journal *Journal,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ConditionService {
	return &ConditionService{
		engine:     engine,
		conditions: conditions,
		cache:      cache,
		journal:    journal,
		audit:      audit,
		logger:     logger,
	}
}

// Prepare registers a condition for the (oracle, question, outcome count)
// triple, persists it, and returns the stored snapshot.
func (s *ConditionService) Prepare(ctx context.Context, oracle common.Address, questionID common.Hash, outcomeSlotCount uint) (domain.Condition, error) {
	if s.engine == nil {
		return domain.Condition{}, domain.ErrReadOnly
	}

	id, err := s.engine.PrepareCondition(oracle, questionID, outcomeSlotCount)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: prepare: %w", err)
	}

	cond, err := s.engine.Condition(id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: read back %s: %w", id, err)
	}

	if err := s.conditions.Upsert(ctx, cond); err != nil {
		s.logger.WarnContext(ctx, "condition_service: store upsert failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", err.Error()),
		)
		// Non-fatal: the engine holds the state; the row is rewritten on the
		// next touch of this condition.
	}
	if cacheErr := s.cache.Set(ctx, cond); cacheErr != nil {
		s.logger.WarnContext(ctx, "condition_service: cache set failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "condition_prepared", map[string]any{
		"condition_id":       id.Hex(),
		"oracle":             oracle.Hex(),
		"question_id":        questionID.Hex(),
		"outcome_slot_count": outcomeSlotCount,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "condition_service: audit log failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "condition_service: condition prepared",
		slog.String("condition_id", id.Hex()),
		slog.String("oracle", oracle.Hex()),
		slog.String("question_id", questionID.Hex()),
		slog.Uint64("outcome_slot_count", uint64(outcomeSlotCount)),
	)

	return cond, nil
}

// Report records an oracle's payout vector for the condition it prepared over
// the question. The reporter's identity selects the condition: only the
// preparing oracle hits a prepared id.
func (s *ConditionService) Report(ctx context.Context, reporter common.Address, questionID common.Hash, result []byte) (domain.Condition, error) {
	if s.engine == nil {
		return domain.Condition{}, domain.ErrReadOnly
	}

	id, err := s.engine.ReportPayouts(reporter, questionID, result)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: report: %w", err)
	}

	cond, err := s.engine.Condition(id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: read back %s: %w", id, err)
	}

	resolvedAt := time.Now().UTC()
	if cond.ResolvedAt != nil {
		resolvedAt = *cond.ResolvedAt
	}

	storeErr := s.conditions.Resolve(ctx, id, cond.PayoutNumerators, cond.PayoutDenominator, result, resolvedAt)
	if errors.Is(storeErr, domain.ErrNotFound) {
		// The prepare-time upsert was lost; rebuild the row and retry.
		if upErr := s.conditions.Upsert(ctx, cond); upErr == nil {
			storeErr = s.conditions.Resolve(ctx, id, cond.PayoutNumerators, cond.PayoutDenominator, result, resolvedAt)
		}
	}
	if storeErr != nil {
		s.logger.WarnContext(ctx, "condition_service: store resolve failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", storeErr.Error()),
		)
	}

	if cacheErr := s.cache.Invalidate(ctx, id); cacheErr != nil {
		s.logger.WarnContext(ctx, "condition_service: cache invalidate failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "condition_resolved", map[string]any{
		"condition_id": id.Hex(),
		"oracle":       reporter.Hex(),
		"question_id":  questionID.Hex(),
		"denominator":  cond.PayoutDenominator.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "condition_service: audit log failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "condition_service: condition resolved",
		slog.String("condition_id", id.Hex()),
		slog.String("oracle", reporter.Hex()),
		slog.String("question_id", questionID.Hex()),
	)

	return cond, nil
}

// Get retrieves a condition by id. With a live engine the engine answers
// directly; otherwise the cache is tried first with a store fallback.
func (s *ConditionService) Get(ctx context.Context, id common.Hash) (domain.Condition, error) {
	if s.engine != nil {
		c, err := s.engine.Condition(id)
		if err != nil {
			return domain.Condition{}, fmt.Errorf("condition_service: get %s: %w", id, err)
		}
		return c, nil
	}

	if c, err := s.cache.Get(ctx, id); err == nil {
		return c, nil
	}

	c, err := s.conditions.GetByID(ctx, id)
	if err != nil {
		return domain.Condition{}, fmt.Errorf("condition_service: get %s: %w", id, err)
	}

	if cacheErr := s.cache.Set(ctx, c); cacheErr != nil {
		s.logger.WarnContext(ctx, "condition_service: cache set failed",
			slog.String("condition_id", id.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	return c, nil
}

// ComputeID returns the condition id for a triple without touching state.
func (s *ConditionService) ComputeID(oracle common.Address, questionID common.Hash, outcomeSlotCount uint) common.Hash {
	return ctf.ConditionID(oracle, questionID, outcomeSlotCount)
}

// GetByQuestion returns every condition prepared over a question.
func (s *ConditionService) GetByQuestion(ctx context.Context, questionID common.Hash) ([]domain.Condition, error) {
	conditions, err := s.conditions.GetByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("condition_service: get by question %s: %w", questionID, err)
	}
	return conditions, nil
}

// List returns stored conditions with pagination.
func (s *ConditionService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Condition, error) {
	conditions, err := s.conditions.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("condition_service: list: %w", err)
	}
	return conditions, nil
}

// Count returns the total number of stored conditions.
func (s *ConditionService) Count(ctx context.Context) (int64, error) {
	count, err := s.conditions.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("condition_service: count: %w", err)
	}
	return count, nil
}
