package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
)

// PositionService handles splitting collateral into outcome positions,
// merging them back, and redeeming resolved positions. After every engine
// operation it writes the touched balance cells through to the store so a
// restart (or a read-only replica) sees current state.
type PositionService struct {
	engine     *ctf.Ledger
	custody    common.Address
	resolver   domain.CollateralResolver
	balances   domain.BalanceStore
	collateral domain.CollateralStore
	cache      domain.BalanceCache
	journal    *Journal
	audit      domain.AuditStore
	logger     *slog.Logger
}

// NewPositionService creates a PositionService with all required
// dependencies. engine may be nil for read-only deployments.
func NewPositionService(
	engine *ctf.Ledger,
	custody common.Address,
	resolver domain.CollateralResolver,
	balances domain.BalanceStore,
	collateral domain.CollateralStore,
	cache domain.BalanceCache,
	journal *Journal,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		engine:     engine,
		custody:    custody,
		resolver:   resolver,
		balances:   balances,
		collateral: collateral,
		cache:      cache,
		journal:    journal,
		audit:      audit,
		logger:     logger,
	}
}

// Split moves amount units of the parent position (or pulled collateral, for
// a root split) into the full set of outcome branch positions. It returns the
// caller's refreshed balances on every touched position.
func (s *PositionService) Split(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash, amount *uint256.Int) ([]domain.PositionBalance, error) {
	if s.engine == nil {
		return nil, domain.ErrReadOnly
	}

	if err := s.engine.SplitPosition(ctx, caller, collateralAddr, parentSlotID, conditionID, amount); err != nil {
		return nil, fmt.Errorf("position_service: split: %w", err)
	}

	touched := s.persistTouched(ctx, caller, collateralAddr, parentSlotID, conditionID)
	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "position_split", map[string]any{
		"account":      caller.Hex(),
		"collateral":   collateralAddr.Hex(),
		"parent_slot":  parentSlotID.Hex(),
		"condition_id": conditionID.Hex(),
		"amount":       amount.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("account", caller.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "position_service: position split",
		slog.String("account", caller.Hex()),
		slog.String("condition_id", conditionID.Hex()),
		slog.String("amount", amount.Dec()),
	)

	return touched, nil
}

// Merge recombines amount units of every outcome branch back into the parent
// position (or released collateral, for a root merge). It returns the
// caller's refreshed balances on every touched position.
func (s *PositionService) Merge(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash, amount *uint256.Int) ([]domain.PositionBalance, error) {
	if s.engine == nil {
		return nil, domain.ErrReadOnly
	}

	if err := s.engine.MergePosition(ctx, caller, collateralAddr, parentSlotID, conditionID, amount); err != nil {
		return nil, fmt.Errorf("position_service: merge: %w", err)
	}

	touched := s.persistTouched(ctx, caller, collateralAddr, parentSlotID, conditionID)
	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "position_merge", map[string]any{
		"account":      caller.Hex(),
		"collateral":   collateralAddr.Hex(),
		"parent_slot":  parentSlotID.Hex(),
		"condition_id": conditionID.Hex(),
		"amount":       amount.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("account", caller.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "position_service: position merge",
		slog.String("account", caller.Hex()),
		slog.String("condition_id", conditionID.Hex()),
		slog.String("amount", amount.Dec()),
	)

	return touched, nil
}

// Redeem converts the caller's branch positions under a resolved condition
// into their payout share. It returns the total paid out alongside the
// caller's refreshed balances.
func (s *PositionService) Redeem(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash) (*uint256.Int, []domain.PositionBalance, error) {
	if s.engine == nil {
		return nil, nil, domain.ErrReadOnly
	}

	payout, err := s.engine.RedeemPayout(ctx, caller, collateralAddr, parentSlotID, conditionID)
	if err != nil {
		return nil, nil, fmt.Errorf("position_service: redeem: %w", err)
	}

	touched := s.persistTouched(ctx, caller, collateralAddr, parentSlotID, conditionID)
	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "payout_redemption", map[string]any{
		"account":      caller.Hex(),
		"collateral":   collateralAddr.Hex(),
		"parent_slot":  parentSlotID.Hex(),
		"condition_id": conditionID.Hex(),
		"payout":       payout.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("account", caller.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "position_service: payout redeemed",
		slog.String("account", caller.Hex()),
		slog.String("condition_id", conditionID.Hex()),
		slog.String("payout", payout.Dec()),
	)

	return payout, touched, nil
}

// persistTouched reads back every balance cell a split, merge, or redeem can
// have changed and writes it through to the store. Failures are logged, not
// returned: the engine has already committed and the store can be rebuilt
// from the event journal.
func (s *PositionService) persistTouched(ctx context.Context, caller, collateralAddr common.Address, parentSlotID, conditionID common.Hash) []domain.PositionBalance {
	count := s.engine.OutcomeSlotCount(conditionID)

	keys := make([]common.Hash, 0, count+1)
	for i := uint(0); i < count; i++ {
		slotID := ctf.PayoutSlotID(parentSlotID, conditionID, i)
		keys = append(keys, ctf.PositionID(collateralAddr, slotID))
	}
	if parentSlotID != ctf.RootSlot {
		keys = append(keys, ctf.PositionID(collateralAddr, parentSlotID))
	}

	now := time.Now().UTC()
	touched := make([]domain.PositionBalance, 0, len(keys))
	for _, key := range keys {
		balance := s.engine.BalanceOf(key, caller)
		touched = append(touched, domain.PositionBalance{
			PositionID: key,
			Account:    caller,
			Balance:    balance,
			UpdatedAt:  now,
		})

		if err := s.balances.UpsertBalance(ctx, key, caller, balance); err != nil {
			s.logger.WarnContext(ctx, "position_service: balance upsert failed",
				slog.String("position_id", key.Hex()),
				slog.String("account", caller.Hex()),
				slog.String("error", err.Error()),
			)
		}
		if cacheErr := s.cache.Invalidate(ctx, key, caller); cacheErr != nil {
			s.logger.WarnContext(ctx, "position_service: cache invalidate failed",
				slog.String("position_id", key.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	// Operations on the root slot also move collateral between the caller
	// and the custody account.
	if parentSlotID == ctf.RootSlot {
		s.persistHoldings(ctx, collateralAddr, caller, s.custody)
	}

	return touched
}

// persistHoldings writes current collateral token balances through to the
// store for the given accounts.
func (s *PositionService) persistHoldings(ctx context.Context, collateralAddr common.Address, accounts ...common.Address) {
	token, err := s.resolver.Resolve(collateralAddr)
	if err != nil {
		s.logger.WarnContext(ctx, "position_service: resolve collateral failed",
			slog.String("collateral", collateralAddr.Hex()),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, account := range accounts {
		balance, err := token.BalanceOf(ctx, account)
		if err != nil {
			s.logger.WarnContext(ctx, "position_service: collateral balance read failed",
				slog.String("collateral", collateralAddr.Hex()),
				slog.String("account", account.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if upsertErr := s.collateral.UpsertHolding(ctx, collateralAddr, account, balance); upsertErr != nil {
			s.logger.WarnContext(ctx, "position_service: holding upsert failed",
				slog.String("collateral", collateralAddr.Hex()),
				slog.String("account", account.Hex()),
				slog.String("error", upsertErr.Error()),
			)
		}
	}
}

// BalanceOf returns an account's balance at a position key. With a live
// engine the engine answers directly; otherwise the cache is tried first with
// a store fallback, and unknown keys read as zero.
func (s *PositionService) BalanceOf(ctx context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error) {
	if s.engine != nil {
		return s.engine.BalanceOf(positionID, account), nil
	}

	if balance, err := s.cache.Get(ctx, positionID, account); err == nil {
		return balance, nil
	}

	balance, err := s.balances.GetBalance(ctx, positionID, account)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("position_service: balance of %s for %s: %w", positionID.Hex(), account.Hex(), err)
	}

	if cacheErr := s.cache.Set(ctx, positionID, account, balance); cacheErr != nil {
		s.logger.WarnContext(ctx, "position_service: cache set failed",
			slog.String("position_id", positionID.Hex()),
			slog.String("error", cacheErr.Error()),
		)
	}

	return balance, nil
}

// ListByAccount returns an account's non-zero position balances.
func (s *PositionService) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.PositionBalance, error) {
	balances, err := s.balances.ListByAccount(ctx, account, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list by account %s: %w", account.Hex(), err)
	}
	return balances, nil
}

// ComputeIDs derives the payout slot and position key for one outcome index
// of a condition under the given parent slot.
func (s *PositionService) ComputeIDs(collateralAddr common.Address, parentSlotID, conditionID common.Hash, index uint) (common.Hash, common.Hash) {
	slotID := ctf.PayoutSlotID(parentSlotID, conditionID, index)
	return slotID, ctf.PositionID(collateralAddr, slotID)
}
