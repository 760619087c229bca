package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/ctf"
	"github.com/gogratta/pm-contracts/internal/domain"
)

// TransferService moves position balances between accounts and manages
// spender allowances. Like PositionService it writes touched cells through
// to the store after the engine commits.
type TransferService struct {
	engine   *ctf.Ledger
	balances domain.BalanceStore
	cache    domain.BalanceCache
	journal  *Journal
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewTransferService creates a TransferService with all required
// dependencies. engine may be nil for read-only deployments.
func NewTransferService(
	engine *ctf.Ledger,
	balances domain.BalanceStore,
	cache domain.BalanceCache,
	journal *Journal,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TransferService {
	return &TransferService{
		engine:   engine,
		balances: balances,
		cache:    cache,
		journal:  journal,
		audit:    audit,
		logger:   logger,
	}
}

// Transfer moves value units of an asset from one account to another on the
// operator's authority. An operator other than the owner spends allowance.
func (s *TransferService) Transfer(ctx context.Context, operator, from, to common.Address, assetID common.Hash, value *uint256.Int) error {
	if s.engine == nil {
		return domain.ErrReadOnly
	}

	if err := s.engine.TransferFrom(operator, from, to, assetID, value); err != nil {
		return fmt.Errorf("transfer_service: transfer: %w", err)
	}

	s.persistTransfer(ctx, operator, from, to, assetID)
	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "transfer", map[string]any{
		"operator": operator.Hex(),
		"from":     from.Hex(),
		"to":       to.Hex(),
		"asset_id": assetID.Hex(),
		"value":    value.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "transfer_service: audit log failed",
			slog.String("asset_id", assetID.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "transfer_service: transfer",
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("asset_id", assetID.Hex()),
		slog.String("value", value.Dec()),
	)

	return nil
}

// SafeTransfer behaves like Transfer, except a recipient registered as
// contract-like must acknowledge the move through its receiver callback
// before it sticks.
func (s *TransferService) SafeTransfer(ctx context.Context, operator, from, to common.Address, assetID common.Hash, value *uint256.Int, data []byte) error {
	if s.engine == nil {
		return domain.ErrReadOnly
	}

	if err := s.engine.SafeTransferFrom(operator, from, to, assetID, value, data); err != nil {
		return fmt.Errorf("transfer_service: safe transfer: %w", err)
	}

	s.persistTransfer(ctx, operator, from, to, assetID)
	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "transfer", map[string]any{
		"operator": operator.Hex(),
		"from":     from.Hex(),
		"to":       to.Hex(),
		"asset_id": assetID.Hex(),
		"value":    value.Dec(),
		"safe":     true,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "transfer_service: audit log failed",
			slog.String("asset_id", assetID.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "transfer_service: safe transfer",
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("asset_id", assetID.Hex()),
		slog.String("value", value.Dec()),
	)

	return nil
}

// Approve sets a spender's allowance on one of the owner's assets. Unless
// the new value is zero, currentValue must match the live allowance.
func (s *TransferService) Approve(ctx context.Context, owner, spender common.Address, assetID common.Hash, currentValue, newValue *uint256.Int) error {
	if s.engine == nil {
		return domain.ErrReadOnly
	}

	if err := s.engine.Approve(owner, spender, assetID, currentValue, newValue); err != nil {
		return fmt.Errorf("transfer_service: approve: %w", err)
	}

	live := s.engine.Allowance(assetID, owner, spender)
	if err := s.balances.UpsertAllowance(ctx, assetID, owner, spender, live); err != nil {
		s.logger.WarnContext(ctx, "transfer_service: allowance upsert failed",
			slog.String("asset_id", assetID.Hex()),
			slog.String("owner", owner.Hex()),
			slog.String("error", err.Error()),
		)
	}
	s.journal.Flush(ctx)

	if auditErr := s.audit.Log(ctx, "approval", map[string]any{
		"owner":    owner.Hex(),
		"spender":  spender.Hex(),
		"asset_id": assetID.Hex(),
		"value":    newValue.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "transfer_service: audit log failed",
			slog.String("asset_id", assetID.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "transfer_service: approval set",
		slog.String("owner", owner.Hex()),
		slog.String("spender", spender.Hex()),
		slog.String("asset_id", assetID.Hex()),
		slog.String("value", newValue.Dec()),
	)

	return nil
}

// persistTransfer writes the sender and recipient balance cells through to
// the store, plus the spent allowance when an operator moved someone else's
// funds. Failures are logged, not returned.
func (s *TransferService) persistTransfer(ctx context.Context, operator, from, to common.Address, assetID common.Hash) {
	for _, account := range []common.Address{from, to} {
		balance := s.engine.BalanceOf(assetID, account)
		if err := s.balances.UpsertBalance(ctx, assetID, account, balance); err != nil {
			s.logger.WarnContext(ctx, "transfer_service: balance upsert failed",
				slog.String("asset_id", assetID.Hex()),
				slog.String("account", account.Hex()),
				slog.String("error", err.Error()),
			)
		}
		if cacheErr := s.cache.Invalidate(ctx, assetID, account); cacheErr != nil {
			s.logger.WarnContext(ctx, "transfer_service: cache invalidate failed",
				slog.String("asset_id", assetID.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	if operator != from {
		live := s.engine.Allowance(assetID, from, operator)
		if err := s.balances.UpsertAllowance(ctx, assetID, from, operator, live); err != nil {
			s.logger.WarnContext(ctx, "transfer_service: allowance upsert failed",
				slog.String("asset_id", assetID.Hex()),
				slog.String("owner", from.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Allowance returns a spender's live allowance on an owner's asset. Without
// an engine the store answers, and unknown cells read as zero.
func (s *TransferService) Allowance(ctx context.Context, assetID common.Hash, owner, spender common.Address) (*uint256.Int, error) {
	if s.engine != nil {
		return s.engine.Allowance(assetID, owner, spender), nil
	}

	value, err := s.balances.GetAllowance(ctx, assetID, owner, spender)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("transfer_service: allowance %s for %s/%s: %w", assetID.Hex(), owner.Hex(), spender.Hex(), err)
	}
	return value, nil
}

// RegisterReceiver wires a transfer acknowledgment callback for a
// contract-like recipient address.
func (s *TransferService) RegisterReceiver(addr common.Address, r domain.TransferReceiver) error {
	if s.engine == nil {
		return domain.ErrReadOnly
	}
	s.engine.RegisterReceiver(addr, r)
	return nil
}
