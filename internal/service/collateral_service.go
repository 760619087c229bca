package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/collateral"
	"github.com/gogratta/pm-contracts/internal/domain"
)

// CollateralService manages the registered collateral assets: registration
// at boot, holdings restore, faucet minting, and balance reads. registry is
// nil on read-only deployments, which then answer from the store.
type CollateralService struct {
	registry  *collateral.Registry
	custody   common.Address
	store     domain.CollateralStore
	allowMint bool
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewCollateralService creates a CollateralService with all required
// dependencies.
func NewCollateralService(
	registry *collateral.Registry,
	custody common.Address,
	store domain.CollateralStore,
	allowMint bool,
	audit domain.AuditStore,
	logger *slog.Logger,
) *CollateralService {
	return &CollateralService{
		registry:  registry,
		custody:   custody,
		store:     store,
		allowMint: allowMint,
		audit:     audit,
		logger:    logger,
	}
}

// Register creates the asset's in-process token, registers it for
// resolution, and persists its metadata. Called at boot for every configured
// asset.
func (s *CollateralService) Register(ctx context.Context, asset domain.CollateralAsset) error {
	if s.registry == nil {
		return domain.ErrReadOnly
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	s.registry.Register(collateral.NewToken(asset, s.custody))

	if err := s.store.UpsertAsset(ctx, asset); err != nil {
		return fmt.Errorf("collateral_service: register %s: %w", asset.Symbol, err)
	}

	s.logger.InfoContext(ctx, "collateral_service: asset registered",
		slog.String("address", asset.Address.Hex()),
		slog.String("symbol", asset.Symbol),
		slog.Int("decimals", int(asset.Decimals)),
	)
	return nil
}

// RestoreHoldings loads persisted collateral balances into the registered
// tokens. Rows for unregistered assets are skipped with a warning so a
// config that drops an asset does not block startup.
func (s *CollateralService) RestoreHoldings(ctx context.Context) (int, error) {
	if s.registry == nil {
		return 0, domain.ErrReadOnly
	}

	holdings, err := s.store.LoadHoldings(ctx)
	if err != nil {
		return 0, fmt.Errorf("collateral_service: restore holdings: %w", err)
	}

	restored := 0
	for _, h := range holdings {
		token, ok := s.registry.Get(h.Asset)
		if !ok {
			s.logger.WarnContext(ctx, "collateral_service: holding for unregistered asset skipped",
				slog.String("asset", h.Asset.Hex()),
				slog.String("account", h.Account.Hex()),
			)
			continue
		}
		token.Restore(h.Account, h.Balance)
		restored++
	}

	s.logger.InfoContext(ctx, "collateral_service: holdings restored",
		slog.Int("count", restored),
	)
	return restored, nil
}

// Mint credits freshly issued units of an asset to an account. Only enabled
// on deployments configured as a faucet.
func (s *CollateralService) Mint(ctx context.Context, asset, account common.Address, amount *uint256.Int) error {
	if s.registry == nil {
		return domain.ErrReadOnly
	}
	if !s.allowMint {
		return fmt.Errorf("collateral_service: mint: %w", domain.ErrUnauthorized)
	}

	token, ok := s.registry.Get(asset)
	if !ok {
		return fmt.Errorf("collateral_service: mint: %w", domain.ErrUnknownCollateral)
	}

	token.Mint(account, amount)

	balance, err := token.BalanceOf(ctx, account)
	if err == nil {
		if upsertErr := s.store.UpsertHolding(ctx, asset, account, balance); upsertErr != nil {
			s.logger.WarnContext(ctx, "collateral_service: holding upsert failed",
				slog.String("asset", asset.Hex()),
				slog.String("account", account.Hex()),
				slog.String("error", upsertErr.Error()),
			)
		}
	}

	if auditErr := s.audit.Log(ctx, "collateral_mint", map[string]any{
		"asset":   asset.Hex(),
		"account": account.Hex(),
		"amount":  amount.Dec(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "collateral_service: audit log failed",
			slog.String("asset", asset.Hex()),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "collateral_service: minted",
		slog.String("asset", asset.Hex()),
		slog.String("account", account.Hex()),
		slog.String("amount", amount.Dec()),
	)
	return nil
}

// Assets returns the metadata of every registered collateral asset.
func (s *CollateralService) Assets(ctx context.Context) ([]domain.CollateralAsset, error) {
	if s.registry != nil {
		return s.registry.List(), nil
	}
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("collateral_service: list assets: %w", err)
	}
	return assets, nil
}

// Asset returns one asset's metadata by address.
func (s *CollateralService) Asset(ctx context.Context, addr common.Address) (domain.CollateralAsset, error) {
	if s.registry != nil {
		token, ok := s.registry.Get(addr)
		if !ok {
			return domain.CollateralAsset{}, domain.ErrNotFound
		}
		return token.Meta(), nil
	}
	asset, err := s.store.GetAsset(ctx, addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CollateralAsset{}, domain.ErrNotFound
		}
		return domain.CollateralAsset{}, fmt.Errorf("collateral_service: get asset %s: %w", addr.Hex(), err)
	}
	return asset, nil
}

// Holding returns an account's balance in one collateral asset. Unknown
// cells read as zero.
func (s *CollateralService) Holding(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	if s.registry != nil {
		token, ok := s.registry.Get(asset)
		if !ok {
			return nil, domain.ErrUnknownCollateral
		}
		return token.BalanceOf(ctx, account)
	}

	balance, err := s.store.GetHolding(ctx, asset, account)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("collateral_service: holding %s for %s: %w", asset.Hex(), account.Hex(), err)
	}
	return balance, nil
}

// SnapshotHoldings writes every registered token's non-zero balances through
// to the store and returns the row count. The pipeline calls this on its
// snapshot schedule.
func (s *CollateralService) SnapshotHoldings(ctx context.Context) (int, error) {
	if s.registry == nil {
		return 0, domain.ErrReadOnly
	}

	count := 0
	for _, meta := range s.registry.List() {
		token, ok := s.registry.Get(meta.Address)
		if !ok {
			continue
		}
		for _, h := range token.Holdings() {
			if err := s.store.UpsertHolding(ctx, h.Asset, h.Account, h.Balance); err != nil {
				return count, fmt.Errorf("collateral_service: snapshot holding %s/%s: %w", h.Asset.Hex(), h.Account.Hex(), err)
			}
			count++
		}
	}
	return count, nil
}
