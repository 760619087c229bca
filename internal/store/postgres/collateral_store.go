package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// CollateralStore implements domain.CollateralStore using PostgreSQL.
type CollateralStore struct {
	pool *pgxpool.Pool
}

// NewCollateralStore creates a new CollateralStore backed by the given connection pool.
func NewCollateralStore(pool *pgxpool.Pool) *CollateralStore {
	return &CollateralStore{pool: pool}
}

// UpsertAsset inserts or updates a collateral asset's metadata.
func (s *CollateralStore) UpsertAsset(ctx context.Context, a domain.CollateralAsset) error {
	const query = `
		INSERT INTO collateral_assets (address, symbol, name, decimals, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			symbol   = EXCLUDED.symbol,
			name     = EXCLUDED.name,
			decimals = EXCLUDED.decimals`

	_, err := s.pool.Exec(ctx, query,
		a.Address.Hex(), a.Symbol, a.Name, int(a.Decimals), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert collateral asset %s: %w", a.Symbol, err)
	}
	return nil
}

// GetAsset retrieves a collateral asset by address.
func (s *CollateralStore) GetAsset(ctx context.Context, addr common.Address) (domain.CollateralAsset, error) {
	var (
		a          domain.CollateralAsset
		addressHex string
		decimals   int
	)
	err := s.pool.QueryRow(ctx,
		`SELECT address, symbol, name, decimals, created_at FROM collateral_assets WHERE address = $1`,
		addr.Hex(),
	).Scan(&addressHex, &a.Symbol, &a.Name, &decimals, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CollateralAsset{}, domain.ErrNotFound
		}
		return domain.CollateralAsset{}, fmt.Errorf("postgres: get collateral asset %s: %w", addr, err)
	}
	a.Address = common.HexToAddress(addressHex)
	a.Decimals = uint8(decimals)
	return a, nil
}

// ListAssets returns all registered collateral assets.
func (s *CollateralStore) ListAssets(ctx context.Context) ([]domain.CollateralAsset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT address, symbol, name, decimals, created_at FROM collateral_assets ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list collateral assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.CollateralAsset
	for rows.Next() {
		var (
			a          domain.CollateralAsset
			addressHex string
			decimals   int
		)
		if err := rows.Scan(&addressHex, &a.Symbol, &a.Name, &decimals, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan collateral asset: %w", err)
		}
		a.Address = common.HexToAddress(addressHex)
		a.Decimals = uint8(decimals)
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list collateral assets rows: %w", err)
	}
	return assets, nil
}

// UpsertHolding writes the current balance of one (asset, account) cell.
func (s *CollateralStore) UpsertHolding(ctx context.Context, asset, account common.Address, balance *uint256.Int) error {
	const query = `
		INSERT INTO collateral_holdings (asset, account, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (asset, account) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, asset.Hex(), account.Hex(), toNumeric(balance))
	if err != nil {
		return fmt.Errorf("postgres: upsert holding %s/%s: %w", asset, account, err)
	}
	return nil
}

// GetHolding retrieves one stored collateral balance cell.
func (s *CollateralStore) GetHolding(ctx context.Context, asset, account common.Address) (*uint256.Int, error) {
	var n pgtype.Numeric
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM collateral_holdings WHERE asset = $1 AND account = $2`,
		asset.Hex(), account.Hex(),
	).Scan(&n)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get holding %s/%s: %w", asset, account, err)
	}
	return fromNumeric(n)
}

// LoadHoldings returns every non-zero collateral balance for restore.
func (s *CollateralStore) LoadHoldings(ctx context.Context) ([]domain.CollateralHolding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, account, balance, updated_at
		FROM collateral_holdings WHERE balance <> 0
		ORDER BY asset, account`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.CollateralHolding
	for rows.Next() {
		var (
			h          domain.CollateralHolding
			assetHex   string
			accountHex string
			n          pgtype.Numeric
		)
		if err := rows.Scan(&assetHex, &accountHex, &n, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		h.Asset = common.HexToAddress(assetHex)
		h.Account = common.HexToAddress(accountHex)
		v, err := fromNumeric(n)
		if err != nil {
			return nil, err
		}
		h.Balance = v
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: holding rows: %w", err)
	}
	return holdings, nil
}
