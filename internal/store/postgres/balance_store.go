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

// BalanceStore implements domain.BalanceStore using PostgreSQL. Rows mirror
// the in-memory ledger: writes replace the whole (key, account) cell.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// UpsertBalance writes the current balance of one (position, account) cell.
func (s *BalanceStore) UpsertBalance(ctx context.Context, positionID common.Hash, account common.Address, balance *uint256.Int) error {
	const query = `
		INSERT INTO position_balances (position_id, account, balance, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (position_id, account) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, positionID.Hex(), account.Hex(), toNumeric(balance))
	if err != nil {
		return fmt.Errorf("postgres: upsert balance %s/%s: %w", positionID, account, err)
	}
	return nil
}

// UpsertAllowance writes the current allowance of one (asset, owner, spender)
// cell.
func (s *BalanceStore) UpsertAllowance(ctx context.Context, assetID common.Hash, owner, spender common.Address, value *uint256.Int) error {
	const query = `
		INSERT INTO allowances (asset_id, owner, spender, value, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (asset_id, owner, spender) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, assetID.Hex(), owner.Hex(), spender.Hex(), toNumeric(value))
	if err != nil {
		return fmt.Errorf("postgres: upsert allowance %s/%s/%s: %w", assetID, owner, spender, err)
	}
	return nil
}

// GetBalance retrieves one stored balance cell.
func (s *BalanceStore) GetBalance(ctx context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error) {
	var n pgtype.Numeric
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM position_balances WHERE position_id = $1 AND account = $2`,
		positionID.Hex(), account.Hex(),
	).Scan(&n)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get balance %s/%s: %w", positionID, account, err)
	}
	return fromNumeric(n)
}

// GetAllowance retrieves one stored allowance cell.
func (s *BalanceStore) GetAllowance(ctx context.Context, assetID common.Hash, owner, spender common.Address) (*uint256.Int, error) {
	var n pgtype.Numeric
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM allowances WHERE asset_id = $1 AND owner = $2 AND spender = $3`,
		assetID.Hex(), owner.Hex(), spender.Hex(),
	).Scan(&n)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get allowance %s/%s/%s: %w", assetID, owner, spender, err)
	}
	return fromNumeric(n)
}

// ListByAccount returns an account's non-zero position balances with
// pagination and optional time filtering on updated_at.
func (s *BalanceStore) ListByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.PositionBalance, error) {
	query := `SELECT position_id, account, balance, updated_at
		FROM position_balances WHERE account = $1 AND balance <> 0`
	args := []any{account.Hex()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND updated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY updated_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances by account: %w", err)
	}
	defer rows.Close()
	return scanBalanceRows(rows)
}

// LoadBalances returns every non-zero balance cell for ledger restore.
func (s *BalanceStore) LoadBalances(ctx context.Context) ([]domain.PositionBalance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT position_id, account, balance, updated_at
		FROM position_balances WHERE balance <> 0
		ORDER BY position_id, account`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load balances: %w", err)
	}
	defer rows.Close()
	return scanBalanceRows(rows)
}

func scanBalanceRows(rows pgx.Rows) ([]domain.PositionBalance, error) {
	var balances []domain.PositionBalance
	for rows.Next() {
		var (
			b          domain.PositionBalance
			posHex     string
			accountHex string
			n          pgtype.Numeric
		)
		if err := rows.Scan(&posHex, &accountHex, &n, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		b.PositionID = common.HexToHash(posHex)
		b.Account = common.HexToAddress(accountHex)
		v, err := fromNumeric(n)
		if err != nil {
			return nil, err
		}
		b.Balance = v
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: balance rows: %w", err)
	}
	return balances, nil
}

// LoadAllowances returns every non-zero allowance cell for ledger restore.
func (s *BalanceStore) LoadAllowances(ctx context.Context) ([]domain.Allowance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset_id, owner, spender, value, updated_at
		FROM allowances WHERE value <> 0
		ORDER BY asset_id, owner, spender`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load allowances: %w", err)
	}
	defer rows.Close()

	var allowances []domain.Allowance
	for rows.Next() {
		var (
			a          domain.Allowance
			assetHex   string
			ownerHex   string
			spenderHex string
			n          pgtype.Numeric
		)
		if err := rows.Scan(&assetHex, &ownerHex, &spenderHex, &n, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan allowance: %w", err)
		}
		a.AssetID = common.HexToHash(assetHex)
		a.Owner = common.HexToAddress(ownerHex)
		a.Spender = common.HexToAddress(spenderHex)
		v, err := fromNumeric(n)
		if err != nil {
			return nil, err
		}
		a.Value = v
		allowances = append(allowances, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: allowance rows: %w", err)
	}
	return allowances, nil
}
