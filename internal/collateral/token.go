package collateral

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// Token is an in-process transferable-balance asset. The position ledger
// acts as its custodian: TransferFrom may move any holder's funds into the
// custody account, so deposits need no per-account approval step. Transfer
// always pays out of custody.
type Token struct {
	mu       sync.Mutex
	meta     domain.CollateralAsset
	custody  common.Address
	balances map[common.Address]*uint256.Int
}

var _ domain.CollateralToken = (*Token)(nil)

// NewToken creates an empty asset ledger paying out of the given custody
// account.
func NewToken(meta domain.CollateralAsset, custody common.Address) *Token {
	return &Token{
		meta:     meta,
		custody:  custody,
		balances: make(map[common.Address]*uint256.Int),
	}
}

// Meta returns the asset's registration metadata.
func (t *Token) Meta() domain.CollateralAsset {
	return t.meta
}

// Mint credits freshly issued units to an account.
func (t *Token) Mint(account common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creditLocked(account, amount)
}

// TransferFrom moves amount from the payer to the payee.
func (t *Token) TransferFrom(ctx context.Context, payer, payee common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(payer, payee, amount)
}

// Transfer pays amount out of the custody account to the payee.
func (t *Token) Transfer(ctx context.Context, payee common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(t.custody, payee, amount)
}

// BalanceOf returns the account's balance, zero for unknown accounts.
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.balanceLocked(account)), nil
}

// Holdings returns every non-zero balance row, for persistence and
// snapshots.
func (t *Token) Holdings() []domain.CollateralHolding {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]domain.CollateralHolding, 0, len(t.balances))
	for account, bal := range t.balances {
		if bal.IsZero() {
			continue
		}
		rows = append(rows, domain.CollateralHolding{
			Asset:   t.meta.Address,
			Account: account,
			Balance: new(uint256.Int).Set(bal),
		})
	}
	return rows
}

// Restore overwrites an account's balance from persisted state.
func (t *Token) Restore(account common.Address, balance *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] = new(uint256.Int).Set(balance)
}

func (t *Token) moveLocked(from, to common.Address, amount *uint256.Int) error {
	held := t.balanceLocked(from)
	if held.Lt(amount) {
		return fmt.Errorf("collateral: %s: insufficient funds for %s", t.meta.Symbol, from)
	}
	t.balances[from] = new(uint256.Int).Sub(held, amount)
	t.creditLocked(to, amount)
	return nil
}

func (t *Token) creditLocked(account common.Address, amount *uint256.Int) {
	held := t.balanceLocked(account)
	t.balances[account] = new(uint256.Int).Add(held, amount)
}

func (t *Token) balanceLocked(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}
