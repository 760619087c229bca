package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ListOpts paginates and time-bounds list queries. A nil bound leaves that
// side open.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ConditionStore persists prepared conditions and their resolutions.
// Lookups report ErrNotFound for unknown ids.
type ConditionStore interface {
	Upsert(ctx context.Context, c Condition) error
	Resolve(ctx context.Context, id common.Hash, numerators []*uint256.Int, denominator *uint256.Int, result []byte, at time.Time) error
	GetByID(ctx context.Context, id common.Hash) (Condition, error)
	GetByQuestion(ctx context.Context, questionID common.Hash) ([]Condition, error)
	List(ctx context.Context, opts ListOpts) ([]Condition, error)
	Count(ctx context.Context) (int64, error)
}

// BalanceStore persists position balances and allowances as whole-row
// upserts keyed on the touched pair. The Load methods read every row; they
// exist for startup restore.
type BalanceStore interface {
	UpsertBalance(ctx context.Context, positionID common.Hash, account common.Address, balance *uint256.Int) error
	UpsertAllowance(ctx context.Context, assetID common.Hash, owner, spender common.Address, value *uint256.Int) error
	GetBalance(ctx context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error)
	GetAllowance(ctx context.Context, assetID common.Hash, owner, spender common.Address) (*uint256.Int, error)
	ListByAccount(ctx context.Context, account common.Address, opts ListOpts) ([]PositionBalance, error)
	LoadBalances(ctx context.Context) ([]PositionBalance, error)
	LoadAllowances(ctx context.Context) ([]Allowance, error)
}

// CollateralStore persists collateral asset metadata and per-account
// custody holdings.
type CollateralStore interface {
	UpsertAsset(ctx context.Context, a CollateralAsset) error
	GetAsset(ctx context.Context, addr common.Address) (CollateralAsset, error)
	ListAssets(ctx context.Context) ([]CollateralAsset, error)
	UpsertHolding(ctx context.Context, asset, account common.Address, balance *uint256.Int) error
	GetHolding(ctx context.Context, asset, account common.Address) (*uint256.Int, error)
	LoadHoldings(ctx context.Context) ([]CollateralHolding, error)
}

// EventStore is the durable journal. Append is idempotent on sequence
// number, so replaying a flush after a crash cannot duplicate rows.
// DeleteThrough prunes every row up to and including seq and reports how
// many went.
type EventStore interface {
	Append(ctx context.Context, rec EventRecord) error
	List(ctx context.Context, typ EventType, opts ListOpts) ([]EventRecord, error)
	MaxSeq(ctx context.Context) (uint64, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]EventRecord, error)
	DeleteThrough(ctx context.Context, seq uint64) (int64, error)
}

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records operator-visible actions outside the ledger journal.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
