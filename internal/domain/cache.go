package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BalanceCache serves hot (position, account) balance reads. The ledger
// stays authoritative; every write that touches a cell invalidates it here
// first and rewrites it after commit.
type BalanceCache interface {
	Set(ctx context.Context, positionID common.Hash, account common.Address, balance *uint256.Int) error
	Get(ctx context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error)
	Invalidate(ctx context.Context, positionID common.Hash, account common.Address) error
}

// ConditionCache keeps prepared and resolved conditions close to the API.
// Get reports ErrNotFound on a miss.
type ConditionCache interface {
	Set(ctx context.Context, c Condition) error
	Get(ctx context.Context, id common.Hash) (Condition, error)
	Invalidate(ctx context.Context, id common.Hash) error
}

// RateLimiter counts requests per key across every daemon instance. Allow
// reports whether one more request fits in the window; Wait blocks until
// one would.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager hands out cross-instance exclusive locks. Acquire reports
// ErrLockHeld while another holder has the key; the returned unlock is
// safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one durable stream entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the fan-out side of the journal: fire-and-forget pub/sub
// for live subscribers plus capped durable streams for catch-up reads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
