package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/gogratta/pm-contracts/internal/domain"
)

const balanceTTL = 30 * time.Second

// BalanceCache implements domain.BalanceCache using plain Redis strings with
// decimal-encoded values. The ledger is authoritative; entries are written on
// read-miss and dropped on every write that touches the key.
//
// Key schema:
//
//	balance:{positionID}:{account} - decimal string
type BalanceCache struct {
	rdb *redis.Client
}

// NewBalanceCache creates a BalanceCache backed by the given Client.
func NewBalanceCache(c *Client) *BalanceCache {
	return &BalanceCache{rdb: c.Underlying()}
}

func balanceKey(positionID common.Hash, account common.Address) string {
	return "balance:" + positionID.Hex() + ":" + account.Hex()
}

// Set stores a balance with a short TTL.
func (bc *BalanceCache) Set(ctx context.Context, positionID common.Hash, account common.Address, balance *uint256.Int) error {
	if balance == nil {
		balance = new(uint256.Int)
	}
	key := balanceKey(positionID, account)
	if err := bc.rdb.Set(ctx, key, balance.Dec(), balanceTTL).Err(); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", key, err)
	}
	return nil
}

// Get retrieves a cached balance. It returns domain.ErrNotFound when the key
// does not exist.
func (bc *BalanceCache) Get(ctx context.Context, positionID common.Hash, account common.Address) (*uint256.Int, error) {
	key := balanceKey(positionID, account)
	val, err := bc.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get balance %s: %w", key, err)
	}

	balance, err := uint256.FromDecimal(val)
	if err != nil {
		return nil, fmt.Errorf("redis: decode balance %s: %w", key, err)
	}
	return balance, nil
}

// Invalidate removes a balance entry from the cache.
func (bc *BalanceCache) Invalidate(ctx context.Context, positionID common.Hash, account common.Address) error {
	key := balanceKey(positionID, account)
	if err := bc.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balance %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceCache = (*BalanceCache)(nil)
