package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// compareAndDelete releases a lock only when the stored token proves the
// caller still holds it.
const compareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SET NX tokens under a TTL.
// Each acquisition writes a unique token; release runs a compare-and-delete
// so an expired holder cannot free a successor's lock.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager on the shared client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(compareAndDelete),
	}
}

// Acquire takes the named lock for at most ttl. The returned function
// releases it and may be called any number of times. domain.ErrLockHeld
// reports a lock currently owned elsewhere.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	name := "lock:" + key
	token := uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The holder's context may already be done; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.release.Run(rctx, lm.rdb, []string{name}, token).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
