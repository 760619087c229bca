package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gogratta/pm-contracts/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// waitPoll is how often Wait re-checks a saturated window.
const waitPoll = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter as a sliding window over one
// sorted set per key, scored by microsecond timestamps. The slide, count,
// and admit decision run atomically in one Lua script.
type RateLimiter struct {
	rdb    *redis.Client
	window *redis.Script
}

// NewRateLimiter creates a RateLimiter on the shared client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		window: redis.NewScript(slidingWindowLua),
	}
}

// Allow admits the request when fewer than limit requests were admitted for
// the key inside the trailing window. An admitted request is counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	verdict, err := rl.window.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(verdict) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(verdict))
	}
	return verdict[0] == 1, nil
}

// Wait blocks until one request for the key passes at 1 rps, or until ctx
// ends. Callers with other limits drive Allow themselves.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	ticker := time.NewTicker(waitPoll)
	defer ticker.Stop()

	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
