package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/gogratta/pm-contracts/internal/domain"
)

const conditionTTL = 5 * time.Minute

// ConditionCache implements domain.ConditionCache using Redis hashes with
// JSON-serialized Condition data and a secondary question-to-condition index.
//
// Key schema:
//
//	condition:{id}               - hash with field "data" containing JSON
//	condition:question:{qid}     - set of condition IDs prepared over the question
type ConditionCache struct {
	rdb *redis.Client
}

// NewConditionCache creates a ConditionCache backed by the given Client.
func NewConditionCache(c *Client) *ConditionCache {
	return &ConditionCache{rdb: c.Underlying()}
}

func conditionKey(id common.Hash) string          { return "condition:" + id.Hex() }
func conditionQuestionKey(qid common.Hash) string { return "condition:question:" + qid.Hex() }

// Set stores a Condition in the cache with a 5-minute TTL and indexes it
// under its question.
func (cc *ConditionCache) Set(ctx context.Context, c domain.Condition) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: marshal condition %s: %w", c.ID, err)
	}

	key := conditionKey(c.ID)
	qKey := conditionQuestionKey(c.QuestionID)

	pipe := cc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, conditionTTL)
	pipe.SAdd(ctx, qKey, c.ID.Hex())
	pipe.Expire(ctx, qKey, conditionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set condition %s: %w", c.ID, err)
	}
	return nil
}

// Get retrieves a Condition by its hash from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (cc *ConditionCache) Get(ctx context.Context, id common.Hash) (domain.Condition, error) {
	data, err := cc.rdb.HGet(ctx, conditionKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("redis: get condition %s: %w", id, err)
	}

	var c domain.Condition
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Condition{}, fmt.Errorf("redis: unmarshal condition %s: %w", id, err)
	}
	return c, nil
}

// Invalidate removes a Condition and its question index entry from the cache.
func (cc *ConditionCache) Invalidate(ctx context.Context, id common.Hash) error {
	// Read the condition first so the question index entry can be cleaned up.
	c, err := cc.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate condition %s: %w", id, err)
	}

	pipe := cc.rdb.TxPipeline()
	pipe.Del(ctx, conditionKey(id))
	if err == nil {
		pipe.SRem(ctx, conditionQuestionKey(c.QuestionID), id.Hex())
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate condition %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ConditionCache = (*ConditionCache)(nil)
