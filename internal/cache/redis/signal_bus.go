package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// streamCap bounds stream growth; XADD trims with MAXLEN ~ around this size.
const streamCap int64 = 10000

// SignalBus implements domain.SignalBus over Redis: Pub/Sub for live fan-out
// to connected consumers, streams for ordered replayable delivery.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus on the shared client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// Publish fans the payload out to current subscribers of the channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription and returns the channel of raw payloads.
// Channels containing glob meta characters subscribe by pattern. Cancelling
// ctx tears the subscription down and closes the returned channel.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var sub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		sub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		sub = sb.rdb.Subscribe(ctx, channel)
	}

	// The first Receive carries the subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// StreamAppend appends the payload to the stream, trimming it to roughly
// streamCap entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamCap,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries recorded after lastID ("0" reads
// from the start, "$" only what arrives next). No pending entries is an
// empty result, not an error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		// A negative Block omits the BLOCK argument; the zero value would
		// send BLOCK 0 and park the call forever.
		Block: -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, entry := range s.Messages {
			if data, ok := payloadBytes(entry.Values["payload"]); ok {
				out = append(out, domain.StreamMessage{ID: entry.ID, Payload: data})
			}
		}
	}
	return out, nil
}

// payloadBytes extracts the payload field, which go-redis hands back as a
// string after the wire round-trip.
func payloadBytes(v interface{}) ([]byte, bool) {
	switch p := v.(type) {
	case string:
		return []byte(p), true
	case []byte:
		return p, true
	default:
		return nil, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
