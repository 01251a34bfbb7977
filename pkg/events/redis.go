package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stream defaults.
const (
	DefaultStream    = "assess:events"
	DefaultMaxLen    = 100_000
	DefaultDedupeTTL = 24 * time.Hour
	dedupeKeyPrefix  = "assess:events:dedupe:"
)

// StreamClient is the subset of the go-redis client used by RedisStreamSink.
// *redis.Client and *redis.ClusterClient satisfy it.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStreamSink appends envelopes to a Redis stream. A short-lived
// SET NX marker per idempotency key drops duplicate emissions.
type RedisStreamSink struct {
	client    StreamClient
	stream    string
	maxLen    int64
	dedupeTTL time.Duration
}

// RedisStreamOption customizes a RedisStreamSink.
type RedisStreamOption func(*RedisStreamSink)

// WithStream overrides the stream name.
func WithStream(name string) RedisStreamOption {
	return func(s *RedisStreamSink) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the stream length (approximate trimming).
func WithMaxLen(n int64) RedisStreamOption {
	return func(s *RedisStreamSink) { s.maxLen = n }
}

// WithDedupeTTL sets how long an idempotency key is remembered.
func WithDedupeTTL(ttl time.Duration) RedisStreamOption {
	return func(s *RedisStreamSink) { s.dedupeTTL = ttl }
}

// NewRedisStreamSink creates a sink writing to a Redis stream.
func NewRedisStreamSink(client StreamClient, opts ...RedisStreamOption) (*RedisStreamSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &RedisStreamSink{
		client:    client,
		stream:    DefaultStream,
		maxLen:    DefaultMaxLen,
		dedupeTTL: DefaultDedupeTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Append implements EventSink.
func (s *RedisStreamSink) Append(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	var dedupeKey string
	if env.IdempotencyKey != "" && s.dedupeTTL > 0 {
		dedupeKey = dedupeKeyPrefix + env.IdempotencyKey
		fresh, err := s.client.SetNX(ctx, dedupeKey, env.ID, s.dedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("dedupe check: %w", err)
		}
		if !fresh {
			return nil
		}
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"type":            env.Type,
			"subject_id":      env.SubjectID,
			"idempotency_key": env.IdempotencyKey,
			"envelope":        string(data),
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		// Release the marker so a retry is not mistaken for a duplicate.
		if dedupeKey != "" {
			_ = s.client.Del(ctx, dedupeKey).Err()
		}
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
