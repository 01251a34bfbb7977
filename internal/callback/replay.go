package callback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers token ids so a captured callback cannot be replayed.
type ReplayGuard interface {
	// Claim records jti for ttl and reports whether this is its first use.
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	// Release forgets jti so the sender may retry after a failed delivery.
	Release(ctx context.Context, jti string) error
}

// MemoryReplayGuard keeps claimed ids in process memory.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryReplayGuard creates an empty guard.
func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

// Claim implements ReplayGuard.
func (g *MemoryReplayGuard) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.seen {
		if now.After(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[jti]; ok {
		return false, nil
	}
	g.seen[jti] = now.Add(ttl)
	return true, nil
}

// Release implements ReplayGuard.
func (g *MemoryReplayGuard) Release(_ context.Context, jti string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, jti)
	return nil
}

// RedisClient is the subset of redis commands the guard uses.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

const replayKeyPrefix = "assess:callback:jti:"

// RedisReplayGuard shares claimed ids across API replicas.
type RedisReplayGuard struct {
	client RedisClient
}

// NewRedisReplayGuard creates a guard backed by client.
func NewRedisReplayGuard(client RedisClient) *RedisReplayGuard {
	return &RedisReplayGuard{client: client}
}

// Claim implements ReplayGuard using SET NX EX.
func (g *RedisReplayGuard) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, replayKeyPrefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim callback token: %w", err)
	}
	return ok, nil
}

// Release implements ReplayGuard.
func (g *RedisReplayGuard) Release(ctx context.Context, jti string) error {
	if err := g.client.Del(ctx, replayKeyPrefix+jti).Err(); err != nil {
		return fmt.Errorf("release callback token: %w", err)
	}
	return nil
}
