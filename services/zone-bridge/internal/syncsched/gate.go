package syncsched

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate decides whether a run may start. Allow reserves the slot when it returns true.
type Gate interface {
	Allow(ctx context.Context, key string, interval time.Duration) (bool, error)
}

type MemoryGate struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMemoryGate(now func() time.Time) *MemoryGate {
	if now == nil {
		now = time.Now
	}
	return &MemoryGate{last: make(map[string]time.Time), now: now}
}

func (g *MemoryGate) Allow(_ context.Context, key string, interval time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.last[key]; ok && now.Sub(last) < interval {
		return false, nil
	}
	g.last[key] = now
	return true, nil
}

type setNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisGate shares the debounce window across replicas with SET NX PX.
type RedisGate struct {
	rdb setNXer
}

func NewRedisGate(rdb redis.Cmdable) *RedisGate {
	return &RedisGate{rdb: rdb}
}

func (g *RedisGate) Allow(ctx context.Context, key string, interval time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), interval).Result()
}
