package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard lets only the first caller arm a tag until ttl elapses, so repeated
// arming of the same job collapses into one invocation.
type Guard interface {
	Claim(ctx context.Context, tag string, ttl time.Duration) (bool, error)
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu    sync.Mutex
	until map[string]time.Time
	Now   func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{until: make(map[string]time.Time), Now: time.Now}
}

func (g *MemoryGuard) Claim(ctx context.Context, tag string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.Now()
	if exp, ok := g.until[tag]; ok && now.Before(exp) {
		return false, nil
	}
	g.until[tag] = now.Add(ttl)

	for k, exp := range g.until {
		if !now.Before(exp) {
			delete(g.until, k)
		}
	}
	return true, nil
}

// RedisGuard shares claims between processes with SET NX.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard {
	return &RedisGuard{rdb: rdb, prefix: "mailqueue:armed:"}
}

func (g *RedisGuard) Claim(ctx context.Context, tag string, ttl time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, g.prefix+tag, time.Now().Unix(), ttl).Result()
}
