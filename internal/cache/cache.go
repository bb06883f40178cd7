// Package cache is the short-TTL byte cache provider clients put in
// front of upstream market-data calls. It is a cache, not a store:
// misses are normal and every entry expires.
package cache

import (
	"context"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// New returns the in-process cache.
func New() Cache { return &memory{m: make(map[string]entry)} }

// NewAuto returns a Redis-backed cache when REDIS_ADDR is set, the
// in-process one otherwise. Shared cache matters once several
// instruments run side by side; a single process does fine without it.
func NewAuto() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		log.Debug().Str("addr", addr).Msg("market data cache backed by redis")
		return &redisCache{r: redis.NewClient(&redis.Options{Addr: addr})}
	}
	return New()
}

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return append([]byte(nil), e.b...), true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct{ r *redis.Client }

const redisTimeout = 500 * time.Millisecond

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := r.r.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set dropped")
	}
}
