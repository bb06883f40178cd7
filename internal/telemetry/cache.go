package telemetry

import (
	"context"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/cache"
)

// instrumentedCache feeds hit/miss counts into the registry while
// delegating storage to the wrapped cache.
type instrumentedCache struct {
	inner     cache.Cache
	metrics   *Registry
	cacheType string
}

// InstrumentCache wraps a cache so reads feed the hit-ratio metrics.
func (r *Registry) InstrumentCache(inner cache.Cache, cacheType string) cache.Cache {
	return &instrumentedCache{inner: inner, metrics: r, cacheType: cacheType}
}

func (c *instrumentedCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok := c.inner.Get(ctx, key)
	if ok {
		c.metrics.RecordCacheHit(c.cacheType)
	} else {
		c.metrics.RecordCacheMiss(c.cacheType)
	}
	return val, ok
}

func (c *instrumentedCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.inner.Set(ctx, key, val, ttl)
}
