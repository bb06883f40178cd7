// Package ratelimit applies per-host token buckets to upstream
// market-data calls so a hot poll loop cannot trip a provider's abuse
// limits.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per upstream host, created lazily
// on first use. All buckets share the same rps/burst policy.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = limiter
	return limiter
}

// Allow reports whether a request to host may go out right now.
func (l *Limiter) Allow(host string) bool {
	return l.forHost(host).Allow()
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.forHost(host).Wait(ctx)
}

// HostStats is a point-in-time view of one host's bucket, surfaced by
// the monitor endpoints.
type HostStats struct {
	Host            string        `json:"host"`
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"`
}

func (s HostStats) Throttled() bool { return s.Delay > 0 }

// Stats snapshots every host bucket seen so far.
func (l *Limiter) Stats() map[string]HostStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]HostStats, len(l.limiters))
	for host, limiter := range l.limiters {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		stats[host] = HostStats{
			Host:            host,
			RPS:             float64(limiter.Limit()),
			Burst:           limiter.Burst(),
			TokensAvailable: limiter.Tokens(),
			Delay:           delay,
		}
	}
	return stats
}
