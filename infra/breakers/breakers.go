// Package breakers wraps provider calls in circuit breakers so a
// flapping upstream degrades the feed instead of hammering it.
package breakers

import (
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

type Breaker struct{ cb *cb.CircuitBreaker }

// New builds a breaker that trips on three consecutive failures, or on
// a >5% failure rate once twenty calls have been seen. It probes again
// after a minute open.
func New(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		log.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit state change")
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// State reports the current circuit state for health endpoints.
func (b *Breaker) State() string { return b.cb.State().String() }

// Healthy is true while calls are still being admitted.
func (b *Breaker) Healthy() bool { return b.cb.State() != cb.StateOpen }
