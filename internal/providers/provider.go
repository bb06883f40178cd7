// Package providers defines the market-data surface the collection
// cycle runs against and hosts the upstream client implementations.
package providers

import (
	"context"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Provider serves one-minute bars for an upstream symbol. Implementations
// own their retry, rate-limit and circuit policies; callers see either
// bars or a final error.
type Provider interface {
	// Name identifies the upstream, e.g. "yahoo" or "binance".
	Name() string

	// Bars returns 1m bars with open times inside [start, end), sorted
	// ascending. An empty result with nil error means the venue had no
	// trades in the window.
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// Health reports whether the upstream is currently usable.
	Health(ctx context.Context) Health
}

// Health is the monitor-endpoint view of one provider.
type Health struct {
	Provider     string    `json:"provider"`
	Healthy      bool      `json:"healthy"`
	CircuitState string    `json:"circuit_state"`
	Detail       string    `json:"detail,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}
