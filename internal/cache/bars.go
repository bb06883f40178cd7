package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// SetBars stores a bar window as JSON. Encoding a bar slice cannot
// fail, so errors only surface on the read side.
func SetBars(ctx context.Context, c Cache, key string, bars []domain.Bar, ttl time.Duration) {
	b, err := json.Marshal(bars)
	if err != nil {
		return
	}
	c.Set(ctx, key, b, ttl)
}

// GetBars reads a bar window back. A corrupt payload is treated as a
// miss so the caller refetches instead of scoring garbage.
func GetBars(ctx context.Context, c Cache, key string) ([]domain.Bar, bool) {
	b, ok := c.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var bars []domain.Bar
	if err := json.Unmarshal(b, &bars); err != nil {
		return nil, false
	}
	return bars, true
}
