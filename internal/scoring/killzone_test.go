package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JGDev1215/OpenPredict/internal/sessions"
)

func kzFacts(at time.Time) *MarketFacts {
	return &MarketFacts{Instrument: "NQ=F", Price: 21440, Timestamp: at}
}

func etClock(y int, mo time.Month, d, h, min int) time.Time {
	return time.Date(y, mo, d, h, min, 0, 0, sessions.Eastern())
}

func TestScoreKillZone(t *testing.T) {
	engine := NewDualScoreEngine(nil)

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		// NY morning on a Tuesday: 3.0 x 1.00 x 1.15 = 3.45, capped
		// at 3.0 for the full 20 points.
		{"prime ny morning caps out", etClock(2025, 6, 3, 9, 0), 20.0},

		// Early London on a Friday: 2.5 x 1.00 x 0.70 = 1.75.
		{"london friday", etClock(2025, 6, 6, 5, 0), 1.75 / 3.0 * 20},

		// Late NY afternoon on a Monday: 2.0 x 0.70 x 1.00 = 1.40.
		{"fading ny afternoon", etClock(2025, 6, 2, 16, 30), 1.40 / 3.0 * 20},

		// Mid Asian session on a Tuesday evening: 1.5 x 0.95 x 1.15.
		{"asian midpoint", etClock(2025, 6, 3, 22, 0), 1.5 * 0.95 * 1.15 / 3.0 * 20},

		// Lunch gap on a Tuesday: off-hours 0.5 x 1.15.
		{"session gap takes off-hours weight", etClock(2025, 6, 3, 12, 30), 0.5 * 1.15 / 3.0 * 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.scoreKillZone(kzFacts(tt.at))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestScoreKillZone_PositionDecayBands(t *testing.T) {
	engine := NewDualScoreEngine(nil)

	// Same session, same day; only the position in session moves.
	// Friday keeps the product under the cap so the decay is visible.
	early := engine.scoreKillZone(kzFacts(etClock(2025, 6, 6, 3, 30)))  // 0.056 into London
	mid := engine.scoreKillZone(kzFacts(etClock(2025, 6, 6, 7, 0)))     // 0.444 in
	late := engine.scoreKillZone(kzFacts(etClock(2025, 6, 6, 11, 30)))  // 0.944 in

	assert.Greater(t, early, mid)
	assert.Greater(t, mid, late)
	assert.InDelta(t, 2.5*1.00*0.70/3.0*20, early, 1e-9)
	assert.InDelta(t, 2.5*0.95*0.70/3.0*20, mid, 1e-9)
	assert.InDelta(t, 2.5*0.70*0.70/3.0*20, late, 1e-9)
}
