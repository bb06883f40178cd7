package scoring

import (
	"math"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// scoreLiquidity grades the best raid inside the lookback window that
// agrees with the hypothesis. Quality factors and hold bonuses ride on
// the event itself, stamped by the detector that measured them; the
// scorer only weighs and caps.
func (e *DualScoreEngine) scoreLiquidity(direction domain.Direction, facts *MarketFacts) (float64, bool) {
	if facts.LiquidityEvents == nil {
		return 0, true
	}

	cutoff := facts.Timestamp.Add(-time.Duration(e.config.Liquidity.LookbackMinutes) * time.Minute)

	best := 0.0
	for _, ev := range facts.LiquidityEvents {
		if ev.Direction != direction {
			continue
		}
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		raw := (ev.Weight/3.0*ev.QualityFactor + ev.HoldBonus) * e.config.MaxLiquidity
		if raw > best {
			best = raw
		}
	}
	return math.Min(best, e.config.MaxLiquidity), false
}
