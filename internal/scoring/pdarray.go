package scoring

import (
	"fmt"
	"math"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// pdArray is one candidate premium/discount magnet.
type pdArray struct {
	name   string
	price  float64
	weight float64
}

// Confluence multipliers by number of agreeing arrays.
func confluenceMultiplier(count int) float64 {
	switch {
	case count >= 3:
		return 1.5
	case count == 2:
		return 1.3
	default:
		return 1.0
	}
}

// scorePDArray grades the strongest array on the hypothesis side of
// price, boosted when several arrays stack there. Bullish setups draw
// on arrays at or below price (the discount side); bearish mirrors
// above. Pivots are the required fact family; gaps and prior-day
// levels enrich the pool when present.
func (e *DualScoreEngine) scorePDArray(direction domain.Direction, facts *MarketFacts) (float64, bool) {
	if facts.Pivots == nil {
		return 0, true
	}

	best := 0.0
	count := 0
	for _, a := range e.collectArrays(facts) {
		onSide := false
		switch direction {
		case domain.DirectionUp:
			onSide = a.price <= facts.Price
		case domain.DirectionDown:
			onSide = a.price >= facts.Price
		}
		if !onSide {
			continue
		}

		factor := e.distanceFactor(math.Abs(facts.Price - a.price))
		if factor <= 0 {
			continue
		}

		contribution := a.weight / 3.0 * factor
		if contribution > best {
			best = contribution
		}
		count++
	}

	if count == 0 {
		return 0, false
	}
	score := best * confluenceMultiplier(count) * e.config.MaxPDArray
	return math.Min(score, e.config.MaxPDArray), false
}

// distanceFactor gives full credit within the tolerance and fades
// linearly to zero at tolerance times the max-distance multiplier.
func (e *DualScoreEngine) distanceFactor(distance float64) float64 {
	tol := e.config.PDArrays.Tolerance
	if distance <= tol {
		return 1.0
	}
	limit := tol * e.config.PDArrays.MaxDistanceMult
	if distance >= limit {
		return 0
	}
	return 1.0 - (distance-tol)/(limit-tol)
}

// collectArrays assembles the candidate pool: all pivot prices, fair
// value gap midpoints, the prior day's extremes and their midpoint as
// the discount/premium boundary.
func (e *DualScoreEngine) collectArrays(facts *MarketFacts) []pdArray {
	var out []pdArray

	for _, ps := range facts.Pivots {
		weight := e.config.PDArrays.DailyPivotWeight
		if ps.Timeframe == domain.PivotWeekly {
			weight = e.config.PDArrays.WeeklyPivotWeight
		}
		for name, price := range ps.Levels() {
			out = append(out, pdArray{
				name:   fmt.Sprintf("%s_%s", ps.Timeframe, name),
				price:  price,
				weight: weight,
			})
		}
	}

	for _, gap := range facts.Gaps {
		out = append(out, pdArray{name: "FVG", price: gap.Midpoint(), weight: e.config.PDArrays.FVGWeight})
	}

	var prevHigh, prevLow *float64
	for _, lvl := range facts.Levels {
		switch lvl.Type {
		case domain.LevelPrevDayHigh:
			v := lvl.Value
			prevHigh = &v
			out = append(out, pdArray{name: "PREV_DAY_HIGH", price: v, weight: e.config.PDArrays.PrevDayWeight})
		case domain.LevelPrevDayLow:
			v := lvl.Value
			prevLow = &v
			out = append(out, pdArray{name: "PREV_DAY_LOW", price: v, weight: e.config.PDArrays.PrevDayWeight})
		}
	}
	if prevHigh != nil && prevLow != nil {
		out = append(out, pdArray{
			name:   "EQUILIBRIUM",
			price:  (*prevHigh + *prevLow) / 2,
			weight: e.config.PDArrays.EquilibriumWeight,
		})
	}

	return out
}
