package scoring

import "github.com/JGDev1215/OpenPredict/internal/domain"

// scoreHTFBias grades how many of the weighted reference levels price
// sits on the favorable side of. The contribution is signed: broad
// disagreement subtracts from the directional total, and the aggregate
// clip in scoreDirection owns the floor. Price exactly at a level
// counts against the hypothesis.
func (e *DualScoreEngine) scoreHTFBias(direction domain.Direction, facts *MarketFacts) (float64, bool) {
	if facts.Levels == nil {
		return 0, true
	}

	var weightedSum, totalWeight float64
	for _, lvl := range facts.Levels {
		weight := lvl.Weight
		if weight <= 0 {
			// Levels may arrive unstamped; fall back to the table.
			w, ok := e.config.Levels.For(lvl.Type)
			if !ok || w <= 0 {
				continue
			}
			weight = w
		}

		signal := -1.0
		switch direction {
		case domain.DirectionUp:
			if facts.Price > lvl.Value {
				signal = 1.0
			}
		case domain.DirectionDown:
			if facts.Price < lvl.Value {
				signal = 1.0
			}
		}

		weightedSum += signal * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0, false
	}
	return weightedSum / totalWeight * e.config.MaxHTFBias, false
}
