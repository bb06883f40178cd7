package scoring

import "github.com/JGDev1215/OpenPredict/internal/domain"

// Agreement bands for the secondary-open bonus. The band edges at 0.60
// and 0.30 belong to the higher band.
const (
	strongAgreement = 0.70 // exclusive: above this earns the full bonus
	goodAgreement   = 0.60
	weakAgreement   = 0.40
	poorAgreement   = 0.30
)

// scoreEquilibrium measures weighted agreement between price and the
// five secondary reference opens. Unlike the capped components it is a
// symmetric bonus: broad agreement adds up to the span, broad
// disagreement subtracts the same.
func (e *DualScoreEngine) scoreEquilibrium(direction domain.Direction, facts *MarketFacts) (float64, bool) {
	if facts.Levels == nil {
		return 0, true
	}

	var agreeing, total float64
	for _, lvl := range facts.Levels {
		var weight float64
		switch lvl.Type {
		case domain.LevelMonthlyOpen:
			weight = e.config.Equilibrium.MonthlyWeight
		case domain.LevelDailyOpen:
			weight = e.config.Equilibrium.DailyWeight
		case domain.LevelNYOpen:
			weight = e.config.Equilibrium.NYWeight
		case domain.LevelH4Open:
			weight = e.config.Equilibrium.H4Weight
		case domain.LevelH1Open:
			weight = e.config.Equilibrium.H1Weight
		default:
			continue
		}
		if weight <= 0 {
			continue
		}
		total += weight

		agrees := false
		switch direction {
		case domain.DirectionUp:
			agrees = facts.Price > lvl.Value
		case domain.DirectionDown:
			agrees = facts.Price < lvl.Value
		}
		if agrees {
			agreeing += weight
		}
	}

	if total == 0 {
		return 0, false
	}

	ratio := agreeing / total
	span := e.config.EquilibriumSpan
	switch {
	case ratio > strongAgreement:
		return span, false
	case ratio >= goodAgreement:
		return span / 2, false
	case ratio >= weakAgreement:
		return 0, false
	case ratio >= poorAgreement:
		return -span / 2, false
	default:
		return -span, false
	}
}
