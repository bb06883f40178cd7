package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// DualScoreEngine scores the bullish and bearish hypotheses
// independently over one immutable fact snapshot. It holds no mutable
// state and is safe for concurrent use.
type DualScoreEngine struct {
	config *ScoreConfig
}

// NewDualScoreEngine creates a scoring engine. A nil config uses the
// production defaults.
func NewDualScoreEngine(config *ScoreConfig) *DualScoreEngine {
	if config == nil {
		config = DefaultScoreConfig()
	}
	return &DualScoreEngine{config: config}
}

// MaxTotal is the ceiling both directional totals are clipped to: the
// five capped components plus the equilibrium span.
func (e *DualScoreEngine) MaxTotal() float64 {
	return e.config.MaxHTFBias + e.config.MaxKillZone + e.config.MaxPDArray +
		e.config.MaxLiquidity + e.config.MaxStructure + e.config.EquilibriumSpan
}

// CalculateDualScore runs all six component scorers for both
// directions and aggregates them into a DualScore snapshot. A scorer
// whose fact family is unavailable contributes zero, is flagged, and
// lowers the reported data completeness; it never aborts the pass.
func (e *DualScoreEngine) CalculateDualScore(ctx context.Context, facts *MarketFacts) (*domain.DualScore, error) {
	startTime := time.Now()

	if facts == nil {
		return nil, domain.ComponentScoring("no facts snapshot supplied")
	}
	if facts.Price <= 0 || math.IsNaN(facts.Price) || math.IsInf(facts.Price, 0) {
		return nil, domain.ComponentScoring("facts carry no usable price").
			WithField("instrument", facts.Instrument).
			WithField("price", facts.Price)
	}

	bullTotal, bullComponents := e.scoreDirection(domain.DirectionUp, facts)
	bearTotal, bearComponents := e.scoreDirection(domain.DirectionDown, facts)

	score := &domain.DualScore{
		Instrument:        facts.Instrument,
		Price:             facts.Price,
		BullishTotal:      bullTotal,
		BearishTotal:      bearTotal,
		BullishComponents: bullComponents,
		BearishComponents: bearComponents,
		CalculatedAt:      facts.Timestamp,
	}

	// Missing-data flags are direction-independent, so read them off
	// the bullish breakdown.
	available := e.MaxTotal()
	for _, comp := range bullComponents {
		if comp.MissingData {
			available -= comp.MaxScore
			score.Warnings = append(score.Warnings, fmt.Sprintf("%s: facts unavailable, scored 0", comp.Name))
		}
	}
	score.DataCompletenessPercent = available / e.MaxTotal() * 100

	winning := math.Max(bullTotal, bearTotal)
	switch {
	case bullTotal > bearTotal:
		score.Bias = domain.DirectionUp
	case bearTotal > bullTotal:
		score.Bias = domain.DirectionDown
	default:
		score.Bias = domain.DirectionNeutral
	}
	score.Rating = ratingFor(winning)
	score.StarRating = starsFor(winning)
	score.EvaluationTimeMs = time.Since(startTime).Milliseconds()

	return score, nil
}

// scoreDirection evaluates all six components for one hypothesis and
// clips the sum into [0, MaxTotal].
func (e *DualScoreEngine) scoreDirection(direction domain.Direction, facts *MarketFacts) (float64, []domain.ComponentScore) {
	htf, htfMissing := e.scoreHTFBias(direction, facts)
	killZone := e.scoreKillZone(facts)
	pdArray, pdMissing := e.scorePDArray(direction, facts)
	liquidity, liqMissing := e.scoreLiquidity(direction, facts)
	structure, structMissing := e.scoreStructure(direction, facts)
	equilibrium, eqMissing := e.scoreEquilibrium(direction, facts)

	components := []domain.ComponentScore{
		{Name: ComponentHTFBias, Score: htf, MaxScore: e.config.MaxHTFBias, MissingData: htfMissing},
		{Name: ComponentKillZone, Score: killZone, MaxScore: e.config.MaxKillZone},
		{Name: ComponentPDArray, Score: pdArray, MaxScore: e.config.MaxPDArray, MissingData: pdMissing},
		{Name: ComponentLiquidity, Score: liquidity, MaxScore: e.config.MaxLiquidity, MissingData: liqMissing},
		{Name: ComponentStructure, Score: structure, MaxScore: e.config.MaxStructure, MissingData: structMissing},
		{Name: ComponentEquilibrium, Score: equilibrium, MaxScore: e.config.EquilibriumSpan, MissingData: eqMissing},
	}

	total := htf + killZone + pdArray + liquidity + structure + equilibrium
	total = math.Min(e.MaxTotal(), math.Max(0.0, total))
	return total, components
}

// Rating bands applied to the winning side's total.
func ratingFor(total float64) domain.BiasRating {
	switch {
	case total >= 85:
		return domain.RatingElite
	case total >= 70:
		return domain.RatingHigh
	case total >= 55:
		return domain.RatingAcceptable
	case total >= 40:
		return domain.RatingMarginal
	default:
		return domain.RatingPoor
	}
}

// starsFor maps a total to 1..5 stars, twenty points per star.
func starsFor(total float64) int {
	stars := int(math.Floor(total / 20))
	if stars < 1 {
		stars = 1
	}
	if stars > 5 {
		stars = 5
	}
	return stars
}
