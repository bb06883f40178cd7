package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

func equilibriumFacts(price float64, levels []domain.ReferenceLevel) *MarketFacts {
	return &MarketFacts{
		Price:     price,
		Timestamp: time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC),
		Levels:    levels,
	}
}

func TestScoreEquilibrium_BroadAgreementIsSymmetric(t *testing.T) {
	engine := NewDualScoreEngine(nil)

	// Price above daily, NY and H4 opens (6.5 of 8.5 weight) and below
	// monthly and H1. Bullish ratio 0.76 earns the full bonus, bearish
	// ratio 0.24 pays the full penalty.
	facts := equilibriumFacts(21440, []domain.ReferenceLevel{
		{Type: domain.LevelMonthlyOpen, Value: 21500},
		{Type: domain.LevelDailyOpen, Value: 21400},
		{Type: domain.LevelNYOpen, Value: 21430},
		{Type: domain.LevelH4Open, Value: 21435},
		{Type: domain.LevelH1Open, Value: 21445},
	})

	up, missing := engine.scoreEquilibrium(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.InDelta(t, 5.0, up, 1e-9)

	down, _ := engine.scoreEquilibrium(domain.DirectionDown, facts)
	assert.InDelta(t, -5.0, down, 1e-9)
}

func TestScoreEquilibrium_BandEdges(t *testing.T) {
	// Two opens with hand-picked weights make the edge ratios exact.
	config := DefaultScoreConfig()
	config.Equilibrium = EquilibriumConfig{MonthlyWeight: 3.0, DailyWeight: 7.0}
	engine := NewDualScoreEngine(config)

	// Daily agrees, monthly does not: ratio exactly 0.70 stays in the
	// good band, not the strong one.
	facts := equilibriumFacts(21440, []domain.ReferenceLevel{
		{Type: domain.LevelMonthlyOpen, Value: 21500},
		{Type: domain.LevelDailyOpen, Value: 21400},
	})
	score, _ := engine.scoreEquilibrium(domain.DirectionUp, facts)
	assert.InDelta(t, 2.5, score, 1e-9)

	// Same facts read bearishly: ratio exactly 0.30 is a half penalty,
	// not a full one.
	score, _ = engine.scoreEquilibrium(domain.DirectionDown, facts)
	assert.InDelta(t, -2.5, score, 1e-9)
}

func TestScoreEquilibrium_MiddleBandIsFlat(t *testing.T) {
	config := DefaultScoreConfig()
	config.Equilibrium = EquilibriumConfig{MonthlyWeight: 4.0, DailyWeight: 6.0}
	engine := NewDualScoreEngine(config)

	// Only the monthly open agrees: ratio 0.40 lands on the flat band.
	facts := equilibriumFacts(21440, []domain.ReferenceLevel{
		{Type: domain.LevelMonthlyOpen, Value: 21400},
		{Type: domain.LevelDailyOpen, Value: 21500},
	})
	score, missing := engine.scoreEquilibrium(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.Zero(t, score)
}

func TestScoreEquilibrium_AtLevelCountsAgainst(t *testing.T) {
	config := DefaultScoreConfig()
	config.Equilibrium = EquilibriumConfig{DailyWeight: 1.0}
	engine := NewDualScoreEngine(config)

	facts := equilibriumFacts(21440, []domain.ReferenceLevel{
		{Type: domain.LevelDailyOpen, Value: 21440},
	})
	score, _ := engine.scoreEquilibrium(domain.DirectionUp, facts)
	assert.InDelta(t, -5.0, score, 1e-9, "sitting exactly on the open is not agreement")
}

func TestScoreEquilibrium_NoSecondaryOpens(t *testing.T) {
	engine := NewDualScoreEngine(nil)

	// Levels were computed but none of them are opens the bonus reads:
	// scored zero without a missing-data flag.
	facts := equilibriumFacts(21440, []domain.ReferenceLevel{
		{Type: domain.LevelAsianHigh, Value: 21460},
		{Type: domain.LevelAsianLow, Value: 21400},
	})
	score, missing := engine.scoreEquilibrium(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.Zero(t, score)
}

func TestScoreEquilibrium_MissingLevels(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	facts := equilibriumFacts(21440, nil)

	score, missing := engine.scoreEquilibrium(domain.DirectionUp, facts)
	assert.True(t, missing)
	assert.Zero(t, score)
}
