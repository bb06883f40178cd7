package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

func TestScoreLiquidity_CleanHeldRaidCapsOut(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	// An Asia-low raid taken cleanly and held for 18 minutes: weight
	// 3.0, quality 1.0, hold bonus 0.20. The raw 18 points cap at 15.
	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		LiquidityEvents: []domain.LiquidityEvent{{
			Type:          domain.EventAsiaRange,
			Level:         domain.LevelAsianLow,
			Direction:     domain.DirectionUp,
			LevelPrice:    21400,
			SweepPrice:    21392,
			Quality:       domain.RaidClean,
			QualityFactor: 1.0,
			HoldMinutes:   18,
			HoldBonus:     0.20,
			Weight:        3.0,
			Timestamp:     now.Add(-30 * time.Minute),
		}},
	}

	score, missing := engine.scoreLiquidity(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.InDelta(t, 15.0, score, 1e-9)
}

func TestScoreLiquidity_WickedRaidScoresPartial(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		LiquidityEvents: []domain.LiquidityEvent{{
			Type:          domain.EventSessionHL,
			Direction:     domain.DirectionUp,
			Quality:       domain.RaidWick,
			QualityFactor: 0.8,
			Weight:        2.0,
			Timestamp:     now.Add(-time.Hour),
		}},
	}

	score, _ := engine.scoreLiquidity(domain.DirectionUp, facts)
	assert.InDelta(t, 2.0/3.0*0.8*15, score, 1e-9)
}

func TestScoreLiquidity_BestEventWins(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		LiquidityEvents: []domain.LiquidityEvent{
			{Direction: domain.DirectionUp, QualityFactor: 0.4, Weight: 1.5, Timestamp: now.Add(-10 * time.Minute)},
			{Direction: domain.DirectionUp, QualityFactor: 0.8, Weight: 2.5, Timestamp: now.Add(-90 * time.Minute)},
		},
	}

	score, _ := engine.scoreLiquidity(domain.DirectionUp, facts)
	assert.InDelta(t, 2.5/3.0*0.8*15, score, 1e-9, "the stronger raid wins even when older")
}

func TestScoreLiquidity_FiltersDirectionAndLookback(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		LiquidityEvents: []domain.LiquidityEvent{
			// Wrong direction for a bullish hypothesis.
			{Direction: domain.DirectionDown, QualityFactor: 1.0, Weight: 3.0, Timestamp: now.Add(-time.Hour)},
			// Right direction but five hours stale against a 4h window.
			{Direction: domain.DirectionUp, QualityFactor: 1.0, Weight: 3.0, Timestamp: now.Add(-5 * time.Hour)},
		},
	}

	score, missing := engine.scoreLiquidity(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.Zero(t, score)
}

func TestScoreLiquidity_MissingVersusEmpty(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	facts := &MarketFacts{Price: 21440, Timestamp: time.Now()}

	score, missing := engine.scoreLiquidity(domain.DirectionUp, facts)
	assert.True(t, missing)
	assert.Zero(t, score)

	facts.LiquidityEvents = []domain.LiquidityEvent{}
	score, missing = engine.scoreLiquidity(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.Zero(t, score)
}
