package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

func TestScoreStructure_MajorBreakWithStrongDisplacement(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		StructureBreaks: []domain.StructureBreak{{
			Type:         domain.BreakBOS,
			Direction:    domain.DirectionUp,
			Timeframe:    "4H",
			Level:        21410,
			Displacement: domain.DisplacementStrong,
			Weight:       3.0,
			Timestamp:    now.Add(-2 * time.Hour),
		}},
	}

	score, missing := engine.scoreStructure(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.InDelta(t, 10.0, score, 1e-9, "3/3 weight at full displacement earns the whole component")
}

func TestScoreStructure_ModerateDisplacementScales(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		StructureBreaks: []domain.StructureBreak{{
			Type:         domain.BreakCHoCH,
			Direction:    domain.DirectionDown,
			Timeframe:    "1H",
			Displacement: domain.DisplacementModerate,
			Weight:       2.0,
			Timestamp:    now.Add(-time.Hour),
		}},
	}

	score, _ := engine.scoreStructure(domain.DirectionDown, facts)
	assert.InDelta(t, 2.0/3.0*0.7*10, score, 1e-9)
}

func TestScoreStructure_MostRecentBreakWins(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		StructureBreaks: []domain.StructureBreak{
			// Older but heavier: recency beats weight for structure.
			{Direction: domain.DirectionUp, Displacement: domain.DisplacementStrong, Weight: 3.0, Timestamp: now.Add(-3 * time.Hour)},
			{Direction: domain.DirectionUp, Displacement: domain.DisplacementWeak, Weight: 1.0, Timestamp: now.Add(-10 * time.Minute)},
		},
	}

	score, _ := engine.scoreStructure(domain.DirectionUp, facts)
	assert.InDelta(t, 1.0/3.0*0.4*10, score, 1e-9)
}

func TestScoreStructure_NoDisplacementScoresZero(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{
		Price:     21440,
		Timestamp: now,
		StructureBreaks: []domain.StructureBreak{{
			Direction:    domain.DirectionUp,
			Displacement: domain.DisplacementNone,
			Weight:       3.0,
			Timestamp:    now.Add(-time.Minute),
		}},
	}

	score, missing := engine.scoreStructure(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.Zero(t, score)
}

func TestScoreStructure_MissingVersusNoMatch(t *testing.T) {
	engine := NewDualScoreEngine(nil)
	now := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)

	facts := &MarketFacts{Price: 21440, Timestamp: now}
	score, missing := engine.scoreStructure(domain.DirectionUp, facts)
	assert.True(t, missing)
	assert.Zero(t, score)

	// Breaks exist but all point the other way: scored, not missing.
	facts.StructureBreaks = []domain.StructureBreak{{
		Direction:    domain.DirectionDown,
		Displacement: domain.DisplacementStrong,
		Weight:       3.0,
		Timestamp:    now,
	}}
	score, missing = engine.scoreStructure(domain.DirectionUp, facts)
	assert.False(t, missing)
	assert.Zero(t, score)
}
