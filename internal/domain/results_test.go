package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirection_JSONRoundTrip(t *testing.T) {
	for _, d := range []Direction{DirectionUp, DirectionDown, DirectionNeutral} {
		raw, err := json.Marshal(d)
		require.NoError(t, err)

		var back Direction
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, d, back)
	}

	// Provider vocabulary maps onto the same enum.
	d, err := ParseDirection("bullish")
	require.NoError(t, err)
	assert.Equal(t, DirectionUp, d)

	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}

func TestDirection_Opposite(t *testing.T) {
	assert.Equal(t, DirectionDown, DirectionUp.Opposite())
	assert.Equal(t, DirectionUp, DirectionDown.Opposite())
	assert.Equal(t, DirectionNeutral, DirectionNeutral.Opposite())
}

func TestBiasRating_Ordering(t *testing.T) {
	// Ratings order from POOR upward so comparisons read naturally.
	assert.True(t, RatingElite > RatingHigh)
	assert.True(t, RatingHigh > RatingAcceptable)
	assert.True(t, RatingAcceptable > RatingMarginal)
	assert.True(t, RatingMarginal > RatingPoor)
}

func TestDualScore_JSONWireFormat(t *testing.T) {
	score := DualScore{
		Instrument:   "NQ=F",
		BullishTotal: 72.5,
		BearishTotal: 31.0,
		Bias:         DirectionUp,
		Rating:       RatingHigh,
		StarRating:   3,
	}

	raw, err := json.Marshal(score)
	require.NoError(t, err)

	// Enums travel as strings, not integers.
	assert.Contains(t, string(raw), `"bias":"UP"`)
	assert.Contains(t, string(raw), `"rating":"HIGH"`)

	var back DualScore
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, score.Bias, back.Bias)
	assert.Equal(t, score.Rating, back.Rating)
}
