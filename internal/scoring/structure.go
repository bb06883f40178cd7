package scoring

import (
	"math"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// scoreStructure grades the most recent break aligned with the
// hypothesis: break weight scaled by displacement conviction.
func (e *DualScoreEngine) scoreStructure(direction domain.Direction, facts *MarketFacts) (float64, bool) {
	if facts.StructureBreaks == nil {
		return 0, true
	}

	var latest *domain.StructureBreak
	for i := range facts.StructureBreaks {
		br := &facts.StructureBreaks[i]
		if br.Direction != direction {
			continue
		}
		if latest == nil || br.Timestamp.After(latest.Timestamp) {
			latest = br
		}
	}
	if latest == nil {
		return 0, false
	}

	factor := e.config.Structure.DisplacementFactor(latest.Displacement)
	score := latest.Weight / 3.0 * factor * e.config.MaxStructure
	return math.Min(score, e.config.MaxStructure), false
}
