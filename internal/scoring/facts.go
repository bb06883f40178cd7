package scoring

import (
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Component names as they appear in score breakdowns and metrics.
const (
	ComponentHTFBias     = "htf_bias"
	ComponentKillZone    = "kill_zone"
	ComponentPDArray     = "pd_array"
	ComponentLiquidity   = "liquidity"
	ComponentStructure   = "structure"
	ComponentEquilibrium = "equilibrium"
)

// MarketFacts is the immutable snapshot one scoring pass consumes. The
// engine never reaches past it.
//
// Nil slices mean the collaborator that produces that fact family was
// unavailable, which degrades the dependent component and lowers data
// completeness. Empty non-nil slices mean the collaborator ran and
// found nothing, which is ordinary market reality and scores zero
// without any degradation flag.
type MarketFacts struct {
	Instrument string    `json:"instrument"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`

	Levels          []domain.ReferenceLevel `json:"levels,omitempty"`
	Pivots          []domain.PivotSet       `json:"pivots,omitempty"`
	LiquidityEvents []domain.LiquidityEvent `json:"liquidity_events,omitempty"`
	StructureBreaks []domain.StructureBreak `json:"structure_breaks,omitempty"`
	Gaps            []domain.FairValueGap   `json:"fair_value_gaps,omitempty"`
}
