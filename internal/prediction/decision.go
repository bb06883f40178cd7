package prediction

import (
	"math"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Deviation bands shared by the classifier and the resolver. Magnitudes
// exactly on a boundary take the stronger branch.
const (
	NeutralBand = 0.5
	StrongBand  = 2.0
)

// crossedOpenPenalty halves early conviction when price fought across
// the open during blocks one or two. Fixed, not configurable.
const crossedOpenPenalty = 0.5

// ClassifyEarlyBias reads the provisional direction off block two's
// deviation from the period open. Conviction is halved when either of
// the first two blocks crossed the open.
func ClassifyEarlyBias(block1, block2 domain.Block) domain.EarlyBias {
	d := block2.DeviationFromOpen
	mag := math.Abs(d)

	if mag < NeutralBand {
		return domain.EarlyBias{Direction: domain.DirectionNeutral, Strength: mag}
	}

	bias := domain.EarlyBias{Strength: mag}
	if d > 0 {
		bias.Direction = domain.DirectionUp
	} else {
		bias.Direction = domain.DirectionDown
	}
	if block1.CrossesOpen || block2.CrossesOpen {
		bias.Strength *= crossedOpenPenalty
		bias.Halved = true
	}
	return bias
}

// MajorityTimeAgainst is the fraction of closes a block must spend on
// the wrong side of the open to qualify as counter-trend.
const MajorityTimeAgainst = 0.5

// DetectCounterTrend scans blocks three through five in order and
// returns the first block that both closed against the early bias and
// spent at least half its closes on the wrong side of the open. The
// scan stops on the first match. A neutral bias has no counter-trend.
func DetectCounterTrend(bias domain.EarlyBias, blocks []domain.Block, periodOpen float64) domain.CounterSignal {
	if bias.Direction == domain.DirectionNeutral {
		return domain.CounterSignal{}
	}

	for _, blk := range blocks {
		if blk.Number < 3 || blk.Number > domain.ObservableBlocks {
			continue
		}
		switch bias.Direction {
		case domain.DirectionUp:
			if blk.Close < periodOpen && blk.TimeBelowOpen >= MajorityTimeAgainst {
				return domain.CounterSignal{Detected: true, Direction: domain.DirectionDown, BlockNumber: blk.Number, TimeAgainst: blk.TimeBelowOpen}
			}
		case domain.DirectionDown:
			if blk.Close > periodOpen && blk.TimeAboveOpen >= MajorityTimeAgainst {
				return domain.CounterSignal{Detected: true, Direction: domain.DirectionUp, BlockNumber: blk.Number, TimeAgainst: blk.TimeAboveOpen}
			}
		}
	}
	return domain.CounterSignal{}
}

// continuationConviction is the early-bias strength needed for a
// moderate continuation call when the final deviation stays under the
// strong band.
const continuationConviction = 1.0

// Resolve folds the early bias, the counter-trend scan and the
// checkpoint deviation k (block five's deviation from open) into the
// final call. Every branch of the decision tree is spelled out here so
// each is independently testable.
func Resolve(bias domain.EarlyBias, counter domain.CounterSignal, k float64) (domain.Direction, domain.Strength) {
	mag := math.Abs(k)

	if counter.Detected {
		// A confirmed counter flips the call; k grades conviction.
		switch {
		case mag < NeutralBand:
			return domain.DirectionNeutral, domain.StrengthWeak
		case mag < StrongBand:
			return counter.Direction, domain.StrengthModerate
		default:
			return counter.Direction, domain.StrengthStrong
		}
	}

	if bias.Direction == domain.DirectionNeutral {
		// No early lean: block five speaks for itself.
		if mag < NeutralBand {
			return domain.DirectionNeutral, domain.StrengthWeak
		}
		dir := domain.DirectionUp
		if k < 0 {
			dir = domain.DirectionDown
		}
		if mag < StrongBand {
			return dir, domain.StrengthModerate
		}
		return dir, domain.StrengthStrong
	}

	// Continuation: the early bias holds.
	switch {
	case mag >= StrongBand:
		return bias.Direction, domain.StrengthStrong
	case bias.Strength >= continuationConviction:
		return bias.Direction, domain.StrengthModerate
	default:
		return bias.Direction, domain.StrengthWeak
	}
}
