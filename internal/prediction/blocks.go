package prediction

import (
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// SegmentBlocks buckets bars into the five observable blocks of a
// period and computes each block's aggregates relative to periodOpen.
// Bars are assumed sorted by timestamp; bars outside a block's
// [start, end) window are ignored, which structurally excludes
// everything at or after the checkpoint since block five ends there.
// Blocks six and seven are never materialized.
func SegmentBlocks(bars []domain.Bar, period domain.Period, periodOpen, volatility float64, cfg *Config) []domain.Block {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	blocks := make([]domain.Block, 0, domain.ObservableBlocks)
	for n := 1; n <= domain.ObservableBlocks; n++ {
		start, end := period.BlockWindow(n)
		blocks = append(blocks, buildBlock(n, start, end, barsWithin(bars, start, end), periodOpen, volatility, cfg))
	}
	return blocks
}

func barsWithin(bars []domain.Bar, start, end time.Time) []domain.Bar {
	var out []domain.Bar
	for _, b := range bars {
		if b.Timestamp.Before(start) {
			continue
		}
		if !b.Timestamp.Before(end) {
			break
		}
		out = append(out, b)
	}
	return out
}

func buildBlock(n int, start, end time.Time, bars []domain.Bar, periodOpen, volatility float64, cfg *Config) domain.Block {
	blk := domain.Block{Number: n, Start: start, End: end}

	expected := int(end.Sub(start) / cfg.BarInterval)
	if expected < 1 {
		expected = 1
	}
	blk.BarCount = len(bars)
	blk.Coverage = float64(len(bars)) / float64(expected)
	if blk.Coverage > 1 {
		blk.Coverage = 1
	}

	// A window with zero bars stays incomplete, never fabricated.
	if len(bars) == 0 {
		return blk
	}

	blk.Open = bars[0].Open
	blk.Close = bars[len(bars)-1].Close
	blk.High = bars[0].High
	blk.Low = bars[0].Low

	above := 0
	for _, b := range bars {
		if b.High > blk.High {
			blk.High = b.High
		}
		if b.Low < blk.Low {
			blk.Low = b.Low
		}
		blk.Volume += b.Volume
		if b.Close > periodOpen {
			above++
		}
	}
	blk.TimeAboveOpen = float64(above) / float64(len(bars))
	blk.TimeBelowOpen = 1 - blk.TimeAboveOpen

	if volatility > 0 {
		blk.DeviationFromOpen = (blk.Close - periodOpen) / volatility
	}
	blk.CrossesOpen = blk.Low <= periodOpen && periodOpen <= blk.High
	blk.Complete = blk.Coverage >= cfg.MinBlockCompleteness

	return blk
}
