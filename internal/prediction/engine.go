package prediction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Config controls how raw bars map onto period blocks.
type Config struct {
	BarInterval          time.Duration // expected spacing between bars
	MinBlockCompleteness float64       // fraction of expected bars a block needs to count as complete
}

// DefaultConfig returns the production defaults: one-minute bars and a
// five percent completeness floor.
func DefaultConfig() *Config {
	return &Config{
		BarInterval:          time.Minute,
		MinBlockCompleteness: 0.05,
	}
}

// Engine turns an immutable bar snapshot into a locked prediction for
// one period. It is stateless and safe for concurrent use; each call
// works on its own copy of the input.
type Engine struct {
	config *Config
}

// NewEngine creates a prediction engine. A nil config uses defaults.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// AnalyzePeriod produces the prediction for one period from a bar
// snapshot. Bars at or after the 5/7 checkpoint are discarded here,
// inside the engine, regardless of what the caller passed in. With
// fewer than five complete blocks the result degrades to NEUTRAL/weak
// with InsufficientData set instead of extrapolating.
func (e *Engine) AnalyzePeriod(ctx context.Context, instrument string, bars []domain.Bar, period domain.Period) (*domain.PredictionResult, error) {
	startTime := time.Now()

	if len(bars) == 0 {
		return nil, domain.InsufficientData("no bars supplied").
			WithField("instrument", instrument).
			WithField("period", period.String())
	}

	// Work on a sorted copy; the caller's snapshot is never mutated.
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Hard cutoff: nothing at or after the checkpoint may influence
	// the prediction.
	checkpoint := period.Checkpoint()
	observable := make([]domain.Bar, 0, len(sorted))
	for _, b := range sorted {
		if !b.Timestamp.Before(period.Start) && b.Timestamp.Before(checkpoint) {
			observable = append(observable, b)
		}
	}
	if len(observable) == 0 {
		return nil, domain.InsufficientData("no bars inside observable window").
			WithField("instrument", instrument).
			WithField("period", period.String())
	}

	var warnings []string
	valid := make([]domain.Bar, 0, len(observable))
	for _, b := range observable {
		if err := b.Validate(); err != nil {
			warnings = append(warnings, fmt.Sprintf("excluded bar %s: %v", b.Timestamp.UTC().Format(time.RFC3339), err))
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		return nil, domain.InsufficientData("all observable bars invalid").
			WithField("instrument", instrument).
			WithField("period", period.String()).
			WithField("excluded", len(observable))
	}

	periodOpen := valid[0].Open

	closes := make([]float64, len(valid))
	for i, b := range valid {
		closes[i] = b.Close
	}
	volatility, err := EstimateVolatility(closes, periodOpen)
	if err != nil {
		return nil, err
	}

	blocks := SegmentBlocks(valid, period, periodOpen, volatility, e.config)

	result := &domain.PredictionResult{
		Instrument: instrument,
		Period:     period,
		PeriodOpen: periodOpen,
		Volatility: volatility,
		Blocks:     blocks,
		LockedAt:   checkpoint,
		Warnings:   warnings,
	}

	complete := 0
	for _, blk := range blocks {
		if blk.Complete {
			complete++
		}
	}
	if complete < domain.ObservableBlocks {
		result.Direction = domain.DirectionNeutral
		result.Strength = domain.StrengthWeak
		result.InsufficientData = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("only %d of %d blocks complete", complete, domain.ObservableBlocks))
		result.EvaluationTimeMs = time.Since(startTime).Milliseconds()
		return result, nil
	}

	bias := ClassifyEarlyBias(blocks[0], blocks[1])
	counter := DetectCounterTrend(bias, blocks, periodOpen)
	k := blocks[domain.ObservableBlocks-1].DeviationFromOpen

	direction, strength := Resolve(bias, counter, k)

	result.Direction = direction
	result.Strength = strength
	result.EarlyBias = bias
	result.Counter = counter
	result.FinalDeviation = k
	result.EvaluationTimeMs = time.Since(startTime).Milliseconds()

	return result, nil
}
