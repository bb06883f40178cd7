// Package backtest replays historical bars through the prediction
// engine and scores every period's locked call against the direction
// the market actually took.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence/clickhouse"
	"github.com/JGDev1215/OpenPredict/internal/prediction"
	"github.com/JGDev1215/OpenPredict/internal/providers"
)

// analyzer is the slice of the prediction engine the runner needs.
type analyzer interface {
	AnalyzePeriod(ctx context.Context, instrument string, bars []domain.Bar, period domain.Period) (*domain.PredictionResult, error)
}

// ArchiveSink receives a run's flattened outcomes. The ClickHouse
// archive satisfies it.
type ArchiveSink interface {
	InsertOutcomes(ctx context.Context, outcomes []clickhouse.Outcome) error
}

// Runner executes a backtest over one instrument and timeframe.
type Runner struct {
	config    Config
	provider  providers.Provider
	predictor analyzer
	archive   ArchiveSink
	writer    *Writer
	now       func() time.Time
}

// NewRunner validates the config and prepares a runner with the
// production prediction engine.
func NewRunner(config Config, provider providers.Provider) (*Runner, error) {
	if config.Instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if config.TimeframeMinutes <= 0 {
		return nil, fmt.Errorf("timeframe must be positive, got %d", config.TimeframeMinutes)
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if config.Mode == "" {
		config.Mode = ModeAligned
	}
	if config.Mode != ModeAligned && config.Mode != ModeSession {
		return nil, fmt.Errorf("unknown mode %q", config.Mode)
	}
	if config.SessionStartHour < 0 || config.SessionStartHour > 23 {
		return nil, fmt.Errorf("session start hour must be 0-23, got %d", config.SessionStartHour)
	}
	if config.WarmupHours < 0 {
		return nil, fmt.Errorf("warmup hours must not be negative, got %d", config.WarmupHours)
	}
	if config.CompletenessMinPercent < 0 || config.CompletenessMinPercent > 100 {
		return nil, fmt.Errorf("completeness minimum must be 0-100, got %g", config.CompletenessMinPercent)
	}
	if config.OutputDir == "" {
		config.OutputDir = DefaultConfig().OutputDir
	}

	return &Runner{
		config:    config,
		provider:  provider,
		predictor: prediction.NewEngine(nil),
		writer:    NewWriter(config.OutputDir),
		now:       time.Now,
	}, nil
}

// SetArchive attaches an outcome archive. Nil disables archiving.
func (r *Runner) SetArchive(archive ArchiveSink) {
	r.archive = archive
}

// Run fetches bars once for the whole range, evaluates every generated
// period, writes the run artifacts and archives the outcomes.
//
// A period that cannot be evaluated is counted in the diagnostics and
// skipped; only a failed fetch or artifact write aborts the run.
func (r *Runner) Run(ctx context.Context, from, to time.Time) (*Results, error) {
	from, to = from.UTC(), to.UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("range start %s is not before end %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	runID := uuid.New().String()[:8]
	startedAt := r.now().UTC()
	warmup := time.Duration(r.config.WarmupHours) * time.Hour

	log.Info().
		Str("run_id", runID).
		Str("instrument", r.config.Instrument).
		Int("timeframe_minutes", r.config.TimeframeMinutes).
		Str("mode", string(r.config.Mode)).
		Time("from", from).
		Time("to", to).
		Str("source", r.provider.Name()).
		Msg("backtest starting")

	bars, err := r.provider.Bars(ctx, r.config.Instrument, from.Add(-warmup), to)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s between %s and %s", r.config.Instrument, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	coverage := barCoverage(bars, from, to)
	if coverage < 80 {
		log.Warn().
			Float64("coverage_percent", coverage).
			Msg("bar coverage below 80 percent, results may be incomplete")
	}

	periods := Periods(from, to, r.config)
	log.Info().
		Int("periods", len(periods)).
		Int("bars", len(bars)).
		Float64("coverage_percent", coverage).
		Msg("periods generated")

	results := &Results{
		Summary: Summary{
			RunID:            runID,
			Instrument:       r.config.Instrument,
			TimeframeMinutes: r.config.TimeframeMinutes,
			Mode:             r.config.Mode,
			From:             from,
			To:               to,
			BarCoverage:      coverage,
			StartedAt:        startedAt,
		},
	}
	diag := &results.Summary.Diagnostics
	diag.Generated = len(periods)

	for _, period := range periods {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		outcome, skip := r.evaluatePeriod(ctx, bars, period, warmup)
		switch skip {
		case skipNone:
			results.Outcomes = append(results.Outcomes, outcome)
			diag.Analyzed++
		case skipNoBars:
			diag.NoBars++
		case skipInsufficient:
			diag.Insufficient++
		case skipError:
			diag.Errors++
		}
	}

	summarize(&results.Summary, results.Outcomes)
	results.Summary.FinishedAt = r.now().UTC()

	log.Info().
		Int("generated", diag.Generated).
		Int("no_bars", diag.NoBars).
		Int("insufficient", diag.Insufficient).
		Int("errors", diag.Errors).
		Int("analyzed", diag.Analyzed).
		Msg("backtest diagnostics")
	log.Info().
		Str("run_id", runID).
		Int("decided", results.Summary.Decided).
		Int("correct", results.Summary.Correct).
		Float64("accuracy_percent", results.Summary.Accuracy).
		Msg("backtest complete")

	if r.writer != nil {
		paths, err := r.writer.WriteAll(results)
		if err != nil {
			return nil, fmt.Errorf("write artifacts: %w", err)
		}
		log.Info().Str("dir", paths.OutputDir).Msg("artifacts written")
	}

	if r.archive != nil {
		rows := ArchiveRows(runID, r.config.Instrument, results.Outcomes, results.Summary.FinishedAt)
		if err := r.archive.InsertOutcomes(ctx, rows); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("outcome archive failed")
		}
	}

	return results, nil
}

type skipReason int

const (
	skipNone skipReason = iota
	skipNoBars
	skipInsufficient
	skipError
)

// evaluatePeriod slices the period's bars out of the bulk fetch, runs
// the engine at the checkpoint, and scores the call against the full
// period's realized direction.
func (r *Runner) evaluatePeriod(ctx context.Context, bars []domain.Bar, period domain.Period, warmup time.Duration) (PeriodOutcome, skipReason) {
	periodBars := barsBetween(bars, period.Start.Add(-warmup), period.End())
	if len(periodBars) == 0 {
		return PeriodOutcome{}, skipNoBars
	}

	inPeriod := barsBetween(periodBars, period.Start, period.End())
	completeness := float64(len(inPeriod)) / float64(period.TimeframeMinutes)
	if completeness*100 < r.config.CompletenessMinPercent {
		return PeriodOutcome{}, skipInsufficient
	}

	result, err := r.predictor.AnalyzePeriod(ctx, r.config.Instrument, periodBars, period)
	if err != nil {
		log.Warn().Err(err).Str("period", period.String()).Msg("period analysis failed")
		return PeriodOutcome{}, skipError
	}

	realized := aggregate(inPeriod)
	direction := realized.direction()

	return PeriodOutcome{
		Period:           period,
		Predicted:        result.Direction,
		Strength:         result.Strength,
		PeriodOpen:       result.PeriodOpen,
		ActualClose:      realized.Close,
		Realized:         direction,
		Correct:          result.Direction == direction && direction != domain.DirectionNeutral,
		Excluded:         direction == domain.DirectionNeutral,
		DeviationAtLock:  result.FinalDeviation,
		DataCompleteness: completeness,
		InsufficientData: result.InsufficientData,
		Warnings:         result.Warnings,
	}, skipNone
}

// barsBetween filters to timestamps in [from, to).
func barsBetween(bars []domain.Bar, from, to time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Timestamp.Before(from) && b.Timestamp.Before(to) {
			out = append(out, b)
		}
	}
	return out
}

// barCoverage reports bars inside [from, to) as a percentage of the
// one-minute bars the range should contain. Warmup bars sit outside
// the range and do not inflate it.
func barCoverage(bars []domain.Bar, from, to time.Time) float64 {
	expected := to.Sub(from).Minutes()
	if expected <= 0 {
		return 0
	}
	inRange := 0
	for _, b := range bars {
		if !b.Timestamp.Before(from) && b.Timestamp.Before(to) {
			inRange++
		}
	}
	return float64(inRange) / expected * 100
}

// periodOHLC is the whole period collapsed to one candle.
type periodOHLC struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// aggregate folds the period's bars into one candle, scanning
// timestamps so unordered input cannot flip the open and close.
func aggregate(bars []domain.Bar) periodOHLC {
	first, last := bars[0], bars[0]
	agg := periodOHLC{High: bars[0].High, Low: bars[0].Low}
	for _, b := range bars {
		if b.Timestamp.Before(first.Timestamp) {
			first = b
		}
		if b.Timestamp.After(last.Timestamp) {
			last = b
		}
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
	}
	agg.Open, agg.Close = first.Open, last.Close
	return agg
}

func (o periodOHLC) direction() domain.Direction {
	switch {
	case o.Close > o.Open:
		return domain.DirectionUp
	case o.Close < o.Open:
		return domain.DirectionDown
	default:
		return domain.DirectionNeutral
	}
}

// ArchiveRows flattens a run's outcomes for the ClickHouse archive.
func ArchiveRows(runID, instrument string, outcomes []PeriodOutcome, at time.Time) []clickhouse.Outcome {
	rows := make([]clickhouse.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, clickhouse.Outcome{
			RunID:            runID,
			Instrument:       instrument,
			PeriodStart:      o.Period.Start,
			TimeframeMinutes: o.Period.TimeframeMinutes,
			Predicted:        o.Predicted,
			Realized:         o.Realized,
			Strength:         o.Strength,
			Correct:          o.Correct,
			Excluded:         o.Excluded,
			DeviationAtLock:  o.DeviationAtLock,
			DataCompleteness: o.DataCompleteness,
			CreatedAt:        at,
		})
	}
	return rows
}
