// Package persistence defines the storage contracts for score snapshots,
// locked predictions and detected market facts. Implementations live in
// the postgres, redisstore and clickhouse subpackages.
package persistence

import (
	"context"
	"time"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// TimeRange bounds a query window. From is inclusive, To is exclusive,
// matching the half-open convention bars use everywhere else.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether ts falls inside the range.
func (tr TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(tr.From) && ts.Before(tr.To)
}

// ScoreRepo stores dual-direction score snapshots, one row per
// instrument and scoring cycle.
type ScoreRepo interface {
	// Upsert inserts or replaces the snapshot for (instrument, cycle).
	Upsert(ctx context.Context, cycleID int64, score domain.DualScore) error

	// Latest returns the most recently calculated snapshot for the
	// instrument, or nil when none exists.
	Latest(ctx context.Context, instrument string) (*domain.DualScore, error)

	// ListRange returns snapshots calculated within the range, oldest
	// first.
	ListRange(ctx context.Context, instrument string, tr TimeRange) ([]domain.DualScore, error)

	// Count returns the number of snapshots calculated within the range.
	Count(ctx context.Context, tr TimeRange) (int64, error)
}

// PredictionRepo stores locked predictions. A period's prediction is
// written exactly once: the insert is a no-op when a row already holds
// (instrument, period start, timeframe).
type PredictionRepo interface {
	// Insert stores the result. It returns false when the period was
	// already locked by an earlier cycle.
	Insert(ctx context.Context, result domain.PredictionResult) (bool, error)

	// Exists reports whether the period is already locked.
	Exists(ctx context.Context, instrument string, periodStart time.Time, timeframeMinutes int) (bool, error)

	// Latest returns the most recently locked prediction for the
	// instrument, or nil when none exists.
	Latest(ctx context.Context, instrument string) (*domain.PredictionResult, error)

	// ListRange returns predictions whose period start falls within the
	// range, oldest first.
	ListRange(ctx context.Context, instrument string, tr TimeRange) ([]domain.PredictionResult, error)
}

// FactsRepo stores the per-cycle market facts the scorers consumed, so
// scores can be audited against the exact inputs that produced them.
type FactsRepo interface {
	// ReplaceLevels replaces the instrument's current reference levels.
	ReplaceLevels(ctx context.Context, instrument string, asOf time.Time, levels []domain.ReferenceLevel) error

	// ReplacePivots replaces the instrument's current pivot sets.
	ReplacePivots(ctx context.Context, instrument string, asOf time.Time, pivots []domain.PivotSet) error

	// InsertLiquidityEvents appends newly detected events; resweeps of
	// the same level at the same minute are deduplicated.
	InsertLiquidityEvents(ctx context.Context, instrument string, events []domain.LiquidityEvent) error

	// InsertStructureBreaks appends newly detected breaks, deduplicated
	// on (timeframe, type, bar timestamp).
	InsertStructureBreaks(ctx context.Context, instrument string, breaks []domain.StructureBreak) error

	// InsertGaps appends newly detected fair value gaps, deduplicated on
	// (direction, middle-candle timestamp).
	InsertGaps(ctx context.Context, instrument string, gaps []domain.FairValueGap) error

	// UpsertBlocks writes the period's observable blocks, replacing any
	// partial rows from earlier cycles of the same period.
	UpsertBlocks(ctx context.Context, instrument string, period domain.Period, blocks []domain.Block) error
}

// Repository aggregates the storage interfaces handed to the scheduler.
type Repository struct {
	Scores      ScoreRepo
	Predictions PredictionRepo
	Facts       FactsRepo
}

// HealthCheck reports storage backend health for the monitor endpoint.
type HealthCheck struct {
	Healthy        bool      `json:"healthy"`
	Errors         []string  `json:"errors,omitempty"`
	LastCheck      time.Time `json:"last_check"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// Health is implemented by backends that can be pinged.
type Health interface {
	Health(ctx context.Context) HealthCheck
}
