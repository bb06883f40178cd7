package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
)

// factsRepo implements FactsRepo for PostgreSQL. Levels and pivots are
// point-in-time replacements; events, breaks and gaps are append-only
// with natural-key dedup; blocks are upserts keyed by period.
type factsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFactsRepo creates a PostgreSQL market-facts repository.
func NewFactsRepo(db *sqlx.DB, timeout time.Duration) persistence.FactsRepo {
	return &factsRepo{
		db:      db,
		timeout: timeout,
	}
}

// ReplaceLevels replaces the instrument's current reference levels.
// Levels the calculator could not derive this cycle disappear rather
// than lingering stale.
func (r *factsRepo) ReplaceLevels(ctx context.Context, instrument string, asOf time.Time, levels []domain.ReferenceLevel) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin levels transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reference_levels WHERE instrument = $1`, instrument); err != nil {
		return fmt.Errorf("failed to clear reference levels: %w", err)
	}

	query := `
		INSERT INTO reference_levels (instrument, level_type, value, as_of)
		VALUES ($1, $2, $3, $4)`
	for _, level := range levels {
		if _, err := tx.ExecContext(ctx, query, instrument, string(level.Type), level.Value, asOf); err != nil {
			return fmt.Errorf("failed to insert reference level %s: %w", level.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reference levels: %w", err)
	}

	return nil
}

// ReplacePivots replaces the instrument's current pivot sets.
func (r *factsRepo) ReplacePivots(ctx context.Context, instrument string, asOf time.Time, pivots []domain.PivotSet) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin pivots transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pivot_sets WHERE instrument = $1`, instrument); err != nil {
		return fmt.Errorf("failed to clear pivot sets: %w", err)
	}

	query := `
		INSERT INTO pivot_sets (instrument, timeframe, pivot, r1, r2, r3, s1, s2, s3, as_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, p := range pivots {
		if _, err := tx.ExecContext(ctx, query, instrument, p.Timeframe,
			p.Pivot, p.R1, p.R2, p.R3, p.S1, p.S2, p.S3, asOf); err != nil {
			return fmt.Errorf("failed to insert %s pivots: %w", p.Timeframe, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pivot sets: %w", err)
	}

	return nil
}

// InsertLiquidityEvents appends newly detected events. A resweep of the
// same level at the same minute is the same event and is skipped.
func (r *factsRepo) InsertLiquidityEvents(ctx context.Context, instrument string, events []domain.LiquidityEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO liquidity_events
		(instrument, event_type, level_type, direction, level_price, sweep_price,
		 quality, quality_factor, hold_minutes, hold_bonus, weight, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (instrument, level_type, ts) DO NOTHING`

	for _, e := range events {
		if _, err := r.db.ExecContext(ctx, query, instrument,
			string(e.Type), string(e.Level), e.Direction.String(),
			e.LevelPrice, e.SweepPrice, string(e.Quality), e.QualityFactor,
			e.HoldMinutes, e.HoldBonus, e.Weight, e.Timestamp); err != nil {
			return fmt.Errorf("failed to insert liquidity event: %w", err)
		}
	}

	return nil
}

// InsertStructureBreaks appends newly detected breaks.
func (r *factsRepo) InsertStructureBreaks(ctx context.Context, instrument string, breaks []domain.StructureBreak) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO structure_breaks
		(instrument, break_type, direction, timeframe, level, displacement, weight, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument, timeframe, break_type, ts) DO NOTHING`

	for _, b := range breaks {
		if _, err := r.db.ExecContext(ctx, query, instrument,
			string(b.Type), b.Direction.String(), b.Timeframe, b.Level,
			string(b.Displacement), b.Weight, b.Timestamp); err != nil {
			return fmt.Errorf("failed to insert structure break: %w", err)
		}
	}

	return nil
}

// InsertGaps appends newly detected fair value gaps.
func (r *factsRepo) InsertGaps(ctx context.Context, instrument string, gaps []domain.FairValueGap) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO fair_value_gaps (instrument, direction, top, bottom, size, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instrument, direction, ts) DO NOTHING`

	for _, g := range gaps {
		if _, err := r.db.ExecContext(ctx, query, instrument,
			g.Direction.String(), g.Top, g.Bottom, g.Size, g.Timestamp); err != nil {
			return fmt.Errorf("failed to insert fair value gap: %w", err)
		}
	}

	return nil
}

// UpsertBlocks writes the period's observable blocks. Later cycles of
// the same period replace the earlier, more partial rows.
func (r *factsRepo) UpsertBlocks(ctx context.Context, instrument string, period domain.Period, blocks []domain.Block) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin blocks transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO period_blocks (instrument, period_start, timeframe_minutes, block_number, block)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (instrument, period_start, timeframe_minutes, block_number) DO UPDATE SET
			block = EXCLUDED.block`

	for _, b := range blocks {
		blockJSON, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal block %d: %w", b.Number, err)
		}
		if _, err := tx.ExecContext(ctx, query, instrument,
			period.Start, period.TimeframeMinutes, b.Number, blockJSON); err != nil {
			return fmt.Errorf("failed to upsert block %d: %w", b.Number, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit period blocks: %w", err)
	}

	return nil
}
