package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements create the eight tables: two result tables and the
// six market-fact tables the scorers read from. All are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS score_snapshots (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		cycle_id BIGINT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		bullish_total DOUBLE PRECISION NOT NULL,
		bearish_total DOUBLE PRECISION NOT NULL,
		bias TEXT NOT NULL,
		rating TEXT NOT NULL,
		star_rating INT NOT NULL,
		data_completeness DOUBLE PRECISION NOT NULL,
		bullish_components JSONB NOT NULL,
		bearish_components JSONB NOT NULL,
		warnings JSONB,
		calculated_at TIMESTAMPTZ NOT NULL,
		evaluation_time_ms BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (instrument, cycle_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_score_snapshots_latest
		ON score_snapshots (instrument, calculated_at DESC)`,

	`CREATE TABLE IF NOT EXISTS predictions (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		timeframe_minutes INT NOT NULL,
		direction TEXT NOT NULL,
		strength TEXT NOT NULL,
		period_open DOUBLE PRECISION NOT NULL,
		volatility DOUBLE PRECISION NOT NULL,
		final_deviation DOUBLE PRECISION NOT NULL,
		insufficient_data BOOLEAN NOT NULL,
		blocks JSONB NOT NULL,
		early_bias JSONB NOT NULL,
		counter JSONB NOT NULL,
		warnings JSONB,
		locked_at TIMESTAMPTZ NOT NULL,
		evaluation_time_ms BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (instrument, period_start, timeframe_minutes)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_latest
		ON predictions (instrument, locked_at DESC)`,

	`CREATE TABLE IF NOT EXISTS reference_levels (
		instrument TEXT NOT NULL,
		level_type TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		as_of TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (instrument, level_type)
	)`,

	`CREATE TABLE IF NOT EXISTS pivot_sets (
		instrument TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		pivot DOUBLE PRECISION NOT NULL,
		r1 DOUBLE PRECISION NOT NULL,
		r2 DOUBLE PRECISION NOT NULL,
		r3 DOUBLE PRECISION NOT NULL,
		s1 DOUBLE PRECISION NOT NULL,
		s2 DOUBLE PRECISION NOT NULL,
		s3 DOUBLE PRECISION NOT NULL,
		as_of TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (instrument, timeframe)
	)`,

	`CREATE TABLE IF NOT EXISTS liquidity_events (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		event_type TEXT NOT NULL,
		level_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		level_price DOUBLE PRECISION NOT NULL,
		sweep_price DOUBLE PRECISION NOT NULL,
		quality TEXT NOT NULL,
		quality_factor DOUBLE PRECISION NOT NULL,
		hold_minutes INT NOT NULL,
		hold_bonus DOUBLE PRECISION NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		UNIQUE (instrument, level_type, ts)
	)`,

	`CREATE TABLE IF NOT EXISTS structure_breaks (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		break_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		level DOUBLE PRECISION NOT NULL,
		displacement TEXT NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		UNIQUE (instrument, timeframe, break_type, ts)
	)`,

	`CREATE TABLE IF NOT EXISTS fair_value_gaps (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL,
		top DOUBLE PRECISION NOT NULL,
		bottom DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		UNIQUE (instrument, direction, ts)
	)`,

	`CREATE TABLE IF NOT EXISTS period_blocks (
		instrument TEXT NOT NULL,
		period_start TIMESTAMPTZ NOT NULL,
		timeframe_minutes INT NOT NULL,
		block_number INT NOT NULL,
		block JSONB NOT NULL,
		PRIMARY KEY (instrument, period_start, timeframe_minutes, block_number)
	)`,
}

// InitSchema creates any missing tables and indexes.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}
