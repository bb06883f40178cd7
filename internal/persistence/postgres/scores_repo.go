package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
)

// scoreRepo implements ScoreRepo for PostgreSQL.
type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoreRepo creates a PostgreSQL score snapshot repository.
func NewScoreRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoreRepo {
	return &scoreRepo{
		db:      db,
		timeout: timeout,
	}
}

const scoreColumns = `instrument, cycle_id, price, bullish_total, bearish_total, bias, rating,
	       star_rating, data_completeness, bullish_components, bearish_components,
	       warnings, calculated_at, evaluation_time_ms`

// Upsert inserts or replaces the snapshot for (instrument, cycle).
func (r *scoreRepo) Upsert(ctx context.Context, cycleID int64, score domain.DualScore) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if score.Instrument == "" {
		return fmt.Errorf("score snapshot missing instrument")
	}

	bullJSON, err := json.Marshal(score.BullishComponents)
	if err != nil {
		return fmt.Errorf("failed to marshal bullish components: %w", err)
	}
	bearJSON, err := json.Marshal(score.BearishComponents)
	if err != nil {
		return fmt.Errorf("failed to marshal bearish components: %w", err)
	}
	warningsJSON, err := json.Marshal(score.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		INSERT INTO score_snapshots
		(instrument, cycle_id, price, bullish_total, bearish_total, bias, rating,
		 star_rating, data_completeness, bullish_components, bearish_components,
		 warnings, calculated_at, evaluation_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (instrument, cycle_id) DO UPDATE SET
			price = EXCLUDED.price,
			bullish_total = EXCLUDED.bullish_total,
			bearish_total = EXCLUDED.bearish_total,
			bias = EXCLUDED.bias,
			rating = EXCLUDED.rating,
			star_rating = EXCLUDED.star_rating,
			data_completeness = EXCLUDED.data_completeness,
			bullish_components = EXCLUDED.bullish_components,
			bearish_components = EXCLUDED.bearish_components,
			warnings = EXCLUDED.warnings,
			calculated_at = EXCLUDED.calculated_at,
			evaluation_time_ms = EXCLUDED.evaluation_time_ms`

	_, err = r.db.ExecContext(ctx, query,
		score.Instrument, cycleID, score.Price, score.BullishTotal, score.BearishTotal,
		score.Bias.String(), score.Rating.String(), score.StarRating,
		score.DataCompletenessPercent, bullJSON, bearJSON, warningsJSON,
		score.CalculatedAt, score.EvaluationTimeMs)
	if err != nil {
		return fmt.Errorf("failed to upsert score snapshot: %w", err)
	}

	return nil
}

// Latest returns the most recently calculated snapshot for the instrument.
func (r *scoreRepo) Latest(ctx context.Context, instrument string) (*domain.DualScore, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + scoreColumns + `
		FROM score_snapshots
		WHERE instrument = $1
		ORDER BY calculated_at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, instrument)
	score, err := scanScore(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest score: %w", err)
	}

	return score, nil
}

// ListRange returns snapshots calculated within [From, To), oldest first.
func (r *scoreRepo) ListRange(ctx context.Context, instrument string, tr persistence.TimeRange) ([]domain.DualScore, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + scoreColumns + `
		FROM score_snapshots
		WHERE instrument = $1 AND calculated_at >= $2 AND calculated_at < $3
		ORDER BY calculated_at ASC`

	rows, err := r.db.QueryxContext(ctx, query, instrument, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query score range: %w", err)
	}
	defer rows.Close()

	var scores []domain.DualScore
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		scores = append(scores, *score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score rows: %w", err)
	}

	return scores, nil
}

// Count returns the number of snapshots calculated within [From, To).
func (r *scoreRepo) Count(ctx context.Context, tr persistence.TimeRange) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	query := `SELECT COUNT(*) FROM score_snapshots WHERE calculated_at >= $1 AND calculated_at < $2`
	if err := r.db.QueryRowxContext(ctx, query, tr.From, tr.To).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count score snapshots: %w", err)
	}

	return count, nil
}

// rowScanner covers both *sqlx.Row and *sqlx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*domain.DualScore, error) {
	var (
		score        domain.DualScore
		cycleID      int64
		bias, rating string
		bullJSON     []byte
		bearJSON     []byte
		warningsJSON []byte
	)

	err := row.Scan(
		&score.Instrument, &cycleID, &score.Price, &score.BullishTotal,
		&score.BearishTotal, &bias, &rating, &score.StarRating,
		&score.DataCompletenessPercent, &bullJSON, &bearJSON, &warningsJSON,
		&score.CalculatedAt, &score.EvaluationTimeMs)
	if err != nil {
		return nil, err
	}

	if score.Bias, err = domain.ParseDirection(bias); err != nil {
		return nil, fmt.Errorf("failed to parse bias: %w", err)
	}
	if score.Rating, err = domain.ParseBiasRating(rating); err != nil {
		return nil, fmt.Errorf("failed to parse rating: %w", err)
	}
	if err := json.Unmarshal(bullJSON, &score.BullishComponents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bullish components: %w", err)
	}
	if err := json.Unmarshal(bearJSON, &score.BearishComponents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bearish components: %w", err)
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &score.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}

	return &score, nil
}
