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

// predictionRepo implements PredictionRepo for PostgreSQL.
type predictionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPredictionRepo creates a PostgreSQL prediction repository.
func NewPredictionRepo(db *sqlx.DB, timeout time.Duration) persistence.PredictionRepo {
	return &predictionRepo{
		db:      db,
		timeout: timeout,
	}
}

const predictionColumns = `instrument, period_start, timeframe_minutes, direction, strength,
	       period_open, volatility, final_deviation, insufficient_data, blocks,
	       early_bias, counter, warnings, locked_at, evaluation_time_ms`

// Insert stores the locked result once per period. The conflict target
// (instrument, period_start, timeframe_minutes) is the lock: a second
// insert for the same period affects zero rows and returns false.
func (r *predictionRepo) Insert(ctx context.Context, result domain.PredictionResult) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if result.Instrument == "" {
		return false, fmt.Errorf("prediction missing instrument")
	}
	if result.Period.TimeframeMinutes <= 0 {
		return false, fmt.Errorf("prediction has invalid timeframe: %d", result.Period.TimeframeMinutes)
	}

	blocksJSON, err := json.Marshal(result.Blocks)
	if err != nil {
		return false, fmt.Errorf("failed to marshal blocks: %w", err)
	}
	biasJSON, err := json.Marshal(result.EarlyBias)
	if err != nil {
		return false, fmt.Errorf("failed to marshal early bias: %w", err)
	}
	counterJSON, err := json.Marshal(result.Counter)
	if err != nil {
		return false, fmt.Errorf("failed to marshal counter signal: %w", err)
	}
	warningsJSON, err := json.Marshal(result.Warnings)
	if err != nil {
		return false, fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		INSERT INTO predictions
		(instrument, period_start, timeframe_minutes, direction, strength,
		 period_open, volatility, final_deviation, insufficient_data, blocks,
		 early_bias, counter, warnings, locked_at, evaluation_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (instrument, period_start, timeframe_minutes) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		result.Instrument, result.Period.Start, result.Period.TimeframeMinutes,
		result.Direction.String(), result.Strength.String(),
		result.PeriodOpen, result.Volatility, result.FinalDeviation,
		result.InsufficientData, blocksJSON, biasJSON, counterJSON, warningsJSON,
		result.LockedAt, result.EvaluationTimeMs)
	if err != nil {
		return false, fmt.Errorf("failed to insert prediction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

// Exists reports whether the period is already locked.
func (r *predictionRepo) Exists(ctx context.Context, instrument string, periodStart time.Time, timeframeMinutes int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM predictions
			WHERE instrument = $1 AND period_start = $2 AND timeframe_minutes = $3
		)`

	if err := r.db.QueryRowxContext(ctx, query, instrument, periodStart, timeframeMinutes).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check prediction existence: %w", err)
	}

	return exists, nil
}

// Latest returns the most recently locked prediction for the instrument.
func (r *predictionRepo) Latest(ctx context.Context, instrument string) (*domain.PredictionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE instrument = $1
		ORDER BY locked_at DESC
		LIMIT 1`

	row := r.db.QueryRowxContext(ctx, query, instrument)
	result, err := scanPrediction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest prediction: %w", err)
	}

	return result, nil
}

// ListRange returns predictions whose period start falls within
// [From, To), oldest first.
func (r *predictionRepo) ListRange(ctx context.Context, instrument string, tr persistence.TimeRange) ([]domain.PredictionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE instrument = $1 AND period_start >= $2 AND period_start < $3
		ORDER BY period_start ASC`

	rows, err := r.db.QueryxContext(ctx, query, instrument, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction range: %w", err)
	}
	defer rows.Close()

	var results []domain.PredictionResult
	for rows.Next() {
		result, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction row: %w", err)
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prediction rows: %w", err)
	}

	return results, nil
}

func scanPrediction(row rowScanner) (*domain.PredictionResult, error) {
	var (
		result              domain.PredictionResult
		direction, strength string
		blocksJSON          []byte
		biasJSON            []byte
		counterJSON         []byte
		warningsJSON        []byte
	)

	err := row.Scan(
		&result.Instrument, &result.Period.Start, &result.Period.TimeframeMinutes,
		&direction, &strength, &result.PeriodOpen, &result.Volatility,
		&result.FinalDeviation, &result.InsufficientData, &blocksJSON,
		&biasJSON, &counterJSON, &warningsJSON,
		&result.LockedAt, &result.EvaluationTimeMs)
	if err != nil {
		return nil, err
	}

	if result.Direction, err = domain.ParseDirection(direction); err != nil {
		return nil, fmt.Errorf("failed to parse direction: %w", err)
	}
	if result.Strength, err = domain.ParseStrength(strength); err != nil {
		return nil, fmt.Errorf("failed to parse strength: %w", err)
	}
	if err := json.Unmarshal(blocksJSON, &result.Blocks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal blocks: %w", err)
	}
	if err := json.Unmarshal(biasJSON, &result.EarlyBias); err != nil {
		return nil, fmt.Errorf("failed to unmarshal early bias: %w", err)
	}
	if err := json.Unmarshal(counterJSON, &result.Counter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counter signal: %w", err)
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &result.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}

	return &result, nil
}
