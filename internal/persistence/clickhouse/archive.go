// Package clickhouse archives backtest outcomes for offline analysis.
package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Config holds ClickHouse connection settings.
type Config struct {
	// DSN is a clickhouse:// URL, e.g. clickhouse://default:@localhost:9000/openpredict.
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	Enabled         bool          `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns pool settings suitable for a local ClickHouse.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		Enabled:         false,
	}
}

// Outcome is one realized prediction from a backtest run, flattened for
// the archive table.
type Outcome struct {
	RunID            string
	Instrument       string
	PeriodStart      time.Time
	TimeframeMinutes int
	Predicted        domain.Direction
	Realized         domain.Direction
	Strength         domain.Strength
	Correct          bool
	Excluded         bool
	DeviationAtLock  float64
	DataCompleteness float64
	CreatedAt        time.Time
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS backtest_outcomes (
		run_id            String,
		instrument        String,
		period_start      DateTime('UTC'),
		timeframe_minutes UInt16,
		predicted         String,
		realized          String,
		strength          String,
		correct           UInt8,
		excluded          UInt8,
		deviation_at_lock Float64,
		data_completeness Float64,
		created_at        DateTime('UTC')
	) ENGINE=MergeTree ORDER BY (run_id, instrument, period_start)`,
}

// Archive writes backtest outcomes to ClickHouse.
type Archive struct {
	db *sql.DB
}

// NewArchive opens a connection pool and verifies it with a ping.
func NewArchive(config Config) (*Archive, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("clickhouse DSN is required")
	}

	db, err := sql.Open("clickhouse", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Archive{db: db}, nil
}

// InitSchema creates the archive table if it does not exist.
func (a *Archive) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// outcomeChunkSize bounds a single multi-row INSERT.
const outcomeChunkSize = 2000

// InsertOutcomes writes a run's outcomes in multi-row batches.
func (a *Archive) InsertOutcomes(ctx context.Context, outcomes []Outcome) error {
	for start := 0; start < len(outcomes); start += outcomeChunkSize {
		end := start + outcomeChunkSize
		if end > len(outcomes) {
			end = len(outcomes)
		}
		query, args := buildOutcomeInsert(outcomes[start:end])
		if query == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert outcomes: %w", err)
		}
	}
	return nil
}

// buildOutcomeInsert assembles one multi-row VALUES insert. Rows without
// a run ID or instrument are skipped rather than failing the batch.
func buildOutcomeInsert(outcomes []Outcome) (string, []any) {
	values := make([]string, 0, len(outcomes))
	args := make([]any, 0, len(outcomes)*12)
	for _, o := range outcomes {
		if o.RunID == "" || o.Instrument == "" {
			continue
		}
		createdAt := o.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			o.RunID,
			o.Instrument,
			o.PeriodStart,
			o.TimeframeMinutes,
			o.Predicted.String(),
			o.Realized.String(),
			o.Strength.String(),
			boolToUInt8(o.Correct),
			boolToUInt8(o.Excluded),
			o.DeviationAtLock,
			o.DataCompleteness,
			createdAt,
		)
	}
	if len(values) == 0 {
		return "", nil
	}
	query := "INSERT INTO backtest_outcomes (run_id, instrument, period_start, timeframe_minutes, predicted, realized, strength, correct, excluded, deviation_at_lock, data_completeness, created_at) VALUES " + strings.Join(values, ",")
	return query, args
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// RunStats reports how a stored run scored, counting only periods that
// produced a directional call.
type RunStats struct {
	Total    int64
	Correct  int64
	Excluded int64
}

// Stats aggregates a run's archived outcomes.
func (a *Archive) Stats(ctx context.Context, runID string) (RunStats, error) {
	var stats RunStats
	query := `
		SELECT
			count() AS total,
			countIf(correct = 1 AND excluded = 0) AS correct,
			countIf(excluded = 1) AS excluded
		FROM backtest_outcomes
		WHERE run_id = ?`
	row := a.db.QueryRowContext(ctx, query, runID)
	if err := row.Scan(&stats.Total, &stats.Correct, &stats.Excluded); err != nil {
		return RunStats{}, fmt.Errorf("run stats: %w", err)
	}
	return stats, nil
}

// Health pings the pool.
func (a *Archive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
