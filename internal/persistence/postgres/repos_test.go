package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func sampleScore() domain.DualScore {
	return domain.DualScore{
		Instrument:   "NQ=F",
		Price:        21440.5,
		BullishTotal: 62.5,
		BearishTotal: 38.0,
		BullishComponents: []domain.ComponentScore{
			{Name: "htf_bias", Score: 18.5, MaxScore: 30},
			{Name: "killzone", Score: 16.0, MaxScore: 20},
		},
		BearishComponents: []domain.ComponentScore{
			{Name: "htf_bias", Score: -18.5, MaxScore: 30},
			{Name: "killzone", Score: 16.0, MaxScore: 20},
		},
		Bias:                    domain.DirectionUp,
		Rating:                  domain.RatingAcceptable,
		StarRating:              3,
		DataCompletenessPercent: 100,
		CalculatedAt:            time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC),
		EvaluationTimeMs:        4,
	}
}

func TestScoreRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScoreRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO score_snapshots").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Upsert(context.Background(), 42, sampleScore()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepo_UpsertRejectsMissingInstrument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScoreRepo(db, time.Second)

	score := sampleScore()
	score.Instrument = ""

	err := repo.Upsert(context.Background(), 1, score)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing instrument")
	assert.NoError(t, mock.ExpectationsWereMet(), "invalid snapshots never reach the database")
}

func TestScoreRepo_LatestRoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScoreRepo(db, time.Second)

	want := sampleScore()
	bullJSON, _ := json.Marshal(want.BullishComponents)
	bearJSON, _ := json.Marshal(want.BearishComponents)

	columns := []string{
		"instrument", "cycle_id", "price", "bullish_total", "bearish_total",
		"bias", "rating", "star_rating", "data_completeness",
		"bullish_components", "bearish_components", "warnings",
		"calculated_at", "evaluation_time_ms",
	}
	mock.ExpectQuery("FROM score_snapshots").
		WithArgs("NQ=F").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			want.Instrument, int64(42), want.Price, want.BullishTotal, want.BearishTotal,
			"UP", "ACCEPTABLE", want.StarRating, want.DataCompletenessPercent,
			bullJSON, bearJSON, []byte(nil), want.CalculatedAt, want.EvaluationTimeMs,
		))

	got, err := repo.Latest(context.Background(), "NQ=F")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Instrument, got.Instrument)
	assert.Equal(t, domain.DirectionUp, got.Bias)
	assert.Equal(t, domain.RatingAcceptable, got.Rating)
	assert.Equal(t, want.BullishComponents, got.BullishComponents)
	assert.Equal(t, want.CalculatedAt, got.CalculatedAt.UTC())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepo_LatestEmptyTable(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScoreRepo(db, time.Second)

	mock.ExpectQuery("FROM score_snapshots").
		WithArgs("NQ=F").
		WillReturnRows(sqlmock.NewRows([]string{"instrument"}))

	got, err := repo.Latest(context.Background(), "NQ=F")
	require.NoError(t, err, "an empty table is not an error")
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func samplePrediction() domain.PredictionResult {
	start := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	return domain.PredictionResult{
		Instrument:     "NQ=F",
		Period:         domain.Period{Start: start, TimeframeMinutes: 120},
		Direction:      domain.DirectionUp,
		Strength:       domain.StrengthModerate,
		PeriodOpen:     21400,
		Volatility:     25,
		FinalDeviation: 1.4,
		Blocks: []domain.Block{
			{Number: 1, Complete: true, DeviationFromOpen: 0.4},
			{Number: 2, Complete: true, DeviationFromOpen: 1.12},
		},
		EarlyBias: domain.EarlyBias{Direction: domain.DirectionUp, Strength: 1.12},
		Counter:   domain.CounterSignal{Detected: false},
		LockedAt:  start.Add(100 * time.Minute),
	}
}

func TestPredictionRepo_InsertLocksOnce(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPredictionRepo(db, time.Second)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO predictions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	inserted, err := repo.Insert(ctx, samplePrediction())
	require.NoError(t, err)
	assert.True(t, inserted)

	// The second write hits ON CONFLICT DO NOTHING and affects no rows.
	mock.ExpectExec("INSERT INTO predictions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err = repo.Insert(ctx, samplePrediction())
	require.NoError(t, err)
	assert.False(t, inserted, "a locked period must not be overwritten")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPredictionRepo_InsertRejectsInvalidTimeframe(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPredictionRepo(db, time.Second)

	result := samplePrediction()
	result.Period.TimeframeMinutes = 0

	_, err := repo.Insert(context.Background(), result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeframe")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPredictionRepo_Exists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPredictionRepo(db, time.Second)

	start := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("NQ=F", start, 120).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "NQ=F", start, 120)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPredictionRepo_LatestRoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPredictionRepo(db, time.Second)

	want := samplePrediction()
	blocksJSON, _ := json.Marshal(want.Blocks)
	biasJSON, _ := json.Marshal(want.EarlyBias)
	counterJSON, _ := json.Marshal(want.Counter)

	columns := []string{
		"instrument", "period_start", "timeframe_minutes", "direction", "strength",
		"period_open", "volatility", "final_deviation", "insufficient_data",
		"blocks", "early_bias", "counter", "warnings", "locked_at", "evaluation_time_ms",
	}
	mock.ExpectQuery("FROM predictions").
		WithArgs("NQ=F").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			want.Instrument, want.Period.Start, want.Period.TimeframeMinutes,
			"UP", "MODERATE", want.PeriodOpen, want.Volatility, want.FinalDeviation,
			false, blocksJSON, biasJSON, counterJSON, []byte(nil),
			want.LockedAt, int64(0),
		))

	got, err := repo.Latest(context.Background(), "NQ=F")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.DirectionUp, got.Direction)
	assert.Equal(t, domain.StrengthModerate, got.Strength)
	assert.Equal(t, want.Period, domain.Period{
		Start:            got.Period.Start.UTC(),
		TimeframeMinutes: got.Period.TimeframeMinutes,
	})
	assert.Equal(t, want.Blocks, got.Blocks)
	assert.Equal(t, want.EarlyBias, got.EarlyBias)
	assert.False(t, got.Counter.Detected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactsRepo_ReplaceLevelsIsTransactional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFactsRepo(db, time.Second)

	asOf := time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC)
	levels := []domain.ReferenceLevel{
		{Type: domain.LevelWeeklyOpen, Value: 21350},
		{Type: domain.LevelDailyOpen, Value: 21410},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reference_levels").
		WithArgs("NQ=F").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO reference_levels").
		WithArgs("NQ=F", "WEEKLY_OPEN", 21350.0, asOf).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reference_levels").
		WithArgs("NQ=F", "DAILY_OPEN", 21410.0, asOf).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceLevels(context.Background(), "NQ=F", asOf, levels))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactsRepo_InsertLiquidityEvents(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFactsRepo(db, time.Second)

	events := []domain.LiquidityEvent{{
		Type:          domain.EventAsiaRange,
		Level:         domain.LevelAsianLow,
		Direction:     domain.DirectionUp,
		LevelPrice:    21380,
		SweepPrice:    21378.5,
		Quality:       domain.RaidClean,
		QualityFactor: 1.0,
		HoldMinutes:   18,
		HoldBonus:     0.20,
		Weight:        3.0,
		Timestamp:     time.Date(2025, 6, 3, 13, 42, 0, 0, time.UTC),
	}}

	mock.ExpectExec("INSERT INTO liquidity_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertLiquidityEvents(context.Background(), "NQ=F", events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFactsRepo_UpsertBlocks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFactsRepo(db, time.Second)

	period := domain.Period{
		Start:            time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC),
		TimeframeMinutes: 120,
	}
	blocks := []domain.Block{
		{Number: 1, Complete: true},
		{Number: 2, Complete: true},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO period_blocks").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO period_blocks").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertBlocks(context.Background(), "NQ=F", period, blocks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	for range schemaStatements {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, InitSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestManager_Disabled(t *testing.T) {
	manager, err := NewManager(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, manager.IsEnabled())
	assert.Nil(t, manager.Repository())
	require.NoError(t, manager.Close())

	check := manager.Health().Health(context.Background())
	assert.True(t, check.Healthy)
	require.NotEmpty(t, check.Errors)
	assert.Contains(t, check.Errors[0], "disabled")
}

func TestManager_EnabledRequiresDSN(t *testing.T) {
	_, err := NewManager(Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 10, config.MaxOpenConns)
	assert.Equal(t, 5, config.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, config.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, config.QueryTimeout)
	assert.False(t, config.Enabled, "persistence is opt-in")
}

func TestTimeRangeContains(t *testing.T) {
	tr := persistence.TimeRange{
		From: time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 3, 16, 0, 0, 0, time.UTC),
	}

	assert.True(t, tr.Contains(tr.From), "From is inclusive")
	assert.True(t, tr.Contains(tr.From.Add(time.Hour)))
	assert.False(t, tr.Contains(tr.To), "To is exclusive")
	assert.False(t, tr.Contains(tr.From.Add(-time.Minute)))
}
