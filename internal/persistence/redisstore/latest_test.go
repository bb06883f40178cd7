package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

func newMockStore() (*Store, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return &Store{client: db, ttl: time.Minute}, mock
}

func storedScore() domain.DualScore {
	return domain.DualScore{
		Instrument:   "NQ=F",
		Price:        21440.5,
		BullishTotal: 62.5,
		BearishTotal: 38.0,
		Bias:         domain.DirectionUp,
		Rating:       domain.RatingAcceptable,
		StarRating:   3,
		CalculatedAt: time.Date(2025, 6, 3, 14, 30, 0, 0, time.UTC),
	}
}

func TestStore_ScoreRoundTrip(t *testing.T) {
	store, mock := newMockStore()
	ctx := context.Background()

	want := storedScore()
	data, err := json.Marshal(want)
	require.NoError(t, err)

	key := "openpredict:latest:score:NQ=F"
	mock.ExpectSet(key, data, time.Minute).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(data))

	require.NoError(t, store.SetLatestScore(ctx, want))

	got, found, err := store.LatestScore(ctx, "NQ=F")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, &want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestScoreMiss(t *testing.T) {
	store, mock := newMockStore()

	mock.ExpectGet("openpredict:latest:score:ES=F").RedisNil()

	got, found, err := store.LatestScore(context.Background(), "ES=F")
	require.NoError(t, err, "a missing key is not an error")
	assert.False(t, found)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestScoreError(t *testing.T) {
	store, mock := newMockStore()

	mock.ExpectGet("openpredict:latest:score:NQ=F").SetErr(redis.TxFailedErr)

	_, found, err := store.LatestScore(context.Background(), "NQ=F")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get")
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SetLatestScoreRejectsMissingInstrument(t *testing.T) {
	store, mock := newMockStore()

	err := store.SetLatestScore(context.Background(), domain.DualScore{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing instrument")
	assert.NoError(t, mock.ExpectationsWereMet(), "invalid snapshots never reach redis")
}

func TestStore_SetLatestScoreError(t *testing.T) {
	store, mock := newMockStore()

	want := storedScore()
	data, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectSet("openpredict:latest:score:NQ=F", data, time.Minute).SetErr(redis.TxFailedErr)

	err = store.SetLatestScore(context.Background(), want)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PredictionRoundTrip(t *testing.T) {
	store, mock := newMockStore()
	ctx := context.Background()

	want := domain.PredictionResult{
		Instrument: "BTCUSDT",
		Period: domain.Period{
			Start:            time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC),
			TimeframeMinutes: 120,
		},
		Direction:  domain.DirectionDown,
		Strength:   domain.StrengthStrong,
		PeriodOpen: 67000,
		Volatility: 180,
		LockedAt:   time.Date(2025, 6, 3, 15, 40, 0, 0, time.UTC),
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)

	key := "openpredict:latest:prediction:BTCUSDT"
	mock.ExpectSet(key, data, time.Minute).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(data))

	require.NoError(t, store.SetLatestPrediction(ctx, want))

	got, found, err := store.LatestPrediction(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, &want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LatestPredictionMiss(t *testing.T) {
	store, mock := newMockStore()

	mock.ExpectGet("openpredict:latest:prediction:NQ=F").RedisNil()

	got, found, err := store.LatestPrediction(context.Background(), "NQ=F")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CorruptPayloadSurfaced(t *testing.T) {
	store, mock := newMockStore()

	mock.ExpectGet("openpredict:latest:score:NQ=F").SetVal("{not json")

	_, _, err := store.LatestScore(context.Background(), "NQ=F")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode score snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultConfig_Redis(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, 10*time.Minute, config.TTL)
	assert.False(t, config.Enabled, "the latest store is opt-in")
}
