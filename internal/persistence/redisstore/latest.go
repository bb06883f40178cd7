// Package redisstore keeps the most recent score snapshot and locked
// prediction per instrument in Redis so interactive surfaces can read
// them without touching Postgres.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
)

const (
	scoreKeyFormat      = "openpredict:latest:score:%s"
	predictionKeyFormat = "openpredict:latest:prediction:%s"
)

// Config holds Redis connection settings for the latest-snapshot store.
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns settings suitable for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		TTL:          10 * time.Minute,
		Enabled:      false,
	}
}

// Store writes and reads per-instrument latest snapshots. Values expire
// after the configured TTL, so a stalled scheduler reads as absent
// rather than serving hours-old data as current.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore dials Redis and verifies the connection with a ping.
func NewStore(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Store{client: client, ttl: config.TTL}, nil
}

// SetLatestScore replaces the instrument's current score snapshot.
func (s *Store) SetLatestScore(ctx context.Context, score domain.DualScore) error {
	if score.Instrument == "" {
		return fmt.Errorf("score snapshot missing instrument")
	}
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("failed to marshal score snapshot: %w", err)
	}
	key := fmt.Sprintf(scoreKeyFormat, score.Instrument)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// LatestScore returns the instrument's current score snapshot. The bool
// reports whether one was present; expiry and absence look the same.
func (s *Store) LatestScore(ctx context.Context, instrument string) (*domain.DualScore, bool, error) {
	key := fmt.Sprintf(scoreKeyFormat, instrument)
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var score domain.DualScore
	if err := json.Unmarshal([]byte(val), &score); err != nil {
		return nil, false, fmt.Errorf("failed to decode score snapshot: %w", err)
	}
	return &score, true, nil
}

// SetLatestPrediction replaces the instrument's current locked prediction.
func (s *Store) SetLatestPrediction(ctx context.Context, result domain.PredictionResult) error {
	if result.Instrument == "" {
		return fmt.Errorf("prediction missing instrument")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}
	key := fmt.Sprintf(predictionKeyFormat, result.Instrument)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// LatestPrediction returns the instrument's current locked prediction.
func (s *Store) LatestPrediction(ctx context.Context, instrument string) (*domain.PredictionResult, bool, error) {
	key := fmt.Sprintf(predictionKeyFormat, instrument)
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var result domain.PredictionResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode prediction: %w", err)
	}
	return &result, true, nil
}

// Health pings Redis and reports round-trip status.
func (s *Store) Health(ctx context.Context) persistence.HealthCheck {
	check := persistence.HealthCheck{LastCheck: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		check.Errors = []string{fmt.Sprintf("ping failed: %v", err)}
		return check
	}
	check.Healthy = true
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
