// Package postgres implements the persistence interfaces on PostgreSQL
// via sqlx, with per-call context timeouts and natural-key conflict
// targets doing the dedup work.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/persistence"
)

// Config holds database connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout" json:"query_timeout"`
	Enabled         bool          `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns reasonable defaults for database connections.
// Persistence stays off until a DSN is explicitly configured.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false,
	}
}

// Manager owns the connection pool and the repository set built on it.
type Manager struct {
	db     *sqlx.DB
	config Config
	repos  *persistence.Repository
	health *healthChecker
}

// NewManager opens the pool, verifies connectivity and wires the repos.
// A disabled config yields a manager with a nil repository, which the
// scheduler treats as "keep results in memory only".
func NewManager(config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{
			config: config,
			health: &healthChecker{enabled: false},
		}, nil
	}

	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repos := &persistence.Repository{
		Scores:      NewScoreRepo(db, config.QueryTimeout),
		Predictions: NewPredictionRepo(db, config.QueryTimeout),
		Facts:       NewFactsRepo(db, config.QueryTimeout),
	}

	log.Info().
		Int("max_open_conns", config.MaxOpenConns).
		Dur("query_timeout", config.QueryTimeout).
		Msg("postgres persistence connected")

	return &Manager{
		db:     db,
		config: config,
		repos:  repos,
		health: &healthChecker{enabled: true, db: db, timeout: config.QueryTimeout},
	}, nil
}

// Repository returns the repository set, or nil when persistence is
// disabled.
func (m *Manager) Repository() *persistence.Repository {
	return m.repos
}

// Health returns the backend health checker.
func (m *Manager) Health() persistence.Health {
	return m.health
}

// DB exposes the pool for schema initialization.
func (m *Manager) DB() *sqlx.DB {
	return m.db
}

// IsEnabled reports whether writes will reach the database.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	check := persistence.HealthCheck{LastCheck: time.Now().UTC()}

	if !h.enabled {
		check.Healthy = true
		check.Errors = []string{"persistence disabled"}
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		check.Healthy = false
		check.Errors = []string{fmt.Sprintf("ping failed: %v", err)}
	} else {
		check.Healthy = true
	}
	check.ResponseTimeMS = time.Since(start).Milliseconds()

	return check
}
