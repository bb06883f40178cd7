// Package config loads the application configuration from YAML with
// defaulted fields and construction-time validation. Scoring weight
// tables load separately through internal/scoring so a bad weights file
// cannot take the whole process down with it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/JGDev1215/OpenPredict/internal/events"
	"github.com/JGDev1215/OpenPredict/internal/persistence/clickhouse"
	"github.com/JGDev1215/OpenPredict/internal/persistence/postgres"
	"github.com/JGDev1215/OpenPredict/internal/persistence/redisstore"
	"github.com/JGDev1215/OpenPredict/internal/providers/binance"
	"github.com/JGDev1215/OpenPredict/internal/providers/yahoo"
)

var validate = validator.New()

// Config is the application configuration.
type Config struct {
	Instrument       string `yaml:"instrument" default:"NQ=F" validate:"required"`
	TimeframeMinutes int    `yaml:"timeframe_minutes" default:"120" validate:"oneof=120 240"`
	Source           string `yaml:"source" default:"yahoo" validate:"oneof=yahoo binance"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sources   SourcesConfig   `yaml:"sources"`
	Server    ServerConfig    `yaml:"server"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Backtest  BacktestConfig  `yaml:"backtest"`

	Database   postgres.Config   `yaml:"database"`
	Redis      redisstore.Config `yaml:"redis"`
	Kafka      events.Config     `yaml:"kafka"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
}

// SchedulerConfig controls the live analysis cycle.
type SchedulerConfig struct {
	Interval       time.Duration `yaml:"interval" default:"60s" validate:"gt=0"`
	CycleWarnAfter time.Duration `yaml:"cycle_warn_after" default:"8s" validate:"gt=0"`
	// LookbackHours bounds the bar window fetched each cycle. Two days
	// covers daily opens, the previous day's range, the Asian session
	// and enough 4H bars for swing detection; longer-horizon levels
	// simply report absent.
	LookbackHours int `yaml:"lookback_hours" default:"48" validate:"gte=2,lte=168"`
}

// SourcesConfig holds per-provider client settings.
type SourcesConfig struct {
	Yahoo   SourceConfig `yaml:"yahoo"`
	Binance SourceConfig `yaml:"binance"`
}

// SourceConfig is the shared shape of a provider client section. Empty
// URL fields fall through to each client's built-in endpoints.
type SourceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	StreamURL      string        `yaml:"stream_url"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"15s" validate:"gt=0"`
	RetryAttempts  int           `yaml:"retry_attempts" default:"3" validate:"gte=1,lte=10"`
	RetryDelay     time.Duration `yaml:"retry_delay" default:"2s"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" default:"10s"`
	CacheTTL       time.Duration `yaml:"cache_ttl" default:"30s"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" default:"5"`
	RateLimitBurst int           `yaml:"rate_limit_burst" default:"10"`
}

// YahooConfig maps the section onto the yahoo client.
func (s SourceConfig) YahooConfig() yahoo.Config {
	return yahoo.Config{
		BaseURL:        s.BaseURL,
		RequestTimeout: s.RequestTimeout,
		RetryAttempts:  s.RetryAttempts,
		RetryDelay:     s.RetryDelay,
		RetryMaxDelay:  s.RetryMaxDelay,
		CacheTTL:       s.CacheTTL,
		RateLimitRPS:   s.RateLimitRPS,
		RateLimitBurst: s.RateLimitBurst,
	}
}

// BinanceConfig maps the section onto the binance client.
func (s SourceConfig) BinanceConfig() binance.Config {
	return binance.Config{
		BaseURL:        s.BaseURL,
		StreamURL:      s.StreamURL,
		RequestTimeout: s.RequestTimeout,
		RetryAttempts:  s.RetryAttempts,
		RetryDelay:     s.RetryDelay,
		RetryMaxDelay:  s.RetryMaxDelay,
		CacheTTL:       s.CacheTTL,
		RateLimitRPS:   s.RateLimitRPS,
		RateLimitBurst: s.RateLimitBurst,
	}
}

// ServerConfig controls the monitor HTTP server.
type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr" default:":8090"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
}

// ScoringConfig points at the weight-table file.
type ScoringConfig struct {
	WeightsPath string `yaml:"weights_path" default:"config/scoring.yaml"`
}

// BacktestConfig holds backtester defaults; the CLI can override all of
// them per run.
type BacktestConfig struct {
	CompletenessMinPercent float64 `yaml:"completeness_min_percent" default:"5" validate:"gte=0,lte=100"`
	WarmupHours            int     `yaml:"warmup_hours" default:"1" validate:"gte=0"`
	OutputDir              string  `yaml:"output_dir" default:"out/backtest"`
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	cfg := &Config{
		Database:   postgres.DefaultConfig(),
		Redis:      redisstore.DefaultConfig(),
		Kafka:      events.DefaultConfig(),
		ClickHouse: clickhouse.DefaultConfig(),
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return cfg, nil
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Database:   postgres.DefaultConfig(),
		Redis:      redisstore.DefaultConfig(),
		Kafka:      events.DefaultConfig(),
		ClickHouse: clickhouse.DefaultConfig(),
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments inject endpoints and credentials
// without editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENPREDICT_INSTRUMENT"); v != "" {
		cfg.Instrument = v
	}
	if v := os.Getenv("OPENPREDICT_SOURCE"); v != "" {
		cfg.Source = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.ClickHouse.DSN = v
	}
}
