// Package events publishes cycle results to Kafka for downstream
// consumers. Messages are JSON snapshots keyed by instrument so a
// partitioned topic keeps each instrument's history in order.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Config holds Kafka producer settings.
type Config struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	ScoreTopic      string        `yaml:"score_topic" json:"score_topic"`
	PredictionTopic string        `yaml:"prediction_topic" json:"prediction_topic"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	Compression     string        `yaml:"compression" json:"compression"`
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	Enabled         bool          `yaml:"enabled" json:"enabled"`
}

// DefaultConfig returns producer settings tuned for a local broker.
func DefaultConfig() Config {
	return Config{
		ScoreTopic:      "openpredict.scores",
		PredictionTopic: "openpredict.predictions",
		RequiredAcks:    -1,
		Compression:     "gzip",
		MaxAttempts:     3,
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     10 * time.Second,
		BatchSize:       100,
		BatchTimeout:    time.Second,
		Enabled:         false,
	}
}

// Publisher writes score and prediction snapshots to their topics.
type Publisher struct {
	writer          *kafka.Writer
	scoreTopic      string
	predictionTopic string
}

// NewPublisher builds a hash-partitioned writer. Keying by instrument
// pins each instrument to one partition, so consumers see its snapshots
// in publish order.
func NewPublisher(config Config) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		Compression:  parseCompression(config.Compression),
		MaxAttempts:  config.MaxAttempts,
		WriteTimeout: config.WriteTimeout,
		ReadTimeout:  config.ReadTimeout,
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
	}

	return &Publisher{
		writer:          writer,
		scoreTopic:      config.ScoreTopic,
		predictionTopic: config.PredictionTopic,
	}, nil
}

// PublishScore sends a score snapshot to the score topic.
func (p *Publisher) PublishScore(ctx context.Context, score domain.DualScore) error {
	msg, err := buildMessage(p.scoreTopic, score.Instrument, score)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// PublishPrediction sends a locked prediction to the prediction topic.
func (p *Publisher) PublishPrediction(ctx context.Context, result domain.PredictionResult) error {
	msg, err := buildMessage(p.predictionTopic, result.Instrument, result)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func buildMessage(topic, key string, value any) (kafka.Message, error) {
	if key == "" {
		return kafka.Message{}, fmt.Errorf("message key is required")
	}

	var v []byte
	switch val := value.(type) {
	case []byte:
		v = val
	case string:
		v = []byte(val)
	default:
		var err error
		v, err = json.Marshal(value)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("marshal value: %w", err)
		}
	}

	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: v,
		Time:  time.Now(),
	}, nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
