package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// runScore fetches the lookback window once, runs the detectors and
// prints the dual-direction score as JSON.
func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	metrics := telemetry.NewRegistry()
	provider, err := buildProvider(cfg, metrics)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	from := now.Add(-time.Duration(cfg.Scheduler.LookbackHours) * time.Hour)
	log.Info().
		Str("instrument", cfg.Instrument).
		Str("source", provider.Name()).
		Time("from", from).
		Time("to", now).
		Msg("scoring snapshot")

	bars, err := fetchBars(ctx, provider, cfg.Instrument, from, now)
	if err != nil {
		return err
	}

	facts := collectFacts(cfg.Instrument, bars, now)
	score, err := buildScorer(cfg).CalculateDualScore(ctx, facts)
	if err != nil {
		return fmt.Errorf("calculate score: %w", err)
	}
	return printJSON(score)
}
