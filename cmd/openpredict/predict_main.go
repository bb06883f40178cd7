package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/prediction"
	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// runPredict analyzes the period covering --at and prints the call. A
// period only becomes analyzable at its checkpoint, so before that the
// previous period is used instead.
func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	at := time.Now().UTC()
	if raw, _ := cmd.Flags().GetString("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		at = parsed.UTC()
	}

	period := domain.PeriodAt(at, cfg.TimeframeMinutes)
	if at.Before(period.Checkpoint()) {
		log.Info().
			Str("period", period.String()).
			Time("checkpoint", period.Checkpoint()).
			Msg("checkpoint not reached, analyzing previous period")
		period = domain.PeriodAt(period.Start.Add(-time.Nanosecond), cfg.TimeframeMinutes)
	}

	ctx := context.Background()
	metrics := telemetry.NewRegistry()
	provider, err := buildProvider(cfg, metrics)
	if err != nil {
		return err
	}

	// One hour of pre-period context keeps the deviation anchor and
	// early blocks meaningful at the period boundary.
	bars, err := fetchBars(ctx, provider, cfg.Instrument, period.Start.Add(-time.Hour), period.Checkpoint())
	if err != nil {
		return err
	}

	result, err := prediction.NewEngine(nil).AnalyzePeriod(ctx, cfg.Instrument, bars, period)
	if err != nil {
		return fmt.Errorf("analyze period: %w", err)
	}
	if result.InsufficientData {
		log.Warn().Str("period", period.String()).Msg("partial observable window, treat the call with caution")
	}
	return printJSON(result)
}
