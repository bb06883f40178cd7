package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JGDev1215/OpenPredict/internal/backtest"
	"github.com/JGDev1215/OpenPredict/internal/persistence/clickhouse"
	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// runBacktest replays a historical date range through the prediction
// engine and prints the accuracy summary as JSON. Artifacts land under
// the output directory keyed by run ID.
func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	fromRaw, _ := cmd.Flags().GetString("from")
	toRaw, _ := cmd.Flags().GetString("to")
	from, err := time.Parse("2006-01-02", fromRaw)
	if err != nil {
		return fmt.Errorf("parse --from: %w", err)
	}
	toDay, err := time.Parse("2006-01-02", toRaw)
	if err != nil {
		return fmt.Errorf("parse --to: %w", err)
	}
	// --to names a calendar day; cover it through 23:59:59.
	to := toDay.Add(24*time.Hour - time.Second)

	mode, _ := cmd.Flags().GetString("mode")
	sessionHour, _ := cmd.Flags().GetInt("session-hour")
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.Backtest.OutputDir
	}

	btConfig := backtest.Config{
		Instrument:             cfg.Instrument,
		TimeframeMinutes:       cfg.TimeframeMinutes,
		Mode:                   backtest.Mode(mode),
		SessionStartHour:       sessionHour,
		WarmupHours:            cfg.Backtest.WarmupHours,
		CompletenessMinPercent: cfg.Backtest.CompletenessMinPercent,
		OutputDir:              output,
	}

	metrics := telemetry.NewRegistry()
	provider, err := buildProvider(cfg, metrics)
	if err != nil {
		return err
	}

	runner, err := backtest.NewRunner(btConfig, provider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if wantArchive, _ := cmd.Flags().GetBool("archive"); wantArchive {
		if !cfg.ClickHouse.Enabled {
			return fmt.Errorf("--archive requires clickhouse.enabled in the config")
		}
		archive, err := clickhouse.NewArchive(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		defer archive.Close()
		if err := archive.InitSchema(ctx); err != nil {
			return fmt.Errorf("clickhouse schema: %w", err)
		}
		runner.SetArchive(archive)
	}

	results, err := runner.Run(ctx, from, to)
	if err != nil {
		return err
	}
	return printJSON(results.Summary)
}
