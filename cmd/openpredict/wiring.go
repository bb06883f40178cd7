package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JGDev1215/OpenPredict/internal/cache"
	"github.com/JGDev1215/OpenPredict/internal/config"
	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/levels"
	"github.com/JGDev1215/OpenPredict/internal/liquidity"
	"github.com/JGDev1215/OpenPredict/internal/providers"
	"github.com/JGDev1215/OpenPredict/internal/providers/binance"
	"github.com/JGDev1215/OpenPredict/internal/providers/yahoo"
	"github.com/JGDev1215/OpenPredict/internal/scheduler"
	"github.com/JGDev1215/OpenPredict/internal/scoring"
	"github.com/JGDev1215/OpenPredict/internal/structure"
	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// loadConfig reads the YAML file named by --config, or starts from the
// built-in defaults, then applies any per-command flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	applyOverrides(cmd.Flags(), cfg)
	return cfg, nil
}

// applyOverrides copies explicitly-set flags over the loaded config.
// Flag defaults never clobber file or environment settings.
func applyOverrides(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("instrument") {
		cfg.Instrument, _ = flags.GetString("instrument")
	}
	if flags.Changed("source") {
		cfg.Source, _ = flags.GetString("source")
	}
	if flags.Changed("timeframe") {
		cfg.TimeframeMinutes, _ = flags.GetInt("timeframe")
	}
}

// buildProvider constructs the configured market data client, fronted
// by a cache that reports hit ratios to the metrics registry.
func buildProvider(cfg *config.Config, metrics *telemetry.Registry) (providers.Provider, error) {
	store := metrics.InstrumentCache(cache.NewAuto(), cfg.Source)
	switch cfg.Source {
	case "yahoo":
		return yahoo.NewClient(cfg.Sources.Yahoo.YahooConfig(), store), nil
	case "binance":
		return binance.NewClient(cfg.Sources.Binance.BinanceConfig(), store), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want yahoo or binance)", cfg.Source)
	}
}

// buildLiveFeed returns a dial-fresh kline stream factory for sources
// with a websocket companion. Polling-only sources return nil and the
// scheduler runs on REST alone.
func buildLiveFeed(cfg *config.Config) func() scheduler.LiveFeed {
	if cfg.Source != "binance" {
		return nil
	}
	streamURL := cfg.Sources.Binance.BinanceConfig().StreamURL
	instrument := cfg.Instrument
	return func() scheduler.LiveFeed {
		return binance.NewStream(streamURL, instrument)
	}
}

// buildScorer loads the weight tables from the configured path. A
// missing or rejected file falls back to the built-in weights so the
// engine always comes up.
func buildScorer(cfg *config.Config) *scoring.DualScoreEngine {
	path := cfg.Scoring.WeightsPath
	if path == "" {
		return scoring.NewDualScoreEngine(nil)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Debug().Str("path", path).Msg("no weights file, using built-in scoring weights")
		return scoring.NewDualScoreEngine(nil)
	}

	weights, err := scoring.LoadScoreConfig(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("weights file rejected, using built-in scoring weights")
		return scoring.NewDualScoreEngine(nil)
	}
	log.Info().Str("path", path).Msg("scoring weights loaded")
	return scoring.NewDualScoreEngine(weights)
}

// collectFacts runs every detector over the bars, mirroring one daemon
// cycle without the persistence writes.
func collectFacts(instrument string, bars []domain.Bar, asOf time.Time) *scoring.MarketFacts {
	levelCalc := levels.NewCalculator(instrument)
	liquidityDet := liquidity.NewDetector(instrument, nil)
	structureDet := structure.NewDetector(instrument, nil)

	facts := &scoring.MarketFacts{
		Instrument: instrument,
		Price:      bars[len(bars)-1].Close,
		Timestamp:  asOf,
	}
	facts.Levels = levelCalc.Levels(bars, asOf)
	facts.Pivots = levelCalc.Pivots(bars, asOf)
	facts.LiquidityEvents = liquidityDet.DetectEvents(bars, facts.Levels, asOf)
	facts.Gaps = structureDet.DetectGaps(bars, asOf)
	facts.StructureBreaks = structureDet.DetectBreaks(bars, asOf)
	return facts
}

// fetchBars pulls the window from the provider and drops malformed
// bars before they reach any detector.
func fetchBars(ctx context.Context, provider providers.Provider, instrument string, from, to time.Time) ([]domain.Bar, error) {
	bars, err := provider.Bars(ctx, instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}

	valid := bars[:0:0]
	dropped := 0
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			dropped++
			continue
		}
		valid = append(valid, b)
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(valid)).Msg("invalid bars excluded")
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no usable bars between %s and %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return valid, nil
}

// printJSON writes the value to stdout, indented for humans and pipes
// alike.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
