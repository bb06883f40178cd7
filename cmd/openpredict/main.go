package main

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const version = "v1.0.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "openpredict",
		Short:   "Dual-direction market prediction engine",
		Version: version,
		Long: `OpenPredict scores UP and DOWN pressure from detected market facts
(reference levels, pivots, liquidity sweeps, structure breaks and fair
value gaps) and locks one directional prediction per period at the
five-sevenths checkpoint.

Run 'openpredict run' for the scheduled daemon, or use the one-shot
commands for a single snapshot.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setLogLevel(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (defaults apply when omitted)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score the market once and print the snapshot",
		Long:  "Fetches the lookback window, runs every fact detector and prints the dual-direction score as JSON",
		RunE:  runScore,
	}

	predictCmd := &cobra.Command{
		Use:   "predict",
		Short: "Analyze one prediction period and print the call",
		Long:  "Analyzes the period covering --at once its checkpoint has passed, falling back to the previous period otherwise",
		RunE:  runPredict,
	}

	predictCmd.Flags().String("at", "", "Analysis time in RFC3339 (default: now)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduled prediction daemon",
		Long:  "Runs fetch/detect/score cycles on the configured interval, locking one prediction per period, with optional persistence and the monitor HTTP server",
		RunE:  runDaemon,
	}

	runCmd.Flags().Duration("interval", 0, "Cycle interval override (e.g. 30s, 5m)")

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical periods and measure accuracy",
		Long:  "Replays every prediction period in a date range through the engine, compares calls against realized direction and writes CSV/JSON/report artifacts",
		RunE:  runBacktest,
	}

	backtestCmd.Flags().String("from", "", "Start date, YYYY-MM-DD (required)")
	backtestCmd.Flags().String("to", "", "End date inclusive, YYYY-MM-DD (required)")
	backtestCmd.Flags().String("mode", "aligned", "Period generation mode (aligned|session)")
	backtestCmd.Flags().Int("session-hour", 10, "UTC start hour for session mode")
	backtestCmd.Flags().String("output", "", "Artifact directory (default from config)")
	backtestCmd.Flags().Bool("archive", false, "Archive outcomes to ClickHouse")
	_ = backtestCmd.MarkFlagRequired("from")
	_ = backtestCmd.MarkFlagRequired("to")

	// Common overrides for every command that touches market data.
	for _, cmd := range []*cobra.Command{scoreCmd, predictCmd, runCmd, backtestCmd} {
		cmd.Flags().String("instrument", "NQ=F", "Instrument symbol")
		cmd.Flags().String("source", "yahoo", "Market data source (yahoo|binance)")
		cmd.Flags().Int("timeframe", 120, "Prediction timeframe in minutes (120|240)")
	}

	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backtestCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setLogLevel(cmd *cobra.Command) error {
	raw, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}
