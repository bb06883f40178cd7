package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/JGDev1215/OpenPredict/internal/events"
	monitorhttp "github.com/JGDev1215/OpenPredict/internal/interfaces/http"
	"github.com/JGDev1215/OpenPredict/internal/levels"
	"github.com/JGDev1215/OpenPredict/internal/liquidity"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
	"github.com/JGDev1215/OpenPredict/internal/persistence/postgres"
	"github.com/JGDev1215/OpenPredict/internal/persistence/redisstore"
	"github.com/JGDev1215/OpenPredict/internal/prediction"
	"github.com/JGDev1215/OpenPredict/internal/providers"
	"github.com/JGDev1215/OpenPredict/internal/scheduler"
	"github.com/JGDev1215/OpenPredict/internal/structure"
	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// runDaemon wires the full pipeline and runs scheduled cycles until a
// signal arrives. Postgres, redis, kafka and the monitor server are
// each optional; the scheduler degrades to in-memory operation when
// they are disabled.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Scheduler.Interval, _ = cmd.Flags().GetDuration("interval")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewRegistry()
	provider, err := buildProvider(cfg, metrics)
	if err != nil {
		return err
	}

	deps := scheduler.Deps{
		Provider:  provider,
		Live:      buildLiveFeed(cfg),
		Levels:    levels.NewCalculator(cfg.Instrument),
		Liquidity: liquidity.NewDetector(cfg.Instrument, nil),
		Structure: structure.NewDetector(cfg.Instrument, nil),
		Scorer:    buildScorer(cfg),
		Predictor: prediction.NewEngine(nil),
		Metrics:   metrics,
	}

	storage := map[string]persistence.Health{}

	manager, err := postgres.NewManager(cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer manager.Close()
	storage["postgres"] = manager.Health()
	if manager.IsEnabled() {
		if err := postgres.InitSchema(ctx, manager.DB()); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		deps.Repo = manager.Repository()
	}

	var latest *redisstore.Store
	if cfg.Redis.Enabled {
		latest, err = redisstore.NewStore(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer latest.Close()
		deps.Latest = latest
		storage["redis"] = latest
	}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewPublisher(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer publisher.Close()
		deps.Publisher = publisher
	}

	sched, err := scheduler.NewScheduler(scheduler.Config{
		Instrument:       cfg.Instrument,
		TimeframeMinutes: cfg.TimeframeMinutes,
		Interval:         cfg.Scheduler.Interval,
		CycleWarnAfter:   cfg.Scheduler.CycleWarnAfter,
		Lookback:         time.Duration(cfg.Scheduler.LookbackHours) * time.Hour,
	}, deps)
	if err != nil {
		return err
	}

	log.Info().
		Str("instrument", cfg.Instrument).
		Int("timeframe_minutes", cfg.TimeframeMinutes).
		Str("source", provider.Name()).
		Dur("interval", cfg.Scheduler.Interval).
		Bool("live_stream", deps.Live != nil).
		Bool("postgres", manager.IsEnabled()).
		Bool("redis", cfg.Redis.Enabled).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("monitor", cfg.Server.Enabled).
		Msg("daemon starting")

	schedErr := make(chan error, 1)
	go func() { schedErr <- sched.Start(ctx) }()

	var server *monitorhttp.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		serverConfig := monitorhttp.DefaultServerConfig()
		serverConfig.Addr = cfg.Server.Addr
		serverConfig.ReadTimeout = cfg.Server.ReadTimeout
		serverConfig.WriteTimeout = cfg.Server.WriteTimeout

		serverDeps := monitorhttp.Deps{
			Providers: []providers.Provider{provider},
			Storage:   storage,
			Metrics:   metrics,
			Version:   version,
		}
		if latest != nil {
			serverDeps.Latest = latest
		}

		server = monitorhttp.NewServer(serverConfig, serverDeps)
		go func() { serverErr <- server.Start() }()
	}

	select {
	case err := <-schedErr:
		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
				log.Error().Err(shutdownErr).Msg("monitor server shutdown failed")
			}
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler stopped: %w", err)
		}
		log.Info().Msg("daemon stopped")
		return nil

	case err := <-serverErr:
		stop()
		<-schedErr
		if err != nil {
			return fmt.Errorf("monitor server failed: %w", err)
		}
		return nil
	}
}
