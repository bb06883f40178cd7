// Package scheduler drives the collection-and-scoring loop: every
// interval it pulls fresh bars, recomputes market facts and the dual
// score, and locks the period prediction once the 5/7 checkpoint has
// passed.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/levels"
	"github.com/JGDev1215/OpenPredict/internal/liquidity"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
	"github.com/JGDev1215/OpenPredict/internal/prediction"
	"github.com/JGDev1215/OpenPredict/internal/providers"
	"github.com/JGDev1215/OpenPredict/internal/scoring"
	"github.com/JGDev1215/OpenPredict/internal/sessions"
	"github.com/JGDev1215/OpenPredict/internal/structure"
	"github.com/JGDev1215/OpenPredict/internal/telemetry"
)

// Config holds the cycle settings.
type Config struct {
	Instrument       string
	TimeframeMinutes int
	Interval         time.Duration
	CycleWarnAfter   time.Duration
	Lookback         time.Duration
}

// DefaultConfig returns the production cycle settings: a one-minute
// cadence against a two-day bar window.
func DefaultConfig() Config {
	return Config{
		Instrument:       "NQ=F",
		TimeframeMinutes: 120,
		Interval:         60 * time.Second,
		CycleWarnAfter:   8 * time.Second,
		Lookback:         48 * time.Hour,
	}
}

// LatestStore keeps the most recent snapshot per instrument for the
// monitor API. The redis latest-store satisfies it.
type LatestStore interface {
	SetLatestScore(ctx context.Context, score domain.DualScore) error
	SetLatestPrediction(ctx context.Context, result domain.PredictionResult) error
}

// Publisher pushes snapshots to downstream consumers. The kafka
// publisher satisfies it.
type Publisher interface {
	PublishScore(ctx context.Context, score domain.DualScore) error
	PublishPrediction(ctx context.Context, result domain.PredictionResult) error
}

// LiveFeed is one websocket session of closed candles. A session is
// single-use: once it drops or is closed, the scheduler dials a fresh
// one from the factory. The binance kline stream satisfies it.
type LiveFeed interface {
	Connect(ctx context.Context) error
	Bars() <-chan domain.Bar
	Reconnect() <-chan struct{}
	Close() error
}

// Deps are the scheduler's collaborators. Provider is required; nil
// Repo, Latest, Publisher and Live disable their steps; nil engines
// are replaced with production defaults for the configured instrument.
type Deps struct {
	Provider  providers.Provider
	Live      func() LiveFeed
	Levels    *levels.Calculator
	Liquidity *liquidity.Detector
	Structure *structure.Detector
	Scorer    *scoring.DualScoreEngine
	Predictor *prediction.Engine
	Repo      *persistence.Repository
	Latest    LatestStore
	Publisher Publisher
	Metrics   *telemetry.Registry
}

// Status is a point-in-time view of the loop for diagnostics.
type Status struct {
	Running      bool          `json:"running"`
	Cycles       uint64        `json:"cycles"`
	Errors       uint64        `json:"errors"`
	SuccessRate  float64       `json:"success_rate"`
	LastCycleAt  time.Time     `json:"last_cycle_at"`
	LastDuration time.Duration `json:"last_duration"`
	Uptime       time.Duration `json:"uptime"`
}

// Scheduler runs the collection cycle on a fixed interval.
type Scheduler struct {
	config Config
	deps   Deps

	now func() time.Time

	mu           sync.Mutex
	running      bool
	startTime    time.Time
	cycles       uint64
	errors       uint64
	lastCycleAt  time.Time
	lastDuration time.Duration

	// Start of the period most recently locked, so an already-written
	// prediction is not recomputed every cycle.
	lockedPeriod time.Time

	// Closed candles streamed since the last poll, merged into each
	// cycle's window so scoring sees minutes REST has not indexed yet.
	liveMu   sync.Mutex
	liveTail []domain.Bar
}

// NewScheduler validates the config and fills in default engines.
func NewScheduler(config Config, deps Deps) (*Scheduler, error) {
	if config.Instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if config.TimeframeMinutes <= 0 {
		return nil, fmt.Errorf("timeframe must be positive, got %d", config.TimeframeMinutes)
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.CycleWarnAfter <= 0 {
		config.CycleWarnAfter = DefaultConfig().CycleWarnAfter
	}
	if config.Lookback <= 0 {
		config.Lookback = DefaultConfig().Lookback
	}

	if deps.Levels == nil {
		deps.Levels = levels.NewCalculator(config.Instrument)
	}
	if deps.Liquidity == nil {
		deps.Liquidity = liquidity.NewDetector(config.Instrument, nil)
	}
	if deps.Structure == nil {
		deps.Structure = structure.NewDetector(config.Instrument, nil)
	}
	if deps.Scorer == nil {
		deps.Scorer = scoring.NewDualScoreEngine(nil)
	}
	if deps.Predictor == nil {
		deps.Predictor = prediction.NewEngine(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewRegistry()
	}

	return &Scheduler{
		config: config,
		deps:   deps,
		now:    time.Now,
	}, nil
}

// Start runs the first cycle immediately, then one per interval, until
// the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = s.now()
	s.mu.Unlock()

	log.Info().
		Str("instrument", s.config.Instrument).
		Int("timeframe_minutes", s.config.TimeframeMinutes).
		Str("source", s.deps.Provider.Name()).
		Dur("interval", s.config.Interval).
		Msg("scheduler starting")
	log.Info().Msg(marketBanner(sessions.NewMarketHours(), s.now()))

	if s.deps.Live != nil {
		go s.runLiveFeed(ctx)
	}

	s.runCycle(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			cycles, errors := s.cycles, s.errors
			s.mu.Unlock()
			log.Info().Uint64("cycles", cycles).Uint64("errors", errors).Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// marketBanner describes the cash-session state for the startup log.
// Collection runs either way; closed hours still feed 24/7 instruments.
func marketBanner(hours *sessions.MarketHours, now time.Time) string {
	if hours.IsOpen(now) {
		return "market is OPEN"
	}
	return fmt.Sprintf("market is CLOSED, next open %s (collection continues)",
		hours.NextOpen(now).UTC().Format(time.RFC3339))
}

// Status reports the loop counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:      s.running,
		Cycles:       s.cycles,
		Errors:       s.errors,
		LastCycleAt:  s.lastCycleAt,
		LastDuration: s.lastDuration,
	}
	if s.cycles > 0 {
		status.SuccessRate = float64(s.cycles-s.errors) / float64(s.cycles)
	}
	if s.running {
		status.Uptime = s.now().Sub(s.startTime)
	}
	return status
}

// runCycle executes one full pass: fetch, validate, detect facts,
// score, and lock the prediction when due. Persistence and publish
// failures degrade the cycle but never abort it; only a dead feed does.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := s.now()

	s.mu.Lock()
	s.cycles++
	cycle := s.cycles
	s.mu.Unlock()

	log.Info().Uint64("cycle", cycle).Msg("cycle started")

	err := s.cycle(ctx, start)

	duration := s.now().Sub(start)
	s.mu.Lock()
	s.lastCycleAt = start
	s.lastDuration = duration
	if err != nil {
		s.errors++
	}
	s.mu.Unlock()

	s.deps.Metrics.RecordCycle(duration)

	if err != nil {
		log.Error().Err(err).Uint64("cycle", cycle).Dur("duration", duration).Msg("cycle failed")
		return
	}
	log.Info().Uint64("cycle", cycle).Dur("duration", duration).Msg("cycle completed")

	if duration > s.config.CycleWarnAfter {
		log.Warn().
			Dur("duration", duration).
			Dur("target", s.config.CycleWarnAfter).
			Msg("cycle exceeded duration target")
	}
}

func (s *Scheduler) cycle(ctx context.Context, now time.Time) error {
	bars, err := s.fetch(ctx, now)
	if err != nil {
		s.deps.Metrics.RecordCycleError("fetch")
		s.deps.Metrics.RecordProviderError(s.deps.Provider.Name())
		return fmt.Errorf("fetch: %w", err)
	}

	bars = s.validate(bars)
	bars = s.mergeLiveTail(bars, now)
	if len(bars) == 0 {
		s.deps.Metrics.RecordCycleError("validate")
		return fmt.Errorf("no valid bars in window")
	}

	facts := s.detectFacts(ctx, bars, now)

	score, err := s.score(ctx, facts)
	if err != nil {
		s.deps.Metrics.RecordCycleError("score")
		return fmt.Errorf("score: %w", err)
	}
	s.storeScore(ctx, now, *score)

	s.lockPredictionIfDue(ctx, bars, now)
	return nil
}

func (s *Scheduler) fetch(ctx context.Context, now time.Time) ([]domain.Bar, error) {
	timer := s.deps.Metrics.StartStepTimer("fetch")

	from := now.Add(-s.config.Lookback)
	bars, err := s.deps.Provider.Bars(ctx, s.config.Instrument, from, now)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	timer.Stop("success")

	log.Debug().Int("bars", len(bars)).Time("from", from).Time("to", now).Msg("bars fetched")
	return bars, nil
}

// liveRedialDelay spaces websocket redials after a dropped session.
const liveRedialDelay = 5 * time.Second

// maxLiveTail bounds the streamed-candle buffer; anything older has
// long since appeared in the polled window.
const maxLiveTail = 16

// runLiveFeed keeps a websocket session alive for the life of the
// scheduler, dialing a fresh one from the factory whenever the current
// session drops.
func (s *Scheduler) runLiveFeed(ctx context.Context) {
	log.Info().Str("source", s.deps.Provider.Name()).Msg("live feed starting")
	for {
		feed := s.deps.Live()
		if err := feed.Connect(ctx); err != nil {
			log.Warn().Err(err).Msg("live feed dial failed")
		} else {
			s.consumeLive(ctx, feed)
		}
		_ = feed.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(liveRedialDelay):
		}
	}
}

// consumeLive folds one session's closed candles into the tail buffer
// until the session asks for a redial or the scheduler stops.
func (s *Scheduler) consumeLive(ctx context.Context, feed LiveFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.Reconnect():
			log.Warn().Msg("live feed session dropped, redialing")
			return
		case bar, ok := <-feed.Bars():
			if !ok {
				return
			}
			if err := bar.Validate(); err != nil {
				log.Debug().Err(err).Msg("live candle dropped")
				continue
			}
			s.pushLiveBar(bar)
			s.deps.Metrics.RecordLiveBar(s.deps.Provider.Name())
		}
	}
}

// pushLiveBar inserts a streamed candle into the tail buffer, keyed by
// timestamp so a re-delivered minute replaces rather than duplicates.
func (s *Scheduler) pushLiveBar(bar domain.Bar) {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()

	for i := range s.liveTail {
		if s.liveTail[i].Timestamp.Equal(bar.Timestamp) {
			s.liveTail[i] = bar
			return
		}
	}
	s.liveTail = append(s.liveTail, bar)
	sort.Slice(s.liveTail, func(i, j int) bool {
		return s.liveTail[i].Timestamp.Before(s.liveTail[j].Timestamp)
	})
	if len(s.liveTail) > maxLiveTail {
		s.liveTail = s.liveTail[len(s.liveTail)-maxLiveTail:]
	}
}

// mergeLiveTail appends streamed candles strictly newer than the
// polled window's last bar and still before the cycle clock, keeping
// the window sorted and duplicate-free.
func (s *Scheduler) mergeLiveTail(bars []domain.Bar, now time.Time) []domain.Bar {
	s.liveMu.Lock()
	tail := append([]domain.Bar(nil), s.liveTail...)
	s.liveMu.Unlock()
	if len(tail) == 0 {
		return bars
	}

	var lastPolled time.Time
	if len(bars) > 0 {
		lastPolled = bars[len(bars)-1].Timestamp
	}

	added := 0
	for _, b := range tail {
		if !b.Timestamp.After(lastPolled) || !b.Timestamp.Before(now) {
			continue
		}
		bars = append(bars, b)
		added++
	}
	if added > 0 {
		log.Debug().Int("live_bars", added).Msg("streamed candles merged into cycle window")
	}
	return bars
}

// validate drops malformed bars so a single poisoned candle cannot
// distort every downstream detector.
func (s *Scheduler) validate(bars []domain.Bar) []domain.Bar {
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
	return valid
}

// detectFacts runs the level, pivot, liquidity, gap and structure
// detectors and persists each fact family. A failed write costs the
// audit trail, not the score.
func (s *Scheduler) detectFacts(ctx context.Context, bars []domain.Bar, now time.Time) *scoring.MarketFacts {
	timer := s.deps.Metrics.StartStepTimer("facts")
	defer timer.Stop("success")

	facts := &scoring.MarketFacts{
		Instrument: s.config.Instrument,
		Price:      bars[len(bars)-1].Close,
		Timestamp:  now,
	}

	facts.Levels = s.deps.Levels.Levels(bars, now)
	s.persistFacts(ctx, "levels", func(repo persistence.FactsRepo) error {
		return repo.ReplaceLevels(ctx, s.config.Instrument, now, facts.Levels)
	})

	facts.Pivots = s.deps.Levels.Pivots(bars, now)
	s.persistFacts(ctx, "pivots", func(repo persistence.FactsRepo) error {
		return repo.ReplacePivots(ctx, s.config.Instrument, now, facts.Pivots)
	})

	facts.LiquidityEvents = s.deps.Liquidity.DetectEvents(bars, facts.Levels, now)
	s.persistFacts(ctx, "liquidity", func(repo persistence.FactsRepo) error {
		return repo.InsertLiquidityEvents(ctx, s.config.Instrument, facts.LiquidityEvents)
	})

	facts.Gaps = s.deps.Structure.DetectGaps(bars, now)
	s.persistFacts(ctx, "gaps", func(repo persistence.FactsRepo) error {
		return repo.InsertGaps(ctx, s.config.Instrument, facts.Gaps)
	})

	facts.StructureBreaks = s.deps.Structure.DetectBreaks(bars, now)
	s.persistFacts(ctx, "structure", func(repo persistence.FactsRepo) error {
		return repo.InsertStructureBreaks(ctx, s.config.Instrument, facts.StructureBreaks)
	})

	log.Debug().
		Int("levels", len(facts.Levels)).
		Int("pivots", len(facts.Pivots)).
		Int("liquidity_events", len(facts.LiquidityEvents)).
		Int("gaps", len(facts.Gaps)).
		Int("structure_breaks", len(facts.StructureBreaks)).
		Msg("market facts detected")
	return facts
}

func (s *Scheduler) persistFacts(ctx context.Context, step string, write func(persistence.FactsRepo) error) {
	if s.deps.Repo == nil || s.deps.Repo.Facts == nil {
		return
	}
	if err := write(s.deps.Repo.Facts); err != nil {
		s.deps.Metrics.RecordCycleError(step)
		log.Warn().Err(err).Str("step", step).Msg("fact write failed")
	}
}

func (s *Scheduler) score(ctx context.Context, facts *scoring.MarketFacts) (*domain.DualScore, error) {
	timer := s.deps.Metrics.StartStepTimer("score")
	score, err := s.deps.Scorer.CalculateDualScore(ctx, facts)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	timer.Stop("success")
	return score, nil
}

func (s *Scheduler) storeScore(ctx context.Context, now time.Time, score domain.DualScore) {
	s.deps.Metrics.RecordScore(score.Instrument, score.Bias.String())

	if s.deps.Repo != nil && s.deps.Repo.Scores != nil {
		if err := s.deps.Repo.Scores.Upsert(ctx, now.Unix(), score); err != nil {
			s.deps.Metrics.RecordCycleError("store_score")
			log.Warn().Err(err).Msg("score snapshot write failed")
		}
	}
	if s.deps.Latest != nil {
		if err := s.deps.Latest.SetLatestScore(ctx, score); err != nil {
			s.deps.Metrics.RecordCycleError("cache_score")
			log.Warn().Err(err).Msg("latest score cache write failed")
		}
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishScore(ctx, score); err != nil {
			s.deps.Metrics.RecordCycleError("publish_score")
			log.Warn().Err(err).Msg("score publish failed")
		}
	}

	log.Info().
		Str("instrument", score.Instrument).
		Float64("bullish", score.BullishTotal).
		Float64("bearish", score.BearishTotal).
		Str("bias", score.Bias.String()).
		Str("rating", score.Rating.String()).
		Msg("dual score calculated")
}

// lockPredictionIfDue writes the period's prediction exactly once, the
// first cycle after the 5/7 checkpoint passes. The database insert is
// the authoritative lock; the in-memory marker only skips repeat work
// within one process.
func (s *Scheduler) lockPredictionIfDue(ctx context.Context, bars []domain.Bar, now time.Time) {
	period := domain.PeriodAt(now, s.config.TimeframeMinutes)
	if now.Before(period.Checkpoint()) {
		return
	}

	s.mu.Lock()
	alreadyLocked := s.lockedPeriod.Equal(period.Start)
	s.mu.Unlock()
	if alreadyLocked {
		return
	}

	if s.deps.Repo != nil && s.deps.Repo.Predictions != nil {
		exists, err := s.deps.Repo.Predictions.Exists(ctx, s.config.Instrument, period.Start, period.TimeframeMinutes)
		if err != nil {
			s.deps.Metrics.RecordCycleError("predict")
			log.Warn().Err(err).Msg("prediction existence check failed")
			return
		}
		if exists {
			s.markLocked(period)
			return
		}
	}

	timer := s.deps.Metrics.StartStepTimer("predict")
	result, err := s.deps.Predictor.AnalyzePeriod(ctx, s.config.Instrument, bars, period)
	if err != nil {
		timer.Stop("error")
		s.deps.Metrics.RecordCycleError("predict")
		log.Warn().Err(err).Str("period", period.String()).Msg("prediction analysis failed")
		return
	}
	timer.Stop("success")

	if s.deps.Repo != nil && s.deps.Repo.Predictions != nil {
		inserted, err := s.deps.Repo.Predictions.Insert(ctx, *result)
		if err != nil {
			s.deps.Metrics.RecordCycleError("store_prediction")
			log.Warn().Err(err).Msg("prediction write failed")
			return
		}
		if !inserted {
			// Another process locked the period first.
			s.markLocked(period)
			return
		}
		if s.deps.Repo.Facts != nil {
			if err := s.deps.Repo.Facts.UpsertBlocks(ctx, s.config.Instrument, period, result.Blocks); err != nil {
				s.deps.Metrics.RecordCycleError("store_blocks")
				log.Warn().Err(err).Msg("block write failed")
			}
		}
	}
	s.markLocked(period)

	s.deps.Metrics.RecordPrediction(result.Instrument, result.Direction.String())

	if s.deps.Latest != nil {
		if err := s.deps.Latest.SetLatestPrediction(ctx, *result); err != nil {
			s.deps.Metrics.RecordCycleError("cache_prediction")
			log.Warn().Err(err).Msg("latest prediction cache write failed")
		}
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishPrediction(ctx, *result); err != nil {
			s.deps.Metrics.RecordCycleError("publish_prediction")
			log.Warn().Err(err).Msg("prediction publish failed")
		}
	}

	log.Info().
		Str("instrument", result.Instrument).
		Str("period", period.String()).
		Str("direction", result.Direction.String()).
		Str("strength", result.Strength.String()).
		Bool("insufficient_data", result.InsufficientData).
		Msg("prediction locked")
}

func (s *Scheduler) markLocked(period domain.Period) {
	s.mu.Lock()
	s.lockedPeriod = period.Start
	s.mu.Unlock()
}
