package scheduler

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/persistence"
	"github.com/JGDev1215/OpenPredict/internal/providers"
	"github.com/JGDev1215/OpenPredict/internal/sessions"
)

// fixedNow sits past the 5/7 checkpoint of the 14:00 two-hour period,
// which lands at 15:25:42.857.
var fixedNow = time.Date(2025, 6, 3, 15, 47, 0, 0, time.UTC)

type fakeProvider struct {
	bars      []domain.Bar
	err       error
	failAfter int

	calls    int
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Bars(_ context.Context, _ string, from, to time.Time) ([]domain.Bar, error) {
	f.calls++
	f.lastFrom, f.lastTo = from, to
	if f.err != nil && (f.failAfter == 0 || f.calls > f.failAfter) {
		return nil, f.err
	}
	return f.bars, nil
}

func (f *fakeProvider) Health(_ context.Context) providers.Health {
	return providers.Health{Provider: "fake", Healthy: true, CheckedAt: fixedNow}
}

type fakeScores struct {
	err      error
	upserts  []domain.DualScore
	cycleIDs []int64
}

func (f *fakeScores) Upsert(_ context.Context, cycleID int64, score domain.DualScore) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, score)
	f.cycleIDs = append(f.cycleIDs, cycleID)
	return nil
}

func (f *fakeScores) Latest(_ context.Context, _ string) (*domain.DualScore, error) {
	return nil, nil
}

func (f *fakeScores) ListRange(_ context.Context, _ string, _ persistence.TimeRange) ([]domain.DualScore, error) {
	return nil, nil
}

func (f *fakeScores) Count(_ context.Context, _ persistence.TimeRange) (int64, error) {
	return 0, nil
}

type fakePredictions struct {
	exists     bool
	rejectNext bool
	inserted   []domain.PredictionResult
}

func (f *fakePredictions) Insert(_ context.Context, result domain.PredictionResult) (bool, error) {
	if f.rejectNext {
		return false, nil
	}
	f.inserted = append(f.inserted, result)
	return true, nil
}

func (f *fakePredictions) Exists(_ context.Context, _ string, _ time.Time, _ int) (bool, error) {
	return f.exists, nil
}

func (f *fakePredictions) Latest(_ context.Context, _ string) (*domain.PredictionResult, error) {
	return nil, nil
}

func (f *fakePredictions) ListRange(_ context.Context, _ string, _ persistence.TimeRange) ([]domain.PredictionResult, error) {
	return nil, nil
}

type fakeFacts struct {
	calls      map[string]int
	lastBlocks []domain.Block
}

func newFakeFacts() *fakeFacts { return &fakeFacts{calls: map[string]int{}} }

func (f *fakeFacts) ReplaceLevels(_ context.Context, _ string, _ time.Time, _ []domain.ReferenceLevel) error {
	f.calls["levels"]++
	return nil
}

func (f *fakeFacts) ReplacePivots(_ context.Context, _ string, _ time.Time, _ []domain.PivotSet) error {
	f.calls["pivots"]++
	return nil
}

func (f *fakeFacts) InsertLiquidityEvents(_ context.Context, _ string, _ []domain.LiquidityEvent) error {
	f.calls["liquidity"]++
	return nil
}

func (f *fakeFacts) InsertStructureBreaks(_ context.Context, _ string, _ []domain.StructureBreak) error {
	f.calls["structure"]++
	return nil
}

func (f *fakeFacts) InsertGaps(_ context.Context, _ string, _ []domain.FairValueGap) error {
	f.calls["gaps"]++
	return nil
}

func (f *fakeFacts) UpsertBlocks(_ context.Context, _ string, _ domain.Period, blocks []domain.Block) error {
	f.calls["blocks"]++
	f.lastBlocks = blocks
	return nil
}

type fakeLatestStore struct {
	scores      []domain.DualScore
	predictions []domain.PredictionResult
}

func (f *fakeLatestStore) SetLatestScore(_ context.Context, score domain.DualScore) error {
	f.scores = append(f.scores, score)
	return nil
}

func (f *fakeLatestStore) SetLatestPrediction(_ context.Context, result domain.PredictionResult) error {
	f.predictions = append(f.predictions, result)
	return nil
}

type fakePublisher struct {
	scores      []domain.DualScore
	predictions []domain.PredictionResult
}

func (f *fakePublisher) PublishScore(_ context.Context, score domain.DualScore) error {
	f.scores = append(f.scores, score)
	return nil
}

func (f *fakePublisher) PublishPrediction(_ context.Context, result domain.PredictionResult) error {
	f.predictions = append(f.predictions, result)
	return nil
}

// testBars builds gently rising one-minute candles over [from, to).
func testBars(from, to time.Time) []domain.Bar {
	var bars []domain.Bar
	i := 0
	for ts := from; ts.Before(to); ts = ts.Add(time.Minute) {
		base := 100.0 + float64(i)*0.05
		bars = append(bars, domain.Bar{
			Timestamp: ts,
			Open:      base,
			High:      base + 0.08,
			Low:       base - 0.06,
			Close:     base + 0.03,
			Volume:    1000,
		})
		i++
	}
	return bars
}

func testConfig() Config {
	return Config{
		Instrument:       "NQ=F",
		TimeframeMinutes: 120,
		Interval:         time.Hour,
		CycleWarnAfter:   8 * time.Second,
		Lookback:         3 * time.Hour,
	}
}

func newTestScheduler(t *testing.T, deps Deps) *Scheduler {
	t.Helper()
	s, err := NewScheduler(testConfig(), deps)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestNewSchedulerValidation(t *testing.T) {
	provider := &fakeProvider{}

	_, err := NewScheduler(Config{TimeframeMinutes: 120}, Deps{Provider: provider})
	assert.ErrorContains(t, err, "instrument")

	_, err = NewScheduler(Config{Instrument: "NQ=F"}, Deps{Provider: provider})
	assert.ErrorContains(t, err, "timeframe")

	_, err = NewScheduler(testConfig(), Deps{})
	assert.ErrorContains(t, err, "provider")
}

func TestCycleStoresScoreLocksPrediction(t *testing.T) {
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow)}
	scores := &fakeScores{}
	predictions := &fakePredictions{}
	facts := newFakeFacts()
	latest := &fakeLatestStore{}
	publisher := &fakePublisher{}

	s := newTestScheduler(t, Deps{
		Provider:  provider,
		Repo:      &persistence.Repository{Scores: scores, Predictions: predictions, Facts: facts},
		Latest:    latest,
		Publisher: publisher,
	})
	s.runCycle(context.Background())

	assert.Equal(t, fixedNow.Add(-3*time.Hour), provider.lastFrom)
	assert.Equal(t, fixedNow, provider.lastTo)

	require.Len(t, scores.upserts, 1)
	assert.Equal(t, "NQ=F", scores.upserts[0].Instrument)
	assert.Equal(t, fixedNow.Unix(), scores.cycleIDs[0])
	assert.InDelta(t, 100.0+179*0.05+0.03, scores.upserts[0].Price, 1e-9, "price is the last close")

	for _, step := range []string{"levels", "pivots", "liquidity", "gaps", "structure"} {
		assert.Equal(t, 1, facts.calls[step], "fact family %s written once", step)
	}

	require.Len(t, predictions.inserted, 1)
	locked := predictions.inserted[0]
	assert.Equal(t, time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC), locked.Period.Start)
	assert.Equal(t, 120, locked.Period.TimeframeMinutes)
	assert.False(t, locked.InsufficientData)
	assert.Len(t, facts.lastBlocks, domain.ObservableBlocks)

	assert.Len(t, latest.scores, 1)
	assert.Len(t, latest.predictions, 1)
	assert.Len(t, publisher.scores, 1)
	assert.Len(t, publisher.predictions, 1)

	status := s.Status()
	assert.Equal(t, uint64(1), status.Cycles)
	assert.Equal(t, uint64(0), status.Errors)
	assert.Equal(t, 1.0, status.SuccessRate)
}

func TestCycleBeforeCheckpointSkipsPrediction(t *testing.T) {
	early := time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC) // checkpoint is 15:25:42
	provider := &fakeProvider{bars: testBars(early.Add(-3*time.Hour), early)}
	predictions := &fakePredictions{}
	scores := &fakeScores{}

	s := newTestScheduler(t, Deps{
		Provider: provider,
		Repo:     &persistence.Repository{Scores: scores, Predictions: predictions},
	})
	s.now = func() time.Time { return early }
	s.runCycle(context.Background())

	assert.Len(t, scores.upserts, 1, "scores are still recomputed every cycle")
	assert.Empty(t, predictions.inserted)
}

func TestCycleLocksPeriodOnlyOnce(t *testing.T) {
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow)}
	predictions := &fakePredictions{}

	s := newTestScheduler(t, Deps{
		Provider: provider,
		Repo:     &persistence.Repository{Predictions: predictions},
	})
	s.runCycle(context.Background())
	s.runCycle(context.Background())

	assert.Len(t, predictions.inserted, 1)
}

func TestCycleSkipsPredictionLockedElsewhere(t *testing.T) {
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow)}
	predictions := &fakePredictions{exists: true}
	publisher := &fakePublisher{}

	s := newTestScheduler(t, Deps{
		Provider:  provider,
		Repo:      &persistence.Repository{Predictions: predictions},
		Publisher: publisher,
	})
	s.runCycle(context.Background())

	assert.Empty(t, predictions.inserted)
	assert.Empty(t, publisher.predictions, "an already-locked period is never republished")
}

func TestCycleInsertConflictSuppressesPublish(t *testing.T) {
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow)}
	predictions := &fakePredictions{rejectNext: true}
	latest := &fakeLatestStore{}
	publisher := &fakePublisher{}

	s := newTestScheduler(t, Deps{
		Provider:  provider,
		Repo:      &persistence.Repository{Predictions: predictions},
		Latest:    latest,
		Publisher: publisher,
	})
	s.runCycle(context.Background())

	assert.Empty(t, latest.predictions)
	assert.Empty(t, publisher.predictions)
}

func TestCycleFetchFailureCountsError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("upstream down")}
	scores := &fakeScores{}

	s := newTestScheduler(t, Deps{
		Provider: provider,
		Repo:     &persistence.Repository{Scores: scores},
	})
	s.runCycle(context.Background())

	assert.Empty(t, scores.upserts)

	status := s.Status()
	assert.Equal(t, uint64(1), status.Cycles)
	assert.Equal(t, uint64(1), status.Errors)
	assert.Equal(t, 0.0, status.SuccessRate)
}

func TestCyclePersistenceFailureIsSoft(t *testing.T) {
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow)}
	scores := &fakeScores{err: errors.New("connection refused")}
	latest := &fakeLatestStore{}
	publisher := &fakePublisher{}

	s := newTestScheduler(t, Deps{
		Provider:  provider,
		Repo:      &persistence.Repository{Scores: scores},
		Latest:    latest,
		Publisher: publisher,
	})
	s.runCycle(context.Background())

	assert.Len(t, latest.scores, 1, "cache still updated when the database is down")
	assert.Len(t, publisher.scores, 1)
	assert.Equal(t, uint64(0), s.Status().Errors)
}

func TestCycleDropsInvalidBars(t *testing.T) {
	bars := testBars(fixedNow.Add(-3*time.Hour), fixedNow)
	bars[10].High = bars[10].Low - 1 // poisoned candle

	provider := &fakeProvider{bars: bars}
	scores := &fakeScores{}

	s := newTestScheduler(t, Deps{
		Provider: provider,
		Repo:     &persistence.Repository{Scores: scores},
	})
	s.runCycle(context.Background())

	assert.Len(t, scores.upserts, 1)
	assert.Equal(t, uint64(0), s.Status().Errors)
}

func TestCycleSuccessRateMixed(t *testing.T) {
	provider := &fakeProvider{
		bars:      testBars(fixedNow.Add(-3*time.Hour), fixedNow),
		err:       errors.New("flaky"),
		failAfter: 1,
	}

	s := newTestScheduler(t, Deps{Provider: provider})
	s.runCycle(context.Background())
	s.runCycle(context.Background())

	status := s.Status()
	assert.Equal(t, uint64(2), status.Cycles)
	assert.Equal(t, uint64(1), status.Errors)
	assert.Equal(t, 0.5, status.SuccessRate)
}

func TestStartStopsOnCancel(t *testing.T) {
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow)}
	s := newTestScheduler(t, Deps{Provider: provider})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	// Let the immediate first cycle finish, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
	assert.False(t, s.Status().Running)
	assert.GreaterOrEqual(t, s.Status().Cycles, uint64(1))
}

type fakeLiveFeed struct {
	connectErr error
	bars       chan domain.Bar
	reconnect  chan struct{}
	closed     bool
}

func newFakeLiveFeed() *fakeLiveFeed {
	return &fakeLiveFeed{bars: make(chan domain.Bar), reconnect: make(chan struct{})}
}

func (f *fakeLiveFeed) Connect(_ context.Context) error { return f.connectErr }
func (f *fakeLiveFeed) Bars() <-chan domain.Bar         { return f.bars }
func (f *fakeLiveFeed) Reconnect() <-chan struct{}      { return f.reconnect }
func (f *fakeLiveFeed) Close() error                    { f.closed = true; return nil }

func liveBar(ts time.Time, close float64) domain.Bar {
	return domain.Bar{
		Timestamp: ts,
		Open:      close - 0.02,
		High:      close + 0.05,
		Low:       close - 0.05,
		Close:     close,
		Volume:    500,
	}
}

func TestLiveBarsSupplementPolledWindow(t *testing.T) {
	// The poll stops five minutes short of the cycle clock; the stream
	// has the missing tail.
	provider := &fakeProvider{bars: testBars(fixedNow.Add(-3*time.Hour), fixedNow.Add(-5*time.Minute))}
	scores := &fakeScores{}

	s := newTestScheduler(t, Deps{
		Provider: provider,
		Repo:     &persistence.Repository{Scores: scores},
	})
	for i := 4; i >= 1; i-- {
		s.pushLiveBar(liveBar(fixedNow.Add(-time.Duration(i)*time.Minute), 250.0+float64(4-i)))
	}

	s.runCycle(context.Background())

	require.Len(t, scores.upserts, 1)
	assert.InDelta(t, 253.0, scores.upserts[0].Price, 1e-9, "the streamed tail supplies the last close")
}

func TestPushLiveBarReplacesAndBounds(t *testing.T) {
	s := newTestScheduler(t, Deps{Provider: &fakeProvider{}})

	ts := fixedNow.Add(-time.Minute)
	s.pushLiveBar(liveBar(ts, 200))
	s.pushLiveBar(liveBar(ts, 201))
	require.Len(t, s.liveTail, 1, "a re-delivered minute replaces, never duplicates")
	assert.Equal(t, 201.0, s.liveTail[0].Close)

	for i := 0; i < maxLiveTail+10; i++ {
		s.pushLiveBar(liveBar(fixedNow.Add(time.Duration(i)*time.Minute), 100))
	}
	assert.Len(t, s.liveTail, maxLiveTail, "the tail buffer stays bounded")
	assert.True(t, sort.SliceIsSorted(s.liveTail, func(i, j int) bool {
		return s.liveTail[i].Timestamp.Before(s.liveTail[j].Timestamp)
	}))
}

func TestMergeLiveTailSkipsCoveredAndFutureBars(t *testing.T) {
	s := newTestScheduler(t, Deps{Provider: &fakeProvider{}})

	polled := testBars(fixedNow.Add(-10*time.Minute), fixedNow.Add(-4*time.Minute))
	lastPolled := polled[len(polled)-1].Timestamp

	s.pushLiveBar(liveBar(lastPolled, 300))                       // already covered by the poll
	s.pushLiveBar(liveBar(lastPolled.Add(time.Minute), 301))      // genuinely new
	s.pushLiveBar(liveBar(lastPolled.Add(2*time.Minute), 302))    // genuinely new
	s.pushLiveBar(liveBar(fixedNow, 303))                         // at the cycle clock, excluded
	s.pushLiveBar(liveBar(fixedNow.Add(time.Minute), 304))        // past the cycle clock, excluded

	merged := s.mergeLiveTail(polled, fixedNow)
	require.Len(t, merged, len(polled)+2)
	assert.Equal(t, 301.0, merged[len(merged)-2].Close)
	assert.Equal(t, 302.0, merged[len(merged)-1].Close)
}

func TestMergeLiveTailEmptyIsNoop(t *testing.T) {
	s := newTestScheduler(t, Deps{Provider: &fakeProvider{}})
	polled := testBars(fixedNow.Add(-10*time.Minute), fixedNow)
	assert.Equal(t, polled, s.mergeLiveTail(polled, fixedNow))
}

func TestConsumeLiveBuffersUntilSessionDrops(t *testing.T) {
	s := newTestScheduler(t, Deps{Provider: &fakeProvider{}})
	feed := newFakeLiveFeed()

	go func() {
		feed.bars <- liveBar(fixedNow.Add(-2*time.Minute), 210)
		// A malformed candle must be dropped, not buffered.
		feed.bars <- domain.Bar{Timestamp: fixedNow.Add(-time.Minute), Open: 210, High: 209, Low: 211, Close: 210, Volume: 1}
		feed.bars <- liveBar(fixedNow.Add(-time.Minute), 211)
		feed.reconnect <- struct{}{}
	}()

	s.consumeLive(context.Background(), feed)

	require.Len(t, s.liveTail, 2)
	assert.Equal(t, 210.0, s.liveTail[0].Close)
	assert.Equal(t, 211.0, s.liveTail[1].Close)
}

func TestConsumeLiveStopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, Deps{Provider: &fakeProvider{}})
	feed := newFakeLiveFeed()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.consumeLive(ctx, feed)
	assert.Empty(t, s.liveTail)
}

func TestMarketBanner(t *testing.T) {
	hours := sessions.NewMarketHours()

	// Tuesday 11:47 ET, cash session trading.
	assert.Equal(t, "market is OPEN", marketBanner(hours, fixedNow))

	// Saturday: closed, banner names the Monday open and promises the
	// loop keeps collecting.
	saturday := time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC)
	banner := marketBanner(hours, saturday)
	assert.Contains(t, banner, "market is CLOSED")
	assert.Contains(t, banner, "2025-06-09T13:30:00Z")
	assert.Contains(t, banner, "collection continues")
}
