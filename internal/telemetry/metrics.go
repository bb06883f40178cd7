// Package telemetry holds the Prometheus metrics for the analysis
// pipeline. The registry is instance-scoped rather than process-global
// so parallel schedulers and tests never fight over registration.
package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds every metric the pipeline records.
type Registry struct {
	registry *prometheus.Registry

	CycleDuration prometheus.Histogram
	StepDuration  *prometheus.HistogramVec
	CyclesTotal   prometheus.Counter
	CycleErrors   *prometheus.CounterVec

	ScoresTotal      *prometheus.CounterVec
	PredictionsTotal *prometheus.CounterVec

	ProviderErrors  *prometheus.CounterVec
	ProviderHealthy *prometheus.GaugeVec
	BreakerState    *prometheus.GaugeVec
	LiveBarsTotal   *prometheus.CounterVec

	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	mu         sync.Mutex
	cacheTypes map[string]struct{}
}

// NewRegistry creates and registers the full metric set.
func NewRegistry() *Registry {
	r := &Registry{
		registry:   prometheus.NewRegistry(),
		cacheTypes: make(map[string]struct{}),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "openpredict_cycle_duration_seconds",
				Help:    "Duration of a full analysis cycle in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 4.0, 8.0, 16.0, 30.0, 60.0},
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openpredict_step_duration_seconds",
				Help:    "Duration of each cycle step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		CyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "openpredict_cycles_total",
				Help: "Total number of analysis cycles started",
			},
		),

		CycleErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_cycle_errors_total",
				Help: "Total number of cycle errors by step",
			},
			[]string{"step"},
		),

		ScoresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_scores_total",
				Help: "Total dual scores computed by instrument and bias",
			},
			[]string{"instrument", "bias"},
		),

		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_predictions_total",
				Help: "Total predictions locked by instrument and direction",
			},
			[]string{"instrument", "direction"},
		),

		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_provider_errors_total",
				Help: "Total market-data provider errors",
			},
			[]string{"provider"},
		),

		ProviderHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "openpredict_provider_healthy",
				Help: "Provider health (1=healthy, 0=unhealthy)",
			},
			[]string{"provider"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "openpredict_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),

		LiveBarsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_live_bars_total",
				Help: "Total closed candles received over the live stream",
			},
			[]string{"provider"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "openpredict_cache_hit_ratio",
				Help: "Current market-data cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_cache_hits_total",
				Help: "Total cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openpredict_cache_misses_total",
				Help: "Total cache misses by cache type",
			},
			[]string{"cache_type"},
		),
	}

	r.registry.MustRegister(
		r.CycleDuration,
		r.StepDuration,
		r.CyclesTotal,
		r.CycleErrors,
		r.ScoresTotal,
		r.PredictionsTotal,
		r.ProviderErrors,
		r.ProviderHealthy,
		r.BreakerState,
		r.LiveBarsTotal,
		r.CacheHitRatio,
		r.CacheHits,
		r.CacheMisses,
	)

	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying gatherer for health surfaces and tests.
func (r *Registry) Gather() ([]*io_prometheus_client.MetricFamily, error) {
	return r.registry.Gather()
}

// StepTimer times one cycle step.
type StepTimer struct {
	metrics *Registry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a cycle step.
func (r *Registry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{metrics: r, step: step, start: time.Now()}
}

// Stop records the step's duration under the given result.
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("cycle step completed")
}

// RecordCycle records a completed cycle's wall time.
func (r *Registry) RecordCycle(duration time.Duration) {
	r.CyclesTotal.Inc()
	r.CycleDuration.Observe(duration.Seconds())
}

// RecordCycleError counts a failed step.
func (r *Registry) RecordCycleError(step string) {
	r.CycleErrors.WithLabelValues(step).Inc()
}

// RecordScore counts a computed dual score.
func (r *Registry) RecordScore(instrument, bias string) {
	r.ScoresTotal.WithLabelValues(instrument, bias).Inc()
}

// RecordPrediction counts a locked prediction.
func (r *Registry) RecordPrediction(instrument, direction string) {
	r.PredictionsTotal.WithLabelValues(instrument, direction).Inc()
}

// RecordProviderError counts a provider failure.
func (r *Registry) RecordProviderError(provider string) {
	r.ProviderErrors.WithLabelValues(provider).Inc()
}

// RecordLiveBar counts a closed candle delivered by the live stream.
func (r *Registry) RecordLiveBar(provider string) {
	r.LiveBarsTotal.WithLabelValues(provider).Inc()
}

// SetProviderHealth reflects the latest provider health probe.
func (r *Registry) SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	r.ProviderHealthy.WithLabelValues(provider).Set(v)
}

// SetBreakerState reflects the provider's circuit state.
func (r *Registry) SetBreakerState(provider, state string) {
	r.BreakerState.WithLabelValues(provider).Set(breakerStateValue(state))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1.0
	case "open":
		return 2.0
	default:
		return 0.0
	}
}

// RecordCacheHit records a cache hit and refreshes the hit ratio.
func (r *Registry) RecordCacheHit(cacheType string) {
	r.CacheHits.WithLabelValues(cacheType).Inc()
	r.noteCacheType(cacheType)
	r.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss and refreshes the hit ratio.
func (r *Registry) RecordCacheMiss(cacheType string) {
	r.CacheMisses.WithLabelValues(cacheType).Inc()
	r.noteCacheType(cacheType)
	r.updateCacheHitRatio()
}

func (r *Registry) noteCacheType(cacheType string) {
	r.mu.Lock()
	r.cacheTypes[cacheType] = struct{}{}
	r.mu.Unlock()
}

// updateCacheHitRatio reads the hit and miss counters back and derives
// the aggregate ratio across every cache type seen so far.
func (r *Registry) updateCacheHitRatio() {
	r.mu.Lock()
	types := make([]string, 0, len(r.cacheTypes))
	for t := range r.cacheTypes {
		types = append(types, t)
	}
	r.mu.Unlock()

	var m io_prometheus_client.Metric
	totalHits := 0.0
	totalMisses := 0.0

	for _, cacheType := range types {
		if hitCounter, err := r.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := hitCounter.Write(&m); err == nil {
				totalHits += m.GetCounter().GetValue()
			}
		}
		if missCounter, err := r.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := missCounter.Write(&m); err == nil {
				totalMisses += m.GetCounter().GetValue()
			}
		}
	}

	total := totalHits + totalMisses
	if total > 0 {
		r.CacheHitRatio.Set(totalHits / total)
	}
}
