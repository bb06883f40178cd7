// Package yahoo is the chart-API client for futures instruments such
// as NQ=F. Calls ride a per-host token bucket, a circuit breaker and a
// short-TTL cache; transient failures retry with linear backoff.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/infra/breakers"
	"github.com/JGDev1215/OpenPredict/internal/cache"
	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/net/ratelimit"
	"github.com/JGDev1215/OpenPredict/internal/providers"
)

type Config struct {
	BaseURL        string        `json:"base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RetryAttempts  int           `json:"retry_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay"`
	CacheTTL       time.Duration `json:"cache_ttl"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	UserAgent      string        `json:"user_agent"`
}

type Client struct {
	config      Config
	httpClient  *http.Client
	limiter     *ratelimit.Limiter
	breaker     *breakers.Breaker
	cache       cache.Cache
	host        string
	lastSuccess atomic.Int64
}

func NewClient(config Config, c cache.Cache) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://query1.finance.yahoo.com"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.RetryMaxDelay == 0 {
		config.RetryMaxDelay = 30 * time.Second
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 50 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 2.0
	}
	if config.RateLimitBurst == 0 {
		config.RateLimitBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "OpenPredict/1.0"
	}
	if c == nil {
		c = cache.NewAuto()
	}

	host := config.BaseURL
	if u, err := url.Parse(config.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: ratelimit.NewLimiter(config.RateLimitRPS, config.RateLimitBurst),
		breaker: breakers.New("yahoo"),
		cache:   c,
		host:    host,
	}
}

func (c *Client) Name() string { return "yahoo" }

// Bars fetches 1m bars with open times in [start, end). Minutes the
// venue printed no trade are absent, never zero-filled.
func (c *Client) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	key := fmt.Sprintf("chart:%s:1m:%d:%d", symbol, start.Unix(), end.Unix())
	if bars, ok := cache.GetBars(ctx, c.cache, key); ok {
		log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("yahoo chart cache hit")
		return bars, nil
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchWithRetry(ctx, symbol, start, end)
	})
	if err != nil {
		return nil, err
	}
	bars := result.([]domain.Bar)

	cache.SetBars(ctx, c.cache, key, bars, c.config.CacheTTL)
	c.lastSuccess.Store(time.Now().UnixNano())
	return bars, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		if err := c.limiter.Wait(ctx, c.host); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		bars, err := c.fetch(ctx, symbol, start, end)
		if err == nil {
			return bars, nil
		}
		lastErr = err

		if attempt == c.config.RetryAttempts {
			break
		}
		delay := backoffDelay(c.config.RetryDelay, c.config.RetryMaxDelay, attempt)
		log.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("yahoo chart fetch failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("yahoo chart fetch failed after %d attempts: %w", c.config.RetryAttempts, lastErr)
}

// backoffDelay grows linearly with the attempt number, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(attempt)
	if delay > max {
		delay = max
	}
	return delay
}

func (c *Client) fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	q.Set("period2", fmt.Sprintf("%d", end.Unix()))
	q.Set("interval", "1m")
	q.Set("includePrePost", "true")

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.config.BaseURL, url.PathEscape(symbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("chart API error %s: %s", payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("empty chart result for %s", symbol)
	}

	result := payload.Chart.Result[0]
	qt := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, cl, v := at(qt.Open, i), at(qt.High, i), at(qt.Low, i), at(qt.Close, i), at(qt.Volume, i)
		if o == nil || h == nil || l == nil || cl == nil {
			continue
		}
		openTime := time.Unix(ts, 0).UTC()
		if openTime.Before(start) || !openTime.Before(end) {
			continue
		}
		bar := domain.Bar{
			Timestamp: openTime,
			Open:      *o,
			High:      *h,
			Low:       *l,
			Close:     *cl,
		}
		if v != nil {
			bar.Volume = *v
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("yahoo chart fetched")
	return bars, nil
}

func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}

func (c *Client) Health(ctx context.Context) providers.Health {
	h := providers.Health{
		Provider:     c.Name(),
		CircuitState: c.breaker.State(),
		Healthy:      c.breaker.Healthy(),
		CheckedAt:    time.Now().UTC(),
	}
	if last := c.lastSuccess.Load(); last > 0 {
		h.Detail = fmt.Sprintf("last fetch %s", time.Unix(0, last).UTC().Format(time.RFC3339))
	} else {
		h.Detail = "no successful fetch yet"
	}
	return h
}
