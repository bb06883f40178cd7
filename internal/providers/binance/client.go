// Package binance serves 1m klines over REST and streams closed
// candles over websocket for 24/7 crypto instruments.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/infra/breakers"
	"github.com/JGDev1215/OpenPredict/internal/cache"
	"github.com/JGDev1215/OpenPredict/internal/domain"
	"github.com/JGDev1215/OpenPredict/internal/net/ratelimit"
	"github.com/JGDev1215/OpenPredict/internal/providers"
)

// pageLimit is the venue's maximum klines per request.
const pageLimit = 1000

type Config struct {
	BaseURL        string        `json:"base_url"`
	StreamURL      string        `json:"stream_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RetryAttempts  int           `json:"retry_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay"`
	CacheTTL       time.Duration `json:"cache_ttl"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
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
		config.BaseURL = "https://api.binance.com"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 15 * time.Second
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
		config.RateLimitRPS = 5.0
	}
	if config.RateLimitBurst == 0 {
		config.RateLimitBurst = 10
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
		breaker: breakers.New("binance"),
		cache:   c,
		host:    host,
	}
}

func (c *Client) Name() string { return "binance" }

// Bars pages through the klines endpoint until [start, end) is covered.
// A seven-day 1m window is eleven pages; the limiter paces them.
func (c *Client) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	key := fmt.Sprintf("kl:binance:%s:1m:%d:%d", symbol, start.Unix(), end.Unix())
	if bars, ok := cache.GetBars(ctx, c.cache, key); ok {
		log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("binance klines cache hit")
		return bars, nil
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchAll(ctx, symbol, start, end)
	})
	if err != nil {
		return nil, err
	}
	bars := result.([]domain.Bar)

	cache.SetBars(ctx, c.cache, key, bars, c.config.CacheTTL)
	c.lastSuccess.Store(time.Now().UnixNano())
	return bars, nil
}

func (c *Client) fetchAll(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var out []domain.Bar
	cursor := start
	for cursor.Before(end) {
		page, err := c.fetchPageWithRetry(ctx, symbol, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		cursor = page[len(page)-1].Timestamp.Add(time.Minute)
	}
	log.Debug().Str("symbol", symbol).Int("bars", len(out)).Msg("binance klines fetched")
	return out, nil
}

func (c *Client) fetchPageWithRetry(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		if err := c.limiter.Wait(ctx, c.host); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		page, err := c.fetchPage(ctx, symbol, start, end)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if attempt == c.config.RetryAttempts {
			break
		}
		delay := c.config.RetryDelay << (attempt - 1)
		if delay > c.config.RetryMaxDelay {
			delay = c.config.RetryMaxDelay
		}
		log.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("binance klines fetch failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("binance klines fetch failed after %d attempts: %w", c.config.RetryAttempts, lastErr)
}

func (c *Client) fetchPage(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", "1m")
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
	q.Set("limit", strconv.Itoa(pageLimit))

	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", c.config.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
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

	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for _, row := range rows {
		bar, ok := parseKline(row)
		if !ok {
			continue
		}
		if bar.Timestamp.Before(start) || !bar.Timestamp.Before(end) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseKline reads one klines row: open time in ms followed by OHLCV
// as decimal strings.
func parseKline(row []any) (domain.Bar, bool) {
	if len(row) < 6 {
		return domain.Bar{}, false
	}
	ms, ok := row[0].(float64)
	if !ok {
		return domain.Bar{}, false
	}

	fields := make([]float64, 5)
	for i := 0; i < 5; i++ {
		s, ok := row[i+1].(string)
		if !ok {
			return domain.Bar{}, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, false
		}
		fields[i] = f
	}

	return domain.Bar{
		Timestamp: time.UnixMilli(int64(ms)).UTC(),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, true
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
