// Package binance pulls spot market data from Binance: closed klines over
// REST for history and gap repair, and a combined websocket stream of kline
// and trade events for live bars and the last traded price.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"indicator-dashboardv1/internal/model"
)

const (
	DefaultRESTURL = "https://api.binance.com"
	klinesPath     = "/api/v3/klines"

	// maxKlinesPerRequest is the largest page /api/v3/klines serves.
	maxKlinesPerRequest = 1000
)

// intervals Binance serves klines at.
var intervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// SupportedInterval reports whether Binance serves klines at interval.
func SupportedInterval(interval string) bool { return intervals[interval] }

// Options tunes the REST client. Zero values take the defaults.
type Options struct {
	// RequestsPerSec caps the request rate. A kline request costs 2 weight
	// of the 6000/min allowance. Defaults to 10.
	RequestsPerSec float64
	Burst          int           // defaults to 5
	Timeout        time.Duration // per request, defaults to 15s

	// Retry policy for 5xx, 429 and transport errors.
	InitialInterval time.Duration // defaults to 500ms
	MaxElapsedTime  time.Duration // defaults to 30s
}

func (o *Options) defaults() {
	if o.RequestsPerSec <= 0 {
		o.RequestsPerSec = 10
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxElapsedTime <= 0 {
		o.MaxElapsedTime = 30 * time.Second
	}
}

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("binance: status %d", e.Status)
	}
	return fmt.Sprintf("binance: status %d: %s (code %d)", e.Status, e.Msg, e.Code)
}

// Client reads klines from the public REST API.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
	log     *slog.Logger
	now     func() time.Time
}

// NewClient creates a client for baseURL, e.g. "https://api.binance.com".
func NewClient(baseURL string, opts Options, log *slog.Logger) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("binance: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("binance: unsupported scheme %q", base.Scheme)
	}
	opts.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
		opts:    opts,
		log:     log.With("component", "binance-rest"),
		now:     time.Now,
	}, nil
}

// kline is one parsed row; closeTime tells closed bars from the forming one.
type kline struct {
	bar       model.Bar
	closeTime time.Time
}

// ClosedKlines returns the closed bars of a series that open after `after`,
// oldest-first. At most n bars are returned; when more are available the
// newest n win. A zero after fetches the newest n bars.
func (c *Client) ClosedKlines(ctx context.Context, symbol, interval string, after time.Time, n int) ([]model.Bar, error) {
	if !SupportedInterval(interval) {
		return nil, fmt.Errorf("binance: unsupported interval %q", interval)
	}
	minutes, err := model.IntervalMinutes(interval)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	step := time.Duration(minutes) * time.Minute
	now := c.now()

	start := now.Truncate(step).Add(-time.Duration(n) * step)
	if !after.IsZero() && after.After(start) {
		start = after.Add(step)
	}

	var out []model.Bar
	for {
		page, err := c.klines(ctx, symbol, interval, start, maxKlinesPerRequest)
		if err != nil {
			return nil, err
		}
		forming := false
		for _, k := range page {
			if !k.closeTime.Before(now) {
				forming = true
				break
			}
			if !after.IsZero() && !k.bar.Time.After(after) {
				continue
			}
			out = append(out, k.bar)
		}
		if forming || len(page) < maxKlinesPerRequest {
			break
		}
		start = page[len(page)-1].bar.Time.Add(step)
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// klines fetches one page starting at start.
func (c *Client) klines(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]kline, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + klinesPath
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	endpoint := u.String()

	var body []byte
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("klines request failed", "symbol", symbol, "interval", interval, "error", err)
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return fmt.Errorf("reading klines: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(data, apiErr)
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		body = data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxElapsedTime = c.opts.MaxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", symbol, interval, err)
	}
	return parseKlines(symbol, interval, body)
}

// parseKlines decodes the array-of-arrays kline format:
// [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func parseKlines(symbol, interval string, body []byte) ([]kline, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}
	out := make([]kline, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, fmt.Errorf("binance: kline %d has %d fields", i, len(row))
		}
		var openMs, closeMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			return nil, fmt.Errorf("binance: kline %d open time: %w", i, err)
		}
		if err := json.Unmarshal(row[6], &closeMs); err != nil {
			return nil, fmt.Errorf("binance: kline %d close time: %w", i, err)
		}
		var ohlcv [5]float64
		for j := range ohlcv {
			v, err := quoted(row[1+j])
			if err != nil {
				return nil, fmt.Errorf("binance: kline %d field %d: %w", i, 1+j, err)
			}
			ohlcv[j] = v
		}
		out = append(out, kline{
			bar: model.Bar{
				Symbol:   symbol,
				Interval: interval,
				Candle: model.Candle{
					Time:   time.UnixMilli(openMs).UTC(),
					Open:   ohlcv[0],
					High:   ohlcv[1],
					Low:    ohlcv[2],
					Close:  ohlcv[3],
					Volume: ohlcv[4],
				},
			},
			closeTime: time.UnixMilli(closeMs).UTC(),
		})
	}
	return out, nil
}

// quoted parses a decimal that Binance sends as a JSON string.
func quoted(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
