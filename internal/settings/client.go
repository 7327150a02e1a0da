// Package settings is the client of the gateway config service. It reads and
// partially updates the per-symbol indicator configuration.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"indicator-dashboardv1/internal/model"
)

const configPath = "/api/config"

// StatusError is a non-2xx answer from the config service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("config service: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("config service: %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Options tunes the client. Zero values take the defaults.
type Options struct {
	Timeout         time.Duration
	RequestsPerSec  float64
	Burst           int
	MaxElapsedTime  time.Duration
	InitialInterval time.Duration
}

func (o *Options) defaults() {
	if o.Timeout == 0 {
		o.Timeout = 5 * time.Second
	}
	if o.RequestsPerSec == 0 {
		o.RequestsPerSec = 5
	}
	if o.Burst == 0 {
		o.Burst = 5
	}
	if o.MaxElapsedTime == 0 {
		o.MaxElapsedTime = 10 * time.Second
	}
	if o.InitialInterval == 0 {
		o.InitialInterval = backoff.DefaultInitialInterval
	}
}

// Client talks to the config service.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
	log     *slog.Logger
}

// NewClient creates a client for the service at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, opts Options, log *slog.Logger) (*Client, error) {
	opts.defaults()
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("settings: parse url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("settings: unsupported scheme %q", base.Scheme)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
		opts:    opts,
		log:     log.With("component", "settings"),
	}, nil
}

// Get returns the stored config for symbol.
func (c *Client) Get(ctx context.Context, symbol string) (model.IndicatorConfig, error) {
	return c.do(ctx, http.MethodGet, symbol, nil)
}

// Update sends a partial config for symbol and returns the merged result.
func (c *Client) Update(ctx context.Context, symbol string, patch []byte) (model.IndicatorConfig, error) {
	if !json.Valid(patch) {
		return model.IndicatorConfig{}, fmt.Errorf("settings: %w: patch is not JSON", model.ErrInvalidConfig)
	}
	return c.do(ctx, http.MethodPost, symbol, patch)
}

func (c *Client) endpoint(symbol string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + configPath
	q := url.Values{}
	q.Set("symbol", symbol)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, symbol string, body []byte) (model.IndicatorConfig, error) {
	var cfg model.IndicatorConfig
	endpoint := c.endpoint(symbol)

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("config request failed", "method", method, "symbol", symbol, "error", err)
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode < 500 {
				return backoff.Permanent(serr)
			}
			return serr
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding config: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxElapsedTime = c.opts.MaxElapsedTime
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return model.IndicatorConfig{}, fmt.Errorf("settings: %s %s: %w", method, symbol, err)
	}
	return cfg, nil
}
