// Package redis holds the hot stores: per-series candle streams the gateway
// computes snapshots from, and the read-through indicator config cache.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"indicator-dashboardv1/internal/model"
)

const (
	// Streams keep a little more than the week the gateway reads.
	streamRetentionDays = 8
	minStreamLen        = 200
	pingTimeout         = 5 * time.Second
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Open creates a client and pings the server.
func Open(cfg Config, log *slog.Logger) (*goredis.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("connected", "component", "redis", "addr", cfg.Addr)
	return client, nil
}

// StreamKey returns the candle stream of a series: "candles:<symbol>:<interval>".
func StreamKey(symbol, interval string) string {
	return "candles:" + symbol + ":" + interval
}

// StreamMaxLen returns the approximate MAXLEN for a series' stream.
func StreamMaxLen(interval string) int64 {
	n, err := model.CandlesForDays(streamRetentionDays, interval)
	if err != nil || n < minStreamLen {
		return minStreamLen
	}
	return int64(n)
}

// Writer appends closed bars to their candle streams.
type Writer struct {
	client goredis.Cmdable
	log    *slog.Logger
}

// NewWriter wraps an open client.
func NewWriter(client goredis.Cmdable, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{client: client, log: log.With("component", "redis-writer")}
}

// Run reads bars from ch and writes them one at a time.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-ch:
			if !ok {
				return
			}
			if err := w.WriteBars(ctx, []model.Bar{bar}); err != nil {
				w.log.Error("stream write failed", "series", bar.Key(), "error", err)
			}
		}
	}
}

// WriteBars appends bars to their streams in a single pipeline. Bars must be
// written in time order; XADD auto-IDs keep the stream in arrival order.
func (w *Writer) WriteBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	for i := range bars {
		b := &bars[i]
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(b.Symbol, b.Interval),
			MaxLen: StreamMaxLen(b.Interval),
			Approx: true,
			Values: map[string]interface{}{"data": string(b.Candle.JSON())},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis xadd (%d bars): %w", len(bars), err)
	}
	return nil
}

// Close is a no-op; the owner of the client closes it.
func (w *Writer) Close() error { return nil }
