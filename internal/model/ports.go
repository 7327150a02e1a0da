package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the gateway, simulator and replay from the
// concrete stores (Redis, SQLite).

// BarWriter persists closed bars.
type BarWriter interface {
	// Run reads bars from ch and writes them.
	// Blocks until ctx is cancelled or ch is closed.
	Run(ctx context.Context, ch <-chan Bar)

	// WriteBars writes a batch synchronously.
	WriteBars(ctx context.Context, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// CandleSource returns recent history for one series.
type CandleSource interface {
	// LatestCandles returns up to n of the newest candles, oldest-first.
	LatestCandles(ctx context.Context, symbol, interval string, n int) ([]Candle, error)
}

// ConfigStore is durable per-symbol config storage.
type ConfigStore interface {
	// LoadConfig returns the stored config, or an error wrapping a
	// not-found sentinel when the symbol has none.
	LoadConfig(ctx context.Context, symbol string) (IndicatorConfig, error)

	// SaveConfig upserts the config for symbol.
	SaveConfig(ctx context.Context, symbol string, cfg IndicatorConfig) error
}

// ConfigCache is a best-effort cache in front of a ConfigStore.
type ConfigCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, symbol string) (cfg IndicatorConfig, ok bool, err error)
	Set(ctx context.Context, symbol string, cfg IndicatorConfig, ttl time.Duration) error
	Delete(ctx context.Context, symbol string) error
}

// PriceSource returns the live last-trade price of a symbol.
type PriceSource interface {
	// LastPrice returns ok=false when no recent trade is known.
	LastPrice(ctx context.Context, symbol string) (price float64, ok bool, err error)
}
