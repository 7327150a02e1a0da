package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"indicator-dashboardv1/internal/model"
)

// DefaultPriceTTL bounds how long a last trade stays visible. A stalled
// exchange feed lets the key expire and snapshots fall back to the newest
// close.
const DefaultPriceTTL = 30 * time.Second

// PriceStore keeps the last trade of each symbol under "price:<symbol>".
type PriceStore struct {
	client goredis.Cmdable
	cb     *CircuitBreaker
	ttl    time.Duration
}

// NewPriceStore wraps an open client and breaker.
func NewPriceStore(client goredis.Cmdable, cb *CircuitBreaker, ttl time.Duration) *PriceStore {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceStore{client: client, cb: cb, ttl: ttl}
}

// PriceKey returns the last-trade key of symbol.
func PriceKey(symbol string) string { return "price:" + symbol }

// SetTrades stores the given trades in one pipeline.
func (p *PriceStore) SetTrades(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	err := p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		for _, t := range trades {
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			pipe.Set(ctx, PriceKey(t.Symbol), data, p.ttl)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis set prices (%d): %w", len(trades), err)
	}
	return nil
}

// LastTrade returns ok=false when the key is missing or expired.
func (p *PriceStore) LastTrade(ctx context.Context, symbol string) (model.Trade, bool, error) {
	var raw string
	err := p.cb.Execute(func() error {
		var err error
		raw, err = p.client.Get(ctx, PriceKey(symbol)).Result()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return model.Trade{}, false, nil
	}
	if err != nil {
		return model.Trade{}, false, fmt.Errorf("redis get price %s: %w", symbol, err)
	}
	t, err := decodeTrade(raw)
	if err != nil {
		return model.Trade{}, false, fmt.Errorf("redis decode price %s: %w", symbol, err)
	}
	return t, true, nil
}

// LastPrice implements model.PriceSource.
func (p *PriceStore) LastPrice(ctx context.Context, symbol string) (float64, bool, error) {
	t, ok, err := p.LastTrade(ctx, symbol)
	if err != nil || !ok {
		return 0, false, err
	}
	return t.Price, true, nil
}

func decodeTrade(raw string) (model.Trade, error) {
	var t model.Trade
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return t, err
	}
	if t.Price <= 0 {
		return t, fmt.Errorf("non-positive price %v", t.Price)
	}
	return t, nil
}
