package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-dashboardv1/internal/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// deadClient points at a port nothing listens on.
func deadClient(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStreamKey(t *testing.T) {
	assert.Equal(t, "candles:BTCUSDT:1h", StreamKey("BTCUSDT", "1h"))
}

func TestStreamMaxLen(t *testing.T) {
	// 8 days of 15m bars is 768, plus the 10% buffer.
	assert.Equal(t, int64(844), StreamMaxLen("15m"))
	assert.Equal(t, int64(minStreamLen), StreamMaxLen("1d"))
	assert.Equal(t, int64(minStreamLen), StreamMaxLen("bogus"))
}

func TestDecodeEntry(t *testing.T) {
	c := model.Candle{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5}
	got, err := decodeEntry(goredis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": string(c.JSON())}})
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = decodeEntry(goredis.XMessage{ID: "2-0", Values: map[string]interface{}{}})
	assert.Error(t, err)
	_, err = decodeEntry(goredis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestConfigCache_OpenBreakerShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	cache := NewConfigCache(deadClient(t), cb)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "BTCUSDT")
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, errors.Is(err, ErrCircuitOpen))
	assert.Equal(t, StateOpen, cb.CurrentState())

	_, ok, err = cache.Get(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ok)
	assert.ErrorIs(t, cache.Set(ctx, "BTCUSDT", model.DefaultIndicatorConfig(), time.Minute), ErrCircuitOpen)
	assert.ErrorIs(t, cache.Delete(ctx, "BTCUSDT"), ErrCircuitOpen)
}

func TestBufferedWriter_BuffersWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	buffered := 0
	bw := NewBufferedWriter(context.Background(), NewWriter(deadClient(t), quiet), cb, 2, quiet)
	bw.OnBuffer = func() { buffered++ }

	bar := func(i int) model.Bar {
		return model.Bar{Symbol: "BTCUSDT", Interval: "1h", Candle: model.Candle{Time: time.Unix(int64(i)*3600, 0).UTC()}}
	}
	ctx := context.Background()

	// The first write reaches Redis, fails and trips the breaker.
	assert.Error(t, bw.WriteBars(ctx, []model.Bar{bar(0)}))
	assert.Equal(t, 0, bw.PendingCount())

	require.NoError(t, bw.WriteBars(ctx, []model.Bar{bar(1), bar(2)}))
	require.NoError(t, bw.WriteBars(ctx, []model.Bar{bar(3)}))
	assert.Equal(t, 2, bw.PendingCount(), "oldest dropped beyond the limit")
	assert.Equal(t, 3, buffered)

	bw.mu.Lock()
	assert.Equal(t, bar(2).Time, bw.buffer[0].Time)
	bw.mu.Unlock()
}

func TestDecodeTrade(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got, err := decodeTrade(`{"symbol":"BTCUSDT","price":65001.5,"time":"2024-06-01T12:00:00Z"}`)
	require.NoError(t, err)
	assert.Equal(t, model.Trade{Symbol: "BTCUSDT", Price: 65001.5, Time: at}, got)

	_, err = decodeTrade(`{"symbol":"BTCUSDT","price":0}`)
	assert.Error(t, err)
	_, err = decodeTrade(`{`)
	assert.Error(t, err)
}

func TestPriceStore_OpenBreakerShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	prices := NewPriceStore(deadClient(t), cb, 0)
	ctx := context.Background()
	assert.Equal(t, "price:ETHUSDT", PriceKey("ETHUSDT"))

	_, ok, err := prices.LastPrice(ctx, "ETHUSDT")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, StateOpen, cb.CurrentState())

	err = prices.SetTrades(ctx, []model.Trade{{Symbol: "ETHUSDT", Price: 3200}})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.NoError(t, prices.SetTrades(ctx, nil))
}
