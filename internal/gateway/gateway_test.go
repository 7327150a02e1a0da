package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-dashboardv1/internal/metrics"
	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/snapshot"
	"indicator-dashboardv1/internal/store/sqlite"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// ── fakes ──

type memStore struct {
	mu      sync.Mutex
	configs map[string]model.IndicatorConfig
	saveErr error
	saves   int
}

func newMemStore() *memStore { return &memStore{configs: map[string]model.IndicatorConfig{}} }

func (s *memStore) LoadConfig(_ context.Context, symbol string) (model.IndicatorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[symbol]
	if !ok {
		return model.IndicatorConfig{}, fmt.Errorf("config %s: %w", symbol, sqlite.ErrNotFound)
	}
	return cfg, nil
}

func (s *memStore) SaveConfig(_ context.Context, symbol string, cfg model.IndicatorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.configs[symbol] = cfg
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]model.IndicatorConfig
	err     error
	deletes int
}

func newMemCache() *memCache { return &memCache{entries: map[string]model.IndicatorConfig{}} }

func (c *memCache) Get(_ context.Context, symbol string) (model.IndicatorConfig, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return model.IndicatorConfig{}, false, c.err
	}
	cfg, ok := c.entries[symbol]
	return cfg, ok, nil
}

func (c *memCache) Set(_ context.Context, symbol string, cfg model.IndicatorConfig, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.entries[symbol] = cfg
	return nil
}

func (c *memCache) Delete(_ context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	if c.err != nil {
		return c.err
	}
	delete(c.entries, symbol)
	return nil
}

type fakeCandles struct {
	candles []model.Candle // oldest-first
	err     error
}

func (f *fakeCandles) LatestCandles(_ context.Context, _, _ string, n int) ([]model.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n < len(f.candles) {
		return f.candles[len(f.candles)-n:], nil
	}
	return f.candles, nil
}

type fakePrices struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (f *fakePrices) LastPrice(_ context.Context, symbol string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, false, f.err
	}
	px, ok := f.prices[symbol]
	return px, ok, nil
}

func history(n int) []model.Candle {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, n)
	for i := range out {
		mid := 100 + 5*math.Sin(float64(i)/10)
		out[i] = model.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: mid, High: mid + 1, Low: mid - 1, Close: mid + 0.2}
	}
	return out
}

// ── config service ──

func TestConfigService_DefaultsAndCache(t *testing.T) {
	store, cache := newMemStore(), newMemCache()
	svc := NewConfigService(store, cache, time.Minute, quiet)
	ctx := context.Background()

	cfg, err := svc.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultIndicatorConfig(), cfg)
	assert.Empty(t, cache.entries, "defaults are not cached")

	stored := model.DefaultIndicatorConfig()
	stored.RSIPeriod1 = 30
	store.configs["BTCUSDT"] = stored
	cfg, err = svc.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RSIPeriod1)
	assert.Equal(t, stored, cache.entries["BTCUSDT"], "read-through fills the cache")

	// A cached value wins over the store.
	delete(store.configs, "BTCUSDT")
	cfg, err = svc.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RSIPeriod1)
}

func TestConfigService_UpdateInvalidatesCache(t *testing.T) {
	store, cache := newMemStore(), newMemCache()
	svc := NewConfigService(store, cache, time.Minute, quiet)
	ctx := context.Background()
	cache.entries["BTCUSDT"] = model.DefaultIndicatorConfig()

	cfg, err := svc.Update(ctx, "BTCUSDT", []byte(`{"rsi_period1": 24}`))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.RSIPeriod1)
	assert.Equal(t, 1, store.saves)
	assert.NotContains(t, cache.entries, "BTCUSDT")

	got, err := svc.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 24, got.RSIPeriod1)
}

func TestConfigService_UpdateRejectsInvalid(t *testing.T) {
	store := newMemStore()
	svc := NewConfigService(store, nil, 0, quiet)

	_, err := svc.Update(context.Background(), "BTCUSDT", []byte(`{"boll_period": 0}`))
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	_, err = svc.Update(context.Background(), "BTCUSDT", []byte(`{"boll_period": "x"}`))
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	assert.Zero(t, store.saves)
}

func TestConfigService_CacheFailureIsNotFatal(t *testing.T) {
	store, cache := newMemStore(), newMemCache()
	cache.err = errors.New("circuit open")
	svc := NewConfigService(store, cache, time.Minute, quiet)

	cfg, err := svc.Update(context.Background(), "ETHUSDT", []byte(`{"env_deviation": 1.5}`))
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.EnvDeviation)

	got, err := svc.Get(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.EnvDeviation)
}

// ── hub ──

func TestHub_DropsForSlowClients(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hub := NewHub(m, quiet)
	topic := Topic{Symbol: "BTCUSDT", Interval: "1h"}
	c := &Client{id: "c1", send: make(chan []byte, 1), hub: hub, topic: topic}
	hub.register(c)

	sent, dropped := hub.Broadcast(topic, []byte("a"))
	assert.Equal(t, 1, sent)
	assert.Zero(t, dropped)
	sent, dropped = hub.Broadcast(topic, []byte("b"))
	assert.Zero(t, sent)
	assert.Equal(t, 1, dropped)

	// Unwatched topics are not broadcast to or cached.
	sent, _ = hub.Broadcast(Topic{Symbol: "ETHUSDT", Interval: "1h"}, []byte("x"))
	assert.Zero(t, sent)

	assert.Equal(t, []Topic{topic}, hub.Topics())
	hub.unregister(c)
	hub.unregister(c)
	assert.Empty(t, hub.Topics())
	assert.Zero(t, hub.ClientCount())
	_, open := <-c.send
	assert.True(t, open, "queued message still readable")
	_, open = <-c.send
	assert.False(t, open)
}

func TestHub_ReplaysLatest(t *testing.T) {
	hub := NewHub(nil, quiet)
	topic := Topic{Symbol: "BTCUSDT", Interval: "1h"}
	first := &Client{id: "a", send: make(chan []byte, 4), hub: hub, topic: topic}
	hub.register(first)
	hub.Broadcast(topic, []byte("snap"))

	late := &Client{id: "b", send: make(chan []byte, 4), hub: hub, topic: topic}
	hub.register(late)
	select {
	case msg := <-late.send:
		assert.Equal(t, "snap", string(msg))
	default:
		t.Fatal("latest snapshot not replayed")
	}
}

// ── HTTP + websocket ──

type fixture struct {
	srv     *httptest.Server
	hub     *Hub
	store   *memStore
	candles *fakeCandles
	prices  *fakePrices
	pub     *Publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	hub := NewHub(m, quiet)
	store := newMemStore()
	configs := NewConfigService(store, newMemCache(), time.Minute, quiet)
	candles := &fakeCandles{candles: history(200)}
	prices := &fakePrices{prices: map[string]float64{}}
	health := metrics.NewHealthStatus()
	pub := NewPublisher(hub, candles, configs, snapshot.NewBuilder(), PublisherOptions{
		Metrics: m,
		Health:  health,
		Prices:  prices,
		Logger:  quiet,
	})

	router := NewRouter(RouterDeps{
		Hub:     hub,
		Configs: configs,
		Candles: candles,
		Health:  health,
		Metrics: http.NotFoundHandler(),
		Stats:   m,
		Logger:  quiet,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: hub, store: store, candles: candles, prices: prices, pub: pub}
}

func TestAPI_Config(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/config?symbol=btcusdt")
	require.NoError(t, err)
	var cfg model.IndicatorConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.DefaultIndicatorConfig(), cfg)
	assert.NotEmpty(t, resp.Header.Get(traceIDHeader))

	resp, err = http.Post(f.srv.URL+"/api/config?symbol=btcusdt", "application/json", strings.NewReader(`{"macd_fast1": 24}`))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 24, cfg.MACDFast1)
	assert.Equal(t, 24, f.store.configs["BTCUSDT"].MACDFast1, "symbol is normalized")

	resp, err = http.Post(f.srv.URL+"/api/config?symbol=BTCUSDT", "application/json", strings.NewReader(`{"rsi_period1": -1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.store.saveErr = errors.New("disk full")
	resp, err = http.Post(f.srv.URL+"/api/config?symbol=BTCUSDT", "application/json", strings.NewReader(`{"rsi_period1": 12}`))
	require.NoError(t, err)
	var e errorOut
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, e.Error, "disk full")
}

func TestAPI_Candles(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/candles?symbol=BTCUSDT&interval=1h&limit=3")
	require.NoError(t, err)
	var out []CandleOut
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.Len(t, out, 3)
	assert.Equal(t, f.candles.candles[199].Time.Format(time.RFC3339), out[2].TS)

	resp, err = http.Get(f.srv.URL + "/api/candles?interval=7x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/config", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *model.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	snap, err := model.Decode(data)
	require.NoError(t, err)
	return snap
}

func TestWebsocket_PublishAndReplay(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f, "symbol=btcusdt&interval=1h")

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []Topic{{Symbol: "BTCUSDT", Interval: "1h"}}, f.hub.Topics())

	assert.Equal(t, 1, f.pub.PublishOnce(context.Background()))
	snap := readSnapshot(t, conn)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, "1h", snap.Interval)
	n, _ := model.CandlesForDays(historyDays, "1h")
	assert.Equal(t, n, snap.Len())
	require.NoError(t, snap.Validate())

	late := dialWS(t, f, "symbol=BTCUSDT")
	replayed := readSnapshot(t, late)
	assert.Equal(t, snap.Price, replayed.Price)

	conn.Close()
	late.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublisher_SkipsAndCountsFailures(t *testing.T) {
	f := newFixture(t)
	dialWS(t, f, "symbol=ETHUSDT&interval=4h")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.candles.candles = nil
	assert.Zero(t, f.pub.PublishOnce(context.Background()), "no history yet")

	f.candles.err = errors.New("redis down")
	assert.Zero(t, f.pub.PublishOnce(context.Background()))
}

func TestPublisher_LivePrice(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f, "symbol=BTCUSDT&interval=1h")
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	newestClose := f.candles.candles[len(f.candles.candles)-1].Close

	require.Equal(t, 1, f.pub.PublishOnce(context.Background()))
	assert.Equal(t, newestClose, readSnapshot(t, conn).Price, "no trade yet")

	f.prices.mu.Lock()
	f.prices.prices["BTCUSDT"] = 70123.5
	f.prices.mu.Unlock()
	require.Equal(t, 1, f.pub.PublishOnce(context.Background()))
	assert.Equal(t, 70123.5, readSnapshot(t, conn).Price)

	f.prices.mu.Lock()
	f.prices.err = errors.New("redis down")
	f.prices.mu.Unlock()
	require.Equal(t, 1, f.pub.PublishOnce(context.Background()), "price lookup failure is not fatal")
	assert.Equal(t, newestClose, readSnapshot(t, conn).Price)
}

func TestPublisher_StartRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.pub.Start(context.Background(), "every now and then"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, bytes.Contains(body, []byte(`"status"`)))
}
