// cmd/gateway serves indicator snapshots over websocket and the indicator
// config over REST.
//
// Candle history is read from the Redis streams candlesim writes, and the
// snapshot price from the last trade it stores when fed from Binance. When
// Redis is unreachable at startup the gateway serves straight from SQLite and
// runs without a config cache or live prices.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"indicator-dashboardv1/config"
	"indicator-dashboardv1/internal/gateway"
	"indicator-dashboardv1/internal/logger"
	"indicator-dashboardv1/internal/metrics"
	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/snapshot"
	redisstore "indicator-dashboardv1/internal/store/redis"
	sqlitestore "indicator-dashboardv1/internal/store/sqlite"
)

const (
	livenessInterval = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init("gateway", logger.Options{Level: logger.ParseLevel(cfg.LogLevel), File: cfg.LogFile})
	log.Info("starting", "addr", cfg.HTTPAddr, "schedule", cfg.PublishSchedule)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prom := metrics.New(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()

	// ---- SQLite: durable configs, fallback candles ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}, log)
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()

	// ---- Redis: candle streams + config cache ----
	var (
		candles model.CandleSource
		cache   model.ConfigCache
		prices  model.PriceSource
		rdb     goredis.Cmdable
	)
	client, err := redisstore.Open(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.Warn("redis unavailable, serving candles from sqlite", "error", err)
		reader, err := sqlitestore.NewReader(cfg.SQLitePath, log)
		if err != nil {
			log.Error("sqlite reader init failed", "error", err)
			os.Exit(1)
		}
		defer reader.Close()
		candles = reader
	} else {
		defer client.Close()
		rdb = client

		cb := redisstore.NewCircuitBreaker(redisstore.BreakerConfig{})
		cb.OnStateChange(func(from, to redisstore.State) {
			prom.CacheCircuitState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.CacheCircuitTrips.Inc()
			}
			log.Warn("config cache circuit breaker", "from", from.String(), "to", to.String())
		})
		cache = redisstore.NewConfigCache(client, cb)
		prices = redisstore.NewPriceStore(client, cb, cfg.LivePriceTTL)
		candles = redisstore.NewReader(client, log)
	}
	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), livenessInterval)

	// ---- Snapshot pipeline ----
	configs := gateway.NewConfigService(sqlWriter, cache, cfg.ConfigCacheTTL, log)
	hub := gateway.NewHub(prom, log)
	publisher := gateway.NewPublisher(hub, candles, configs, snapshot.NewBuilder(), gateway.PublisherOptions{
		Metrics: prom,
		Health:  health,
		Prices:  prices,
		Logger:  log,
	})
	if err := publisher.Start(ctx, cfg.PublishSchedule); err != nil {
		log.Error("publisher start failed", "error", err)
		os.Exit(1)
	}

	// ---- HTTP ----
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: gateway.NewRouter(gateway.RouterDeps{
			Hub:     hub,
			Configs: configs,
			Candles: candles,
			Health:  health,
			Metrics: promhttp.Handler(),
			Stats:   prom,
			Logger:  log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	publisher.Stop()
	log.Info("shutdown complete")
}
