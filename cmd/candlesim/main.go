// cmd/candlesim feeds the candle stores.
//
// In walk mode (default) every SIM_SYMBOLS x SIM_INTERVALS series gets a
// random walk; each SIM_STEP tick closes one bar per series. Series with no
// stored history are first seeded with eight days of bars. In replay mode
// the stored SQLite history is re-emitted into Redis at SIM_REPLAY_SPEED.
// In binance mode the series follow the live Binance spot market: history
// and gaps come from REST klines, closed bars from the kline stream, and the
// last trade of every symbol is kept in Redis for the snapshot price.
//
// Bars go to SQLite (durable) and Redis (the streams the gateway reads).
// On startup Redis is backfilled from SQLite so a flushed Redis recovers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"indicator-dashboardv1/config"
	"indicator-dashboardv1/internal/bus"
	"indicator-dashboardv1/internal/logger"
	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/replay"
	redisstore "indicator-dashboardv1/internal/store/redis"
	sqlitestore "indicator-dashboardv1/internal/store/sqlite"
)

const (
	seedDays  = 8
	chanDepth = 5000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	log := logger.Init("candlesim", logger.Options{Level: logger.ParseLevel(cfg.LogLevel), File: cfg.LogFile})
	log.Info("starting", "mode", cfg.SimMode, "symbols", cfg.SimSymbols, "intervals", cfg.SimIntervals)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Stores ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}, log)
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath, log)
	if err != nil {
		log.Error("sqlite reader init failed", "error", err)
		os.Exit(1)
	}
	defer sqlReader.Close()

	client, err := redisstore.Open(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	cb := redisstore.NewCircuitBreaker(redisstore.BreakerConfig{})
	cb.OnStateChange(func(from, to redisstore.State) {
		log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	})
	streams := redisstore.NewBufferedWriter(ctx, redisstore.NewWriter(client, log), cb, 0, log)
	defer streams.Close()

	// ---- Backfill Redis from SQLite ----
	n, err := replay.Backfill(ctx, sqlReader, redisstore.NewReader(client, log), streams,
		func(interval string) int { return int(redisstore.StreamMaxLen(interval)) }, log)
	if err != nil {
		log.Warn("backfill incomplete", "error", err)
	}
	log.Info("backfill done", "bars", n)

	if cfg.SimMode == "replay" {
		runReplay(ctx, sqlReader, streams, cfg.SimSpeed, log)
		return
	}

	if cfg.SimMode == "binance" {
		prices := redisstore.NewPriceStore(client, cb, cfg.LivePriceTTL)
		if err := runBinance(ctx, cfg, sqlWriter, streams, prices, log); err != nil {
			log.Error("binance feed", "error", err)
			os.Exit(1)
		}
		return
	}

	// ---- Walk: one producer, fanned out to both stores ----
	pipe := startPipeline(ctx, sqlWriter, streams, log)
	emit := func(bars []model.Bar) { _ = pipe.send(ctx, bars) }

	walkers, err := startWalkers(ctx, cfg.SimSymbols, cfg.SimIntervals, sqlWriter, sqlReader, log)
	if err != nil {
		log.Error("walkers", "error", err)
		os.Exit(1)
	}
	seed := writeDirect(sqlWriter, streams, log)
	for _, s := range walkers {
		if len(s.seeded) == 0 {
			continue
		}
		if err := seed(ctx, s.seeded); err != nil {
			log.Error("seed sqlite", "error", err)
			os.Exit(1)
		}
		s.seeded = nil
	}

	c := cron.New(cron.WithSeconds())
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		bars := make([]model.Bar, 0, len(walkers))
		for _, s := range walkers {
			bars = append(bars, s.w.bar())
		}
		emit(bars)
	}))
	if _, err := c.AddJob(cfg.SimStep, job); err != nil {
		log.Error("invalid SIM_STEP", "step", cfg.SimStep, "error", err)
		os.Exit(1)
	}
	c.Start()
	log.Info("simulating", "series", len(walkers), "step", cfg.SimStep)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	<-c.Stop().Done()
	pipe.close()
	log.Info("shutdown complete")
}

// pipeline fans one bar channel out to the SQLite and Redis writers.
type pipeline struct {
	input chan model.Bar
	wg    sync.WaitGroup
}

func startPipeline(ctx context.Context, sqlWriter, streams model.BarWriter, log *slog.Logger) *pipeline {
	p := &pipeline{input: make(chan model.Bar, chanDepth)}
	fanout := bus.New(chanDepth, log)
	sqlCh := fanout.Subscribe()
	redisCh := fanout.Subscribe()
	fanout.OnDrop = func(idx int, b model.Bar) {
		log.Warn("store channel full, bar dropped", "subscriber", idx, "series", b.Key())
	}
	p.wg.Add(3)
	go func() { defer p.wg.Done(); fanout.Run(ctx, p.input) }()
	go func() { defer p.wg.Done(); sqlWriter.Run(ctx, sqlCh) }()
	go func() { defer p.wg.Done(); streams.Run(ctx, redisCh) }()
	return p
}

// send blocks until every bar is queued or ctx ends.
func (p *pipeline) send(ctx context.Context, bars []model.Bar) error {
	for _, b := range bars {
		select {
		case p.input <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// close stops the pipeline once every queued bar is written. No send may
// follow.
func (p *pipeline) close() {
	close(p.input)
	p.wg.Wait()
}

// writeDirect stores a batch synchronously. History batches can exceed the
// channel depth, so they bypass the pipeline.
func writeDirect(sqlWriter, streams model.BarWriter, log *slog.Logger) func(context.Context, []model.Bar) error {
	return func(ctx context.Context, bars []model.Bar) error {
		if err := sqlWriter.WriteBars(ctx, bars); err != nil {
			return err
		}
		if err := streams.WriteBars(ctx, bars); err != nil {
			log.Warn("redis history write", "bars", len(bars), "error", err)
		}
		return nil
	}
}

type series struct {
	w      *walker
	seeded []model.Bar
}

// startWalkers resumes each series after its newest stored bar, or seeds it.
func startWalkers(ctx context.Context, symbols, intervals []string, tail replay.Tail, history replay.History, log *slog.Logger) ([]*series, error) {
	var out []*series
	now := time.Now().UTC()
	for i, sym := range symbols {
		for j, iv := range intervals {
			w, err := newWalker(sym, iv, now.UnixNano()+int64(i*len(intervals)+j))
			if err != nil {
				return nil, err
			}
			s := &series{w: w}
			last, ok, err := tail.LastTime(ctx, sym, iv)
			if err != nil {
				return nil, err
			}
			if ok {
				candles, err := history.ReadCandles(ctx, sym, iv, last.Add(-time.Nanosecond), 1)
				if err != nil {
					return nil, err
				}
				closeP := 0.0
				if len(candles) > 0 {
					closeP = candles[0].Close
				}
				w.resume(last, closeP)
				log.Info("series resumed", "series", model.TopicKey(sym, iv), "after", last)
			} else {
				n, err := model.CandlesForDays(seedDays, iv)
				if err != nil {
					return nil, err
				}
				s.seeded = w.seed(now, n)
				log.Info("series seeded", "series", model.TopicKey(sym, iv), "bars", n)
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func runReplay(ctx context.Context, src replay.History, streams *redisstore.BufferedWriter, speed float64, log *slog.Logger) {
	ch := make(chan model.Bar, chanDepth)
	done := make(chan struct{})
	go func() {
		defer close(done)
		streams.Run(ctx, ch)
	}()
	if err := replay.New(src, log).Run(ctx, time.Time{}, speed, ch); err != nil && ctx.Err() == nil {
		log.Error("replay failed", "error", err)
	}
	close(ch)
	<-done
	log.Info("shutdown complete")
}
