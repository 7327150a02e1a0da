package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"indicator-dashboardv1/config"
	"indicator-dashboardv1/internal/exchange/binance"
	"indicator-dashboardv1/internal/model"
	redisstore "indicator-dashboardv1/internal/store/redis"
	sqlitestore "indicator-dashboardv1/internal/store/sqlite"
)

// runBinance follows the live market until ctx ends. History and every
// reconnect gap are filled from REST before the stream resumes, so each
// series is written in time order.
func runBinance(ctx context.Context, cfg *config.Config, sqlWriter *sqlitestore.Writer,
	streams *redisstore.BufferedWriter, prices *redisstore.PriceStore, log *slog.Logger) error {
	rest, err := binance.NewClient(cfg.BinanceRESTURL, binance.Options{}, log)
	if err != nil {
		return err
	}
	depth := func(interval string) int { return int(redisstore.StreamMaxLen(interval)) }
	src, err := binance.NewSource(rest, cfg.SimSymbols, cfg.SimIntervals, depth, log)
	if err != nil {
		return err
	}
	if err := src.Prime(ctx, sqlWriter); err != nil {
		return err
	}

	n, err := src.CatchUp(ctx, writeDirect(sqlWriter, streams, log))
	if err != nil {
		log.Warn("history incomplete", "error", err)
	}
	log.Info("history loaded", "bars", n)

	pipe := startPipeline(ctx, sqlWriter, streams, log)
	book := binance.NewTradeBook()

	stream, err := binance.NewStream(binance.StreamConfig{
		URL:       cfg.BinanceWSURL,
		Symbols:   cfg.SimSymbols,
		Intervals: cfg.SimIntervals,
	}, binance.Handlers{
		OnConnect: func(ctx context.Context) {
			n, err := src.CatchUp(ctx, pipe.send)
			if err != nil {
				log.Warn("gap repair incomplete", "error", err)
			}
			if n > 0 {
				log.Info("gap repaired", "bars", n)
			}
		},
		OnBar: func(b model.Bar) {
			if src.Accept(b) {
				_ = pipe.send(ctx, []model.Bar{b})
			}
		},
		OnTrade: book.Update,
	}, log)
	if err != nil {
		pipe.close()
		return err
	}

	c := cron.New(cron.WithSeconds())
	flush := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		trades := book.Drain()
		if err := prices.SetTrades(ctx, trades); err != nil {
			log.Warn("live prices not stored", "symbols", len(trades), "error", err)
		}
	}))
	if _, err := c.AddJob(cfg.PriceFlush, flush); err != nil {
		pipe.close()
		return fmt.Errorf("invalid PRICE_FLUSH %q: %w", cfg.PriceFlush, err)
	}
	c.Start()
	log.Info("following binance", "url", stream.Endpoint(), "price_flush", cfg.PriceFlush)

	stream.Run(ctx)

	log.Info("shutdown signal received, cleaning up")
	<-c.Stop().Done()
	pipe.close()
	log.Info("shutdown complete")
	return nil
}
