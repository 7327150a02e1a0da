// Package replay moves stored candle history between stores: Backfill tops
// up the Redis streams from SQLite on startup, and Replayer re-emits SQLite
// history at a configurable speed for demos.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"indicator-dashboardv1/internal/model"
	"indicator-dashboardv1/internal/store/sqlite"
)

const (
	backfillBatch = 500
	maxGap        = 5 * time.Second
)

// History is the durable side of a backfill or replay.
type History interface {
	ListSeries(ctx context.Context) ([]sqlite.Series, error)
	ReadCandles(ctx context.Context, symbol, interval string, after time.Time, limit int) ([]model.Candle, error)
}

// Tail reports the newest candle time already present in a store.
type Tail interface {
	LastTime(ctx context.Context, symbol, interval string) (time.Time, bool, error)
}

// Backfill copies, for every stored series, the candles newer than dst's
// tail into w. limit bounds how many candles per series are copied (the
// newest ones); limit <= 0 copies all of them. It returns the number of
// bars written.
func Backfill(ctx context.Context, src History, dst Tail, w model.BarWriter, limit func(interval string) int, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "backfill")

	series, err := src.ListSeries(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}

	total := 0
	for _, s := range series {
		after, _, err := dst.LastTime(ctx, s.Symbol, s.Interval)
		if err != nil {
			return total, fmt.Errorf("backfill %s: %w", model.TopicKey(s.Symbol, s.Interval), err)
		}
		n := 0
		if limit != nil {
			n = limit(s.Interval)
		}
		candles, err := src.ReadCandles(ctx, s.Symbol, s.Interval, after, n)
		if err != nil {
			return total, fmt.Errorf("backfill %s: %w", model.TopicKey(s.Symbol, s.Interval), err)
		}
		if len(candles) == 0 {
			continue
		}

		bars := make([]model.Bar, len(candles))
		for i, c := range candles {
			bars[i] = model.Bar{Symbol: s.Symbol, Interval: s.Interval, Candle: c}
		}
		for start := 0; start < len(bars); start += backfillBatch {
			end := min(start+backfillBatch, len(bars))
			if err := w.WriteBars(ctx, bars[start:end]); err != nil {
				return total, fmt.Errorf("backfill %s: %w", model.TopicKey(s.Symbol, s.Interval), err)
			}
			total += end - start
		}
		log.Info("series backfilled", "series", model.TopicKey(s.Symbol, s.Interval), "bars", len(bars), "after", after)
	}
	return total, nil
}

// Replayer re-emits stored candles in time order.
type Replayer struct {
	src History
	log *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer backed by src.
func New(src History, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	return &Replayer{src: src, log: log.With("component", "replay"), sleep: sleepCtx}
}

// Run replays every stored series (interleaved by time) into out.
// speed controls the playback rate: 1 is real time, 60 is a minute per
// second, 0 is as fast as possible. Gaps are capped at 5s. Only candles
// after from are replayed.
func (r *Replayer) Run(ctx context.Context, from time.Time, speed float64, out chan<- model.Bar) error {
	series, err := r.src.ListSeries(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	var bars []model.Bar
	for _, s := range series {
		candles, err := r.src.ReadCandles(ctx, s.Symbol, s.Interval, from, 0)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		for _, c := range candles {
			bars = append(bars, model.Bar{Symbol: s.Symbol, Interval: s.Interval, Candle: c})
		}
	}
	if len(bars) == 0 {
		r.log.Info("no candles to replay")
		return nil
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	r.log.Info("replay loaded", "bars", len(bars), "series", len(series), "speed", speed)

	var prev time.Time
	for i, b := range bars {
		if speed > 0 && !prev.IsZero() {
			if gap := b.Time.Sub(prev); gap > 0 {
				if err := r.sleep(ctx, min(time.Duration(float64(gap)/speed), maxGap)); err != nil {
					r.log.Info("replay cancelled", "emitted", i)
					return err
				}
			}
		}
		prev = b.Time

		select {
		case out <- b:
		case <-ctx.Done():
			r.log.Info("replay cancelled", "emitted", i)
			return ctx.Err()
		}
	}
	r.log.Info("replay completed", "bars", len(bars))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
