package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"indicator-dashboardv1/internal/model"
)

// Tail reports the newest stored bar of a series.
type Tail interface {
	LastTime(ctx context.Context, symbol, interval string) (time.Time, bool, error)
}

// Sink receives bars in time order per series.
type Sink func(ctx context.Context, bars []model.Bar) error

// Source turns the exchange into the bar feed of the local stores. It
// remembers the newest bar handed out per series, so a bar that arrives both
// from the REST catch-up and from the kline stream is emitted once.
type Source struct {
	rest      *Client
	symbols   []string
	intervals []string
	depth     func(interval string) int
	log       *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewSource serves every symbol x interval. depth bounds how many bars a
// catch-up fetches for a series with no history.
func NewSource(rest *Client, symbols, intervals []string, depth func(interval string) int, log *slog.Logger) (*Source, error) {
	for _, iv := range intervals {
		if !SupportedInterval(iv) {
			return nil, fmt.Errorf("binance: unsupported interval %q", iv)
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		rest:      rest,
		symbols:   symbols,
		intervals: intervals,
		depth:     depth,
		log:       log.With("component", "binance-source"),
		last:      make(map[string]time.Time),
	}, nil
}

// Prime seeds the per-series positions from what the stores already hold.
func (s *Source) Prime(ctx context.Context, tail Tail) error {
	for _, sym := range s.symbols {
		for _, iv := range s.intervals {
			last, ok, err := tail.LastTime(ctx, sym, iv)
			if err != nil {
				return fmt.Errorf("binance: last stored bar of %s: %w", model.TopicKey(sym, iv), err)
			}
			if ok {
				s.mu.Lock()
				s.last[model.TopicKey(sym, iv)] = last
				s.mu.Unlock()
			}
		}
	}
	return nil
}

// Accept reports whether b is newer than every bar already emitted for its
// series, and records it if so.
func (s *Source) Accept(b model.Bar) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := b.Key()
	if last, ok := s.last[key]; ok && !b.Time.After(last) {
		return false
	}
	s.last[key] = b.Time
	return true
}

// Position returns the newest bar time emitted for a series.
func (s *Source) Position(symbol, interval string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.last[model.TopicKey(symbol, interval)]
	return t, ok
}

// CatchUp fetches every series' closed bars newer than its position and
// hands them to sink. A failing series does not stop the others.
func (s *Source) CatchUp(ctx context.Context, sink Sink) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, sym := range s.symbols {
		for _, iv := range s.intervals {
			after, _ := s.Position(sym, iv)
			bars, err := s.rest.ClosedKlines(ctx, sym, iv, after, s.depth(iv))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fresh := bars[:0]
			for _, b := range bars {
				if s.Accept(b) {
					fresh = append(fresh, b)
				}
			}
			if len(fresh) == 0 {
				continue
			}
			if err := sink(ctx, fresh); err != nil {
				// Rewind so the next catch-up retries the batch.
				s.rewind(model.TopicKey(sym, iv), fresh[len(fresh)-1].Time, after)
				errs = append(errs, fmt.Errorf("binance: store %s: %w", model.TopicKey(sym, iv), err))
				continue
			}
			total += len(fresh)
			s.log.Info("series caught up", "series", model.TopicKey(sym, iv), "bars", len(fresh), "after", after)
		}
	}
	return total, errors.Join(errs...)
}

// rewind moves a series back to prev unless a newer bar was emitted since.
func (s *Source) rewind(key string, failed, prev time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.last[key].Equal(failed) {
		return
	}
	if prev.IsZero() {
		delete(s.last, key)
		return
	}
	s.last[key] = prev
}
