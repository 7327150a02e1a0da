package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"indicator-dashboardv1/internal/model"
)

// Reader reads candle history back out of the streams.
type Reader struct {
	client goredis.Cmdable
	log    *slog.Logger
}

// NewReader wraps an open client.
func NewReader(client goredis.Cmdable, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{client: client, log: log.With("component", "redis-reader")}
}

// LatestCandles returns up to n of the newest candles of a series,
// oldest-first. Undecodable entries are skipped.
func (r *Reader) LatestCandles(ctx context.Context, symbol, interval string, n int) ([]model.Candle, error) {
	key := StreamKey(symbol, interval)
	msgs, err := r.client.XRevRangeN(ctx, key, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", key, err)
	}

	out := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		c, err := decodeEntry(msgs[i])
		if err != nil {
			r.log.Warn("skipping stream entry", "stream", key, "id", msgs[i].ID, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// LastTime returns the time of the newest candle in a series, or ok=false
// when the stream is empty.
func (r *Reader) LastTime(ctx context.Context, symbol, interval string) (time.Time, bool, error) {
	c, err := r.LatestCandles(ctx, symbol, interval, 1)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(c) == 0 {
		return time.Time{}, false, nil
	}
	return c[0].Time, true, nil
}

func decodeEntry(msg goredis.XMessage) (model.Candle, error) {
	var c model.Candle
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return c, fmt.Errorf("entry %s has no data field", msg.ID)
	}
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("entry %s: %w", msg.ID, err)
	}
	return c, nil
}
