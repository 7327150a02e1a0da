package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"indicator-dashboardv1/internal/model"
)

// Series identifies one stored candle series.
type Series struct {
	Symbol   string
	Interval string
}

// Reader provides read-only access to stored candles.
type Reader struct {
	db  *sql.DB
	log *slog.Logger
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string, log *slog.Logger) (*Reader, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log = log.With("component", "sqlite-reader")
	log.Info("opened database", "path", dbPath)
	return &Reader{db: db, log: log}, nil
}

// ReadCandles returns candles of one series newer than after, oldest-first.
// limit <= 0 returns all of them; otherwise the newest limit candles.
func (r *Reader) ReadCandles(ctx context.Context, symbol, interval string, after time.Time, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = -1
	}
	// Take the newest rows, then flip them back to ascending order.
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND interval = ? AND ts > ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, interval, after.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		var vol sql.NullFloat64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.Time = time.Unix(tsUnix, 0).UTC()
		c.Volume = vol.Float64
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LatestCandles returns up to n of the newest candles, oldest-first. It lets
// the gateway serve snapshots from SQLite when Redis is unavailable.
func (r *Reader) LatestCandles(ctx context.Context, symbol, interval string, n int) ([]model.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.ReadCandles(ctx, symbol, interval, time.Time{}, n)
}

// ListSeries returns every symbol/interval pair that has stored candles.
func (r *Reader) ListSeries(ctx context.Context) ([]Series, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT symbol, interval FROM candles ORDER BY symbol, interval
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list series: %w", err)
	}
	defer rows.Close()

	var out []Series
	for rows.Next() {
		var s Series
		if err := rows.Scan(&s.Symbol, &s.Interval); err != nil {
			return nil, fmt.Errorf("sqlite scan series: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
