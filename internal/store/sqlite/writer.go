// Package sqlite is the durable store: candle history per symbol/interval and
// the per-symbol indicator configs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"indicator-dashboardv1/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	dsnOptions        = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
)

// ErrNotFound is returned when a symbol has no stored config.
var ErrNotFound = errors.New("sqlite: not found")

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/dashboard.db"
}

// Writer is the single-connection writer. It also serves config reads so a
// config is visible to the next request right after it is saved.
type Writer struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig, log *slog.Logger) (*Writer, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Writer{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (symbol, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_configs (
			symbol     TEXT    NOT NULL PRIMARY KEY,
			config     TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads bars from ch and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or ch is closed.
func (w *Writer) Run(ctx context.Context, ch <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// Use a fresh context so the final flush survives shutdown.
		if err := w.WriteBars(context.Background(), batch); err != nil {
			w.log.Error("batch insert failed", "bars", len(batch), "error", err)
		} else {
			w.log.Debug("committed bars", "bars", len(batch), "took", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case bar, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars upserts bars in a single transaction.
func (w *Writer) WriteBars(ctx context.Context, bars []model.Bar) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, b.Symbol, b.Interval, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert %s: %w", b.Key(), err)
		}
	}

	return tx.Commit()
}

// LastTime returns the newest stored bar time of a series, or ok=false.
func (w *Writer) LastTime(ctx context.Context, symbol, interval string) (time.Time, bool, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite last ts: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

// SaveConfig upserts the config for symbol.
func (w *Writer) SaveConfig(ctx context.Context, symbol string, cfg model.IndicatorConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("sqlite encode config: %w", err)
	}
	_, err = w.db.ExecContext(ctx, `
		INSERT INTO indicator_configs (symbol, config) VALUES (?, ?)
		ON CONFLICT(symbol) DO UPDATE SET config = excluded.config, updated_at = strftime('%s', 'now')
	`, symbol, string(data))
	if err != nil {
		return fmt.Errorf("sqlite save config %s: %w", symbol, err)
	}
	w.log.Info("saved config", "symbol", symbol)
	return nil
}

// LoadConfig returns the stored config for symbol or ErrNotFound.
func (w *Writer) LoadConfig(ctx context.Context, symbol string) (model.IndicatorConfig, error) {
	var raw string
	err := w.db.QueryRowContext(ctx, `SELECT config FROM indicator_configs WHERE symbol = ?`, symbol).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.IndicatorConfig{}, fmt.Errorf("config %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return model.IndicatorConfig{}, fmt.Errorf("sqlite load config %s: %w", symbol, err)
	}
	// Decode over the defaults so fields added later keep a sane value.
	cfg := model.DefaultIndicatorConfig()
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.IndicatorConfig{}, fmt.Errorf("sqlite decode config %s: %w", symbol, err)
	}
	return cfg, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
