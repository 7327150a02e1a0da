package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"indicator-dashboardv1/internal/model"
)

const defaultMaxBuffered = 10000

// BufferedWriter writes bars through a circuit breaker. While the breaker is
// open, bars are held in memory and flushed in order once it closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context
	log    *slog.Logger

	mu     sync.Mutex
	buffer []model.Bar
	maxBuf int // oldest bars are dropped beyond this

	// OnBuffer is called when a bar is buffered (for metrics).
	OnBuffer func()
	// OnFlush is called after buffered bars are written.
	OnFlush func(count int)
}

// NewBufferedWriter wraps w. ctx bounds flushes triggered by the breaker.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int, log *slog.Logger) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = defaultMaxBuffered
	}
	if log == nil {
		log = slog.Default()
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		log:    log.With("component", "buffered-writer"),
		buffer: make([]model.Bar, 0, 256),
		maxBuf: maxBufferSize,
	}
	cb.OnStateChange(func(_, to State) {
		if to == StateClosed {
			go bw.flush()
		}
	})
	return bw
}

// Run reads bars from ch and writes them through the breaker.
// Blocks until ctx is cancelled or ch is closed.
func (bw *BufferedWriter) Run(ctx context.Context, ch <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-ch:
			if !ok {
				return
			}
			if err := bw.WriteBars(ctx, []model.Bar{bar}); err != nil {
				bw.log.Error("stream write failed", "series", bar.Key(), "error", err)
			}
		}
	}
}

// WriteBars writes bars, or buffers them while the breaker is open.
// Bars are also buffered while older ones wait, so order is kept.
func (bw *BufferedWriter) WriteBars(ctx context.Context, bars []model.Bar) error {
	if bw.PendingCount() > 0 && bw.cb.CurrentState() != StateClosed {
		bw.bufferBars(bars)
		return nil
	}
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteBars(ctx, bars)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferBars(bars)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferBars(bars []model.Bar) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	for _, b := range bars {
		if len(bw.buffer) >= bw.maxBuf {
			bw.buffer = bw.buffer[1:]
		}
		bw.buffer = append(bw.buffer, b)
		if bw.OnBuffer != nil {
			bw.OnBuffer()
		}
	}
}

// flush writes all buffered bars in one pipeline. On failure they are put
// back in front of anything buffered since.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]model.Bar, 0, 256)
	bw.mu.Unlock()

	if err := bw.writer.WriteBars(bw.ctx, toFlush); err != nil {
		bw.log.Error("flush failed", "bars", len(toFlush), "error", err)
		bw.mu.Lock()
		bw.buffer = append(toFlush, bw.buffer...)
		if over := len(bw.buffer) - bw.maxBuf; over > 0 {
			bw.buffer = bw.buffer[over:]
		}
		bw.mu.Unlock()
		return
	}

	bw.log.Info("flushed buffered bars", "bars", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered bars waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close flushes what it can.
func (bw *BufferedWriter) Close() error {
	if bw.cb.CurrentState() == StateClosed {
		bw.flush()
	}
	return nil
}
