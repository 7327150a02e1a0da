package binance

import (
	"sort"
	"sync"

	"indicator-dashboardv1/internal/model"
)

// TradeBook coalesces the trade stream into the latest trade per symbol.
// A busy symbol trades many times a second; only the last one is flushed.
type TradeBook struct {
	mu     sync.Mutex
	latest map[string]model.Trade
	dirty  map[string]struct{}
}

func NewTradeBook() *TradeBook {
	return &TradeBook{
		latest: make(map[string]model.Trade),
		dirty:  make(map[string]struct{}),
	}
}

// Update records t unless a later trade of the symbol is already known.
func (b *TradeBook) Update(t model.Trade) {
	if t.Symbol == "" || t.Price <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.latest[t.Symbol]; ok && t.Time.Before(cur.Time) {
		return
	}
	b.latest[t.Symbol] = t
	b.dirty[t.Symbol] = struct{}{}
}

// Latest returns the newest trade of symbol.
func (b *TradeBook) Latest(symbol string) (model.Trade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.latest[symbol]
	return t, ok
}

// Drain returns the trades updated since the previous Drain, by symbol.
func (b *TradeBook) Drain() []model.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.dirty) == 0 {
		return nil
	}
	out := make([]model.Trade, 0, len(b.dirty))
	for sym := range b.dirty {
		out = append(out, b.latest[sym])
	}
	clear(b.dirty)
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
