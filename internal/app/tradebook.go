package app

import (
	"sync"

	"fxTradeBot/internal/domain"
)

// TradeBook is the in-memory index of trades the service believes are live,
// keyed by venue ID. It is a local mirror only; the venue remains the source
// of truth and the reconciler keeps the two aligned.
type TradeBook struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
}

// NewTradeBook creates an empty trade book.
func NewTradeBook() *TradeBook {
	return &TradeBook{trades: make(map[string]*domain.Trade)}
}

// Add indexes a trade under its venue ID. Trades without a venue ID (for
// example rejected before submission) are not tracked.
func (b *TradeBook) Add(trade *domain.Trade) {
	if trade == nil || trade.ID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades[trade.ID] = trade
}

// Get returns the tracked trade for a venue ID.
func (b *TradeBook) Get(id string) (*domain.Trade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	trade, ok := b.trades[id]
	return trade, ok
}

// Remove drops a trade from the book.
func (b *TradeBook) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.trades, id)
}

// All returns the tracked trades in no particular order.
func (b *TradeBook) All() []*domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.Trade, 0, len(b.trades))
	for _, trade := range b.trades {
		out = append(out, trade)
	}
	return out
}

// OpenCount returns the number of tracked trades in status OPEN.
func (b *TradeBook) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, trade := range b.trades {
		if trade.IsOpen() {
			count++
		}
	}
	return count
}
