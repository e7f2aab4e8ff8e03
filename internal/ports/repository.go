package ports

import (
	"context"

	"fxTradeBot/internal/domain"
)

// TradeRepository journals every trade outcome. Trades are never destroyed;
// finalized records are retained for reporting.
type TradeRepository interface {
	// Save inserts the trade on first call and updates it afterwards,
	// assigning LocalID on insert.
	Save(ctx context.Context, trade *domain.Trade) error
	// FindOpen retrieves all trades journaled in status OPEN or PENDING.
	FindOpen(ctx context.Context) ([]*domain.Trade, error)
	// FindBySymbol retrieves the most recent trades for a symbol, up to limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// CountTodayBySymbol counts trades opened today for a symbol.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
	// TotalProfit sums profit over all closed trades.
	TotalProfit(ctx context.Context) (float64, error)
}
