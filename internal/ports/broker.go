package ports

import (
	"context"

	"fxTradeBot/internal/domain"
)

// Broker defines the contract every execution venue implements, live or
// simulated. The adapter owns the connection lifecycle: every operation other
// than Connect/Disconnect requires a session, and implementations must attempt
// one transparent reconnect before failing an operation — never execute
// against a stale session silently.
//
// A single logical session serves one account; implementations serialize
// request submission internally, so Broker methods are safe to call from the
// reconciliation loop and strategy code concurrently.
type Broker interface {
	// Connect establishes the venue session. Idempotent on an already-live
	// session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down.
	Disconnect(ctx context.Context) error

	// Execute submits the trade to the venue and always returns it: execution
	// failures land in status REJECTED with a human-readable reason, never in
	// a returned error. MARKET fills are synchronous (trade comes back OPEN
	// with the venue's fill price); LIMIT/STOP orders come back PENDING with a
	// venue-issued ID.
	Execute(ctx context.Context, trade *domain.Trade) *domain.Trade

	// CloseTrade closes an OPEN trade at market or cancels a PENDING order.
	// Like Execute, failures are reported through the trade itself and the
	// logging sink.
	CloseTrade(ctx context.Context, trade *domain.Trade) *domain.Trade

	// GetAccountSnapshot returns the venue's current account metrics as a
	// whole; a failure leaves the caller's previous snapshot intact.
	GetAccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error)

	// GetOpenPositions returns the venue's authoritative open-position set as
	// trades in status OPEN, with the venue-reported profit copied as-is.
	GetOpenPositions(ctx context.Context) ([]*domain.Trade, error)

	// GetPendingOrders returns venue-side orders that have not filled yet.
	GetPendingOrders(ctx context.Context) ([]*domain.Trade, error)

	// GetPrice returns the live quote for a symbol, or an error wrapping
	// ErrNoPrice when the venue cannot supply one. Never a zero/default price.
	GetPrice(ctx context.Context, symbol string) (domain.PriceSnapshot, error)

	// GetHistoricalBars returns up to count bars for symbol/timeframe, sorted
	// ascending by open time with no duplicate timestamps (venue output is
	// corrected if necessary).
	GetHistoricalBars(ctx context.Context, symbol string, timeframe domain.Timeframe, count int) ([]domain.Bar, error)
}

// RiskGate approves or rejects a trade before submission. It is consulted by
// the caller, not by the venue adapter. A nil error means approved; a
// rejection wraps ErrRiskRejected with the failed rule.
type RiskGate interface {
	Approve(ctx context.Context, trade *domain.Trade, account domain.AccountSnapshot, openPositions int) error
}
