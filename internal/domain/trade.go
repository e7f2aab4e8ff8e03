package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Trade is the canonical order/position record shared by all modules.
//
// Intent fields (Symbol, Direction, Size, OrderType, EntryPrice, StopLoss,
// TakeProfit) are validated at construction and immutable afterwards.
// Execution outcome and accounting fields are mutated only by venue adapters;
// strategy code reads them but never writes. The status field is unexported so
// every status change goes through UpdateStatus.
type Trade struct {
	// Identity
	ID      string // venue-issued ticket; empty until the venue accepts the order
	LocalID int64  // journal row id; zero until persisted
	Symbol  string

	// Intent
	Direction  TradeDirection
	Size       float64
	OrderType  OrderType
	EntryPrice *float64 // required for LIMIT/STOP, forbidden for MARKET
	StopLoss   *float64
	TakeProfit *float64

	status TradeStatus

	// Execution outcome
	ExecutedPrice   float64
	ClosePrice      float64
	OpenTime        time.Time
	CloseTime       time.Time
	CloseReason     CloseReason
	RejectionReason string

	// Accounting, venue-reported
	Profit     float64
	Commission float64
	Swap       float64
}

// validTransitions is the single source of truth for the trade lifecycle:
// PENDING -> OPEN | CANCELLED | REJECTED, OPEN -> CLOSED | CANCELLED.
// CLOSED, CANCELLED and REJECTED are terminal.
var validTransitions = map[TradeStatus][]TradeStatus{
	StatusPending:   {StatusOpen, StatusCancelled, StatusRejected},
	StatusOpen:      {StatusClosed, StatusCancelled},
	StatusClosed:    {},
	StatusCancelled: {},
	StatusRejected:  {},
}

// NewTrade constructs a trade in PENDING state from strategy intent.
// All intent validation happens here; a trade that exists is a trade whose
// intent fields are internally consistent.
func NewTrade(symbol string, direction TradeDirection, size float64, orderType OrderType, entryPrice, stopLoss, takeProfit *float64) (*Trade, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol must not be empty", ErrValidation)
	}
	if direction != Buy && direction != Sell {
		return nil, fmt.Errorf("%w: unknown trade direction %q", ErrValidation, direction)
	}
	if orderType != Market && orderType != Limit && orderType != Stop {
		return nil, fmt.Errorf("%w: unknown order type %q", ErrValidation, orderType)
	}
	if size <= 0 || !isFinite(size) {
		return nil, fmt.Errorf("%w: size must be a positive finite number, got %v", ErrValidation, size)
	}
	switch orderType {
	case Limit, Stop:
		if entryPrice == nil {
			return nil, fmt.Errorf("%w: entry price is required for %s orders", ErrValidation, orderType)
		}
		if !isFinite(*entryPrice) || *entryPrice <= 0 {
			return nil, fmt.Errorf("%w: entry price must be a positive finite number, got %v", ErrValidation, *entryPrice)
		}
	case Market:
		if entryPrice != nil {
			return nil, fmt.Errorf("%w: entry price must not be set for market orders", ErrValidation)
		}
	}
	if stopLoss != nil && (!isFinite(*stopLoss) || *stopLoss <= 0) {
		return nil, fmt.Errorf("%w: stop loss must be a positive finite number, got %v", ErrValidation, *stopLoss)
	}
	if takeProfit != nil && (!isFinite(*takeProfit) || *takeProfit <= 0) {
		return nil, fmt.Errorf("%w: take profit must be a positive finite number, got %v", ErrValidation, *takeProfit)
	}

	return &Trade{
		Symbol:     symbol,
		Direction:  direction,
		Size:       size,
		OrderType:  orderType,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		status:     StatusPending,
	}, nil
}

// Status returns the current lifecycle state.
func (t *Trade) Status() TradeStatus { return t.status }

// UpdateStatus is the single mutation entry point for the trade status.
// Transitions not present in the table fail with ErrInvalidTransition,
// including any transition out of a terminal state; a second application of an
// already-applied transition therefore fails rather than re-running side
// effects.
func (t *Trade) UpdateStatus(newStatus TradeStatus) error {
	allowed := false
	for _, s := range validTransitions[t.status] {
		if s == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s (trade %s %s)", ErrInvalidTransition, t.status, newStatus, t.ID, t.Symbol)
	}

	switch newStatus {
	case StatusOpen:
		if t.ExecutedPrice <= 0 || !isFinite(t.ExecutedPrice) {
			return fmt.Errorf("%w: trade %s %s", ErrMissingExecutedPrice, t.ID, t.Symbol)
		}
		// Reconciliation supplies back-dated fills; only stamp the clock when
		// the caller left the open time unset.
		if t.OpenTime.IsZero() {
			t.OpenTime = time.Now()
		}
	case StatusClosed:
		if t.CloseTime.IsZero() {
			t.CloseTime = time.Now()
		}
		if t.CloseTime.Before(t.OpenTime) {
			return fmt.Errorf("%w: close time %s precedes open time %s", ErrInvalidTransition, t.CloseTime, t.OpenTime)
		}
	}

	t.status = newStatus
	return nil
}

// Reject transitions the trade to REJECTED carrying a human-readable reason.
// An empty reason is replaced so a rejected trade never surfaces without one.
func (t *Trade) Reject(reason string) error {
	if err := t.UpdateStatus(StatusRejected); err != nil {
		return err
	}
	if reason == "" {
		reason = "unknown"
	}
	t.RejectionReason = reason
	return nil
}

// Restore sets the status directly, bypassing the transition table. It exists
// for adapters rehydrating trades from storage and must not be used to advance
// a live trade's lifecycle.
func (t *Trade) Restore(status TradeStatus) { t.status = status }

func (t *Trade) IsPending() bool   { return t.status == StatusPending }
func (t *Trade) IsOpen() bool      { return t.status == StatusOpen }
func (t *Trade) IsClosed() bool    { return t.status == StatusClosed }
func (t *Trade) IsCancelled() bool { return t.status == StatusCancelled }
func (t *Trade) IsRejected() bool  { return t.status == StatusRejected }

// String implements fmt.Stringer for log output.
func (t *Trade) String() string {
	return fmt.Sprintf("Trade(id=%s, symbol=%s, direction=%s, type=%s, size=%v, status=%s, executed=%v)",
		t.ID, t.Symbol, t.Direction, t.OrderType, t.Size, t.status, t.ExecutedPrice)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
