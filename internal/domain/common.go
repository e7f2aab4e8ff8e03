package domain

import (
	"fmt"
	"strings"
)

// TradeDirection represents the direction of a trade (BUY or SELL).
type TradeDirection string

const (
	Buy  TradeDirection = "BUY"
	Sell TradeDirection = "SELL"
)

// OrderType represents how a trade enters the market.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
	Stop   OrderType = "STOP"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusPending   TradeStatus = "PENDING"
	StatusOpen      TradeStatus = "OPEN"
	StatusClosed    TradeStatus = "CLOSED"
	StatusCancelled TradeStatus = "CANCELLED"
	StatusRejected  TradeStatus = "REJECTED"
)

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "TAKE_PROFIT"
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonManual     CloseReason = "MANUAL"
	CloseReasonStrategy   CloseReason = "STRATEGY"
	CloseReasonBroker     CloseReason = "BROKER"
)

// ParseDirection converts external string input into a TradeDirection.
// Validation happens once here, at the boundary; downstream code relies on
// the closed set of constants.
func ParseDirection(s string) (TradeDirection, error) {
	switch TradeDirection(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: unknown trade direction %q", ErrValidation, s)
	}
}

// ParseOrderType converts external string input into an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToUpper(strings.TrimSpace(s))) {
	case Market:
		return Market, nil
	case Limit:
		return Limit, nil
	case Stop:
		return Stop, nil
	default:
		return "", fmt.Errorf("%w: unknown order type %q", ErrValidation, s)
	}
}

// ParseStatus converts external string input into a TradeStatus.
func ParseStatus(s string) (TradeStatus, error) {
	switch TradeStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusOpen:
		return StatusOpen, nil
	case StatusClosed:
		return StatusClosed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: unknown trade status %q", ErrValidation, s)
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s TradeStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled || s == StatusRejected
}
