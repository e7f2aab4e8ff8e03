package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(f float64) *float64 { return &f }

func newMarketTrade(t *testing.T) *Trade {
	t.Helper()
	trade, err := NewTrade("EURUSDM", Buy, 0.1, Market, nil, nil, nil)
	require.NoError(t, err)
	return trade
}

func TestNewTrade_Validation(t *testing.T) {
	tests := []struct {
		name       string
		symbol     string
		direction  TradeDirection
		size       float64
		orderType  OrderType
		entryPrice *float64
		stopLoss   *float64
		takeProfit *float64
		wantErr    bool
	}{
		{
			name:      "valid market order",
			symbol:    "eurusdm",
			direction: Buy,
			size:      0.1,
			orderType: Market,
		},
		{
			name:       "valid limit order",
			symbol:     "EURUSDM",
			direction:  Sell,
			size:       0.5,
			orderType:  Limit,
			entryPrice: fptr(1.1000),
			stopLoss:   fptr(1.1100),
			takeProfit: fptr(1.0800),
		},
		{
			name:      "empty symbol",
			symbol:    "  ",
			direction: Buy,
			size:      0.1,
			orderType: Market,
			wantErr:   true,
		},
		{
			name:      "zero size",
			symbol:    "EURUSDM",
			direction: Buy,
			size:      0,
			orderType: Market,
			wantErr:   true,
		},
		{
			name:      "negative size",
			symbol:    "EURUSDM",
			direction: Sell,
			size:      -0.1,
			orderType: Market,
			wantErr:   true,
		},
		{
			name:      "limit order without entry price",
			symbol:    "EURUSDM",
			direction: Buy,
			size:      0.1,
			orderType: Limit,
			wantErr:   true,
		},
		{
			name:      "stop order without entry price",
			symbol:    "EURUSDM",
			direction: Sell,
			size:      0.1,
			orderType: Stop,
			wantErr:   true,
		},
		{
			name:       "market order with entry price",
			symbol:     "EURUSDM",
			direction:  Buy,
			size:       0.1,
			orderType:  Market,
			entryPrice: fptr(1.1000),
			wantErr:    true,
		},
		{
			name:       "non-finite entry price",
			symbol:     "EURUSDM",
			direction:  Buy,
			size:       0.1,
			orderType:  Limit,
			entryPrice: fptr(math.Inf(1)),
			wantErr:    true,
		},
		{
			name:      "non-finite stop loss",
			symbol:    "EURUSDM",
			direction: Buy,
			size:      0.1,
			orderType: Market,
			stopLoss:  fptr(math.NaN()),
			wantErr:   true,
		},
		{
			name:      "unknown direction",
			symbol:    "EURUSDM",
			direction: TradeDirection("LONG"),
			size:      0.1,
			orderType: Market,
			wantErr:   true,
		},
		{
			name:      "unknown order type",
			symbol:    "EURUSDM",
			direction: Buy,
			size:      0.1,
			orderType: OrderType("ICEBERG"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := NewTrade(tt.symbol, tt.direction, tt.size, tt.orderType, tt.entryPrice, tt.stopLoss, tt.takeProfit)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				assert.Nil(t, trade)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusPending, trade.Status())
			assert.Equal(t, "EURUSDM", trade.Symbol, "symbol must be uppercased")
		})
	}
}

func TestTrade_UpdateStatus_TransitionTable(t *testing.T) {
	all := []TradeStatus{StatusPending, StatusOpen, StatusClosed, StatusCancelled, StatusRejected}
	legal := map[TradeStatus]map[TradeStatus]bool{
		StatusPending: {StatusOpen: true, StatusCancelled: true, StatusRejected: true},
		StatusOpen:    {StatusClosed: true, StatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				trade := newMarketTrade(t)
				trade.ExecutedPrice = 1.1002 // satisfy the OPEN precondition everywhere
				trade.Restore(from)

				err := trade.UpdateStatus(to)
				if legal[from][to] {
					require.NoError(t, err)
					assert.Equal(t, to, trade.Status())
				} else {
					require.Error(t, err)
					assert.ErrorIs(t, err, ErrInvalidTransition)
					assert.Equal(t, from, trade.Status(), "failed transition must not mutate status")
				}
			})
		}
	}
}

func TestTrade_UpdateStatus_OpenRequiresExecutedPrice(t *testing.T) {
	trade := newMarketTrade(t)

	err := trade.UpdateStatus(StatusOpen)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingExecutedPrice)
	assert.Equal(t, StatusPending, trade.Status())

	trade.ExecutedPrice = 1.1002
	require.NoError(t, trade.UpdateStatus(StatusOpen))
	assert.False(t, trade.OpenTime.IsZero(), "open time must be stamped")
}

func TestTrade_UpdateStatus_BackdatedFill(t *testing.T) {
	trade := newMarketTrade(t)
	backdated := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	trade.ExecutedPrice = 1.1000
	trade.OpenTime = backdated

	require.NoError(t, trade.UpdateStatus(StatusOpen))
	assert.Equal(t, backdated, trade.OpenTime, "caller-supplied open time must survive")
}

func TestTrade_UpdateStatus_CloseStampsTime(t *testing.T) {
	trade := newMarketTrade(t)
	trade.ExecutedPrice = 1.1000
	require.NoError(t, trade.UpdateStatus(StatusOpen))

	require.NoError(t, trade.UpdateStatus(StatusClosed))
	assert.False(t, trade.CloseTime.IsZero())
	assert.False(t, trade.CloseTime.Before(trade.OpenTime))
}

func TestTrade_UpdateStatus_CloseBeforeOpenRejected(t *testing.T) {
	trade := newMarketTrade(t)
	trade.ExecutedPrice = 1.1000
	trade.OpenTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, trade.UpdateStatus(StatusOpen))

	trade.CloseTime = trade.OpenTime.Add(-time.Hour)
	err := trade.UpdateStatus(StatusClosed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTrade_UpdateStatus_TerminalDoubleApplication(t *testing.T) {
	trade := newMarketTrade(t)
	trade.ExecutedPrice = 1.1000
	require.NoError(t, trade.UpdateStatus(StatusOpen))
	require.NoError(t, trade.UpdateStatus(StatusClosed))
	firstCloseTime := trade.CloseTime

	// Second close must fail and must not re-run side effects.
	err := trade.UpdateStatus(StatusClosed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, firstCloseTime, trade.CloseTime)
}

func TestTrade_Reject(t *testing.T) {
	trade := newMarketTrade(t)
	require.NoError(t, trade.Reject("no price"))
	assert.Equal(t, StatusRejected, trade.Status())
	assert.Equal(t, "no price", trade.RejectionReason)

	// Rejecting again is an invalid transition out of a terminal state.
	err := trade.Reject("again")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "no price", trade.RejectionReason)
}

func TestTrade_Reject_EmptyReasonNeverSurfaces(t *testing.T) {
	trade := newMarketTrade(t)
	require.NoError(t, trade.Reject(""))
	assert.NotEmpty(t, trade.RejectionReason)
}
