package simbroker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fxTradeBot/config"
	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func fptr(f float64) *float64 { return &f }

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	b, err := New(Config{
		Logger:         &mockLogger{},
		Symbols:        config.SymbolTable{},
		InitialDeposit: 10000.0,
		Currency:       "USD",
		Leverage:       100,
	})
	require.NoError(t, err)
	require.NoError(t, b.Connect(context.Background()))
	return b
}

func setQuote(b *Broker, bid, ask float64) {
	b.SetPrice(domain.PriceSnapshot{Symbol: "EURUSDM", Bid: bid, Ask: ask, Time: time.Now()})
}

func TestExecute_MarketPricing(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.TradeDirection
		wantPrice float64
	}{
		{name: "buy fills at ask", direction: domain.Buy, wantPrice: 1.1002},
		{name: "sell fills at bid", direction: domain.Sell, wantPrice: 1.1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t)
			setQuote(b, 1.1000, 1.1002)

			trade, err := domain.NewTrade("EURUSDM", tt.direction, 0.1, domain.Market, nil, nil, nil)
			require.NoError(t, err)

			got := b.Execute(context.Background(), trade)
			require.NotNil(t, got)
			assert.Equal(t, domain.StatusOpen, got.Status())
			assert.Equal(t, tt.wantPrice, got.ExecutedPrice)
			assert.NotEmpty(t, got.ID)
			assert.False(t, got.OpenTime.IsZero())
		})
	}
}

func TestExecute_RejectsInvalidSize(t *testing.T) {
	b := newTestBroker(t)
	setQuote(b, 1.1000, 1.1002)

	for _, orderType := range []domain.OrderType{domain.Market, domain.Limit} {
		trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, orderType, fptr(1.0900), nil, nil)
		if orderType == domain.Market {
			trade, err = domain.NewTrade("EURUSDM", domain.Buy, 0.1, orderType, nil, nil, nil)
		}
		require.NoError(t, err)
		trade.Size = 0 // mutated after construction

		got := b.Execute(context.Background(), trade)
		require.NotNil(t, got)
		assert.Equal(t, domain.StatusRejected, got.Status())
		assert.NotEmpty(t, got.RejectionReason)
	}
}

func TestExecute_NoPriceRejects(t *testing.T) {
	b := newTestBroker(t)

	trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Market, nil, nil, nil)
	require.NoError(t, err)

	got := b.Execute(context.Background(), trade)
	assert.Equal(t, domain.StatusRejected, got.Status())
	assert.Contains(t, got.RejectionReason, "no price")
}

func TestExecute_DisconnectedReconnectFailure(t *testing.T) {
	b := newTestBroker(t)
	setQuote(b, 1.1000, 1.1002)
	b.SetConnectFailure(errors.New("venue unreachable"))

	trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Market, nil, nil, nil)
	require.NoError(t, err)

	got := b.Execute(context.Background(), trade)
	assert.Equal(t, domain.StatusRejected, got.Status())
	assert.NotEmpty(t, got.RejectionReason)
}

func TestExecute_TransparentReconnect(t *testing.T) {
	b := newTestBroker(t)
	setQuote(b, 1.1000, 1.1002)
	require.NoError(t, b.Disconnect(context.Background()))

	trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Market, nil, nil, nil)
	require.NoError(t, err)

	got := b.Execute(context.Background(), trade)
	assert.Equal(t, domain.StatusOpen, got.Status())
}

func TestPendingOrders_TriggerRules(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.TradeDirection
		orderType domain.OrderType
		entry     float64
		bid, ask  float64
		wantFill  bool
	}{
		{name: "buy limit fills when ask at or below entry", direction: domain.Buy, orderType: domain.Limit, entry: 1.0950, bid: 1.0948, ask: 1.0950, wantFill: true},
		{name: "buy limit rests above entry", direction: domain.Buy, orderType: domain.Limit, entry: 1.0950, bid: 1.0958, ask: 1.0960, wantFill: false},
		{name: "sell limit fills when bid at or above entry", direction: domain.Sell, orderType: domain.Limit, entry: 1.1050, bid: 1.1050, ask: 1.1052, wantFill: true},
		{name: "buy stop fills when ask at or above entry", direction: domain.Buy, orderType: domain.Stop, entry: 1.1050, bid: 1.1050, ask: 1.1052, wantFill: true},
		{name: "buy stop rests below entry", direction: domain.Buy, orderType: domain.Stop, entry: 1.1050, bid: 1.1000, ask: 1.1002, wantFill: false},
		{name: "sell stop fills when bid at or below entry", direction: domain.Sell, orderType: domain.Stop, entry: 1.0950, bid: 1.0950, ask: 1.0952, wantFill: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t)
			ctx := context.Background()
			setQuote(b, 1.1000, 1.1002)

			trade, err := domain.NewTrade("EURUSDM", tt.direction, 0.1, tt.orderType, fptr(tt.entry), nil, nil)
			require.NoError(t, err)

			got := b.Execute(ctx, trade)
			require.Equal(t, domain.StatusPending, got.Status())
			require.NotEmpty(t, got.ID)

			setQuote(b, tt.bid, tt.ask)
			b.Tick(ctx)

			if tt.wantFill {
				assert.Equal(t, domain.StatusOpen, got.Status())
				assert.Equal(t, tt.entry, got.ExecutedPrice)
				pending, err := b.GetPendingOrders(ctx)
				require.NoError(t, err)
				assert.Empty(t, pending)
			} else {
				assert.Equal(t, domain.StatusPending, got.Status())
				pending, err := b.GetPendingOrders(ctx)
				require.NoError(t, err)
				assert.Len(t, pending, 1)
			}
		})
	}
}

func TestPendingOrders_ProtectionSurvivesFill(t *testing.T) {
	// SL/TP attached to a resting order must protect the position the moment
	// the order fills, without any re-submission by the caller.
	b := newTestBroker(t)
	ctx := context.Background()
	setQuote(b, 1.1000, 1.1002)

	trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Limit, fptr(1.0950), fptr(1.0900), fptr(1.1100))
	require.NoError(t, err)
	got := b.Execute(ctx, trade)
	require.Equal(t, domain.StatusPending, got.Status())

	setQuote(b, 1.0948, 1.0950)
	b.Tick(ctx)
	require.Equal(t, domain.StatusOpen, got.Status())
	require.Equal(t, 1.0950, got.ExecutedPrice)

	setQuote(b, 1.0898, 1.0900)
	b.Tick(ctx)
	assert.Equal(t, domain.StatusClosed, got.Status())
	assert.Equal(t, 1.0900, got.ClosePrice)
	assert.Equal(t, domain.CloseReasonStopLoss, got.CloseReason)
}

func TestStops_CloseAtStopLossAndTakeProfit(t *testing.T) {
	tests := []struct {
		name       string
		direction  domain.TradeDirection
		sl, tp     float64
		bid, ask   float64
		wantPrice  float64
		wantReason domain.CloseReason
	}{
		{name: "buy stop loss", direction: domain.Buy, sl: 1.0950, tp: 1.1100, bid: 1.0948, ask: 1.0950, wantPrice: 1.0950, wantReason: domain.CloseReasonStopLoss},
		{name: "buy take profit", direction: domain.Buy, sl: 1.0950, tp: 1.1100, bid: 1.1105, ask: 1.1107, wantPrice: 1.1100, wantReason: domain.CloseReasonTakeProfit},
		{name: "sell stop loss", direction: domain.Sell, sl: 1.1050, tp: 1.0900, bid: 1.1050, ask: 1.1052, wantPrice: 1.1050, wantReason: domain.CloseReasonStopLoss},
		{name: "sell take profit", direction: domain.Sell, sl: 1.1050, tp: 1.0900, bid: 1.0895, ask: 1.0897, wantPrice: 1.0900, wantReason: domain.CloseReasonTakeProfit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBroker(t)
			ctx := context.Background()
			setQuote(b, 1.1000, 1.1002)

			trade, err := domain.NewTrade("EURUSDM", tt.direction, 0.1, domain.Market, nil, fptr(tt.sl), fptr(tt.tp))
			require.NoError(t, err)
			got := b.Execute(ctx, trade)
			require.Equal(t, domain.StatusOpen, got.Status())

			setQuote(b, tt.bid, tt.ask)
			b.Tick(ctx)

			assert.Equal(t, domain.StatusClosed, got.Status())
			assert.Equal(t, tt.wantPrice, got.ClosePrice)
			assert.Equal(t, tt.wantReason, got.CloseReason)
			assert.False(t, got.CloseTime.IsZero())
		})
	}
}

func TestCloseTrade_ManualCloseAndCancel(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	setQuote(b, 1.1000, 1.1002)

	open, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Market, nil, nil, nil)
	require.NoError(t, err)
	open = b.Execute(ctx, open)
	require.Equal(t, domain.StatusOpen, open.Status())

	setQuote(b, 1.1050, 1.1052)
	closed := b.CloseTrade(ctx, open)
	assert.Equal(t, domain.StatusClosed, closed.Status())
	assert.Equal(t, 1.1050, closed.ClosePrice) // buy closes at bid
	assert.Equal(t, domain.CloseReasonManual, closed.CloseReason)
	assert.InDelta(t, (1.1050-1.1002)*0.1*100000, closed.Profit, 1e-9)

	pending, err := domain.NewTrade("EURUSDM", domain.Sell, 0.1, domain.Limit, fptr(1.2000), nil, nil)
	require.NoError(t, err)
	pending = b.Execute(ctx, pending)
	require.Equal(t, domain.StatusPending, pending.Status())

	cancelled := b.CloseTrade(ctx, pending)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status())
}

func TestAccountSnapshot_TracksBalanceAndEquity(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	setQuote(b, 1.1000, 1.1002)

	snap, err := b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, snap.Balance)
	assert.Equal(t, 10000.0, snap.Equity)
	assert.Equal(t, "USD", snap.Currency)
	assert.Equal(t, 100, snap.Leverage)

	trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Market, nil, nil, nil)
	require.NoError(t, err)
	trade = b.Execute(ctx, trade)
	require.Equal(t, domain.StatusOpen, trade.Status())

	// Price moves 10 pips in favor: unrealized profit on 0.1 lots.
	setQuote(b, 1.1012, 1.1014)
	snap, err = b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, (1.1012-1.1002)*0.1*100000, snap.Profit, 1e-9)
	assert.InDelta(t, snap.Balance+snap.Profit, snap.Equity, 1e-9)
	assert.Greater(t, snap.Margin, 0.0)
	assert.InDelta(t, snap.Equity-snap.Margin, snap.FreeMargin, 1e-9)

	// Closing realizes the profit into balance.
	b.CloseTrade(ctx, trade)
	snap, err = b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000.0+(1.1012-1.1002)*0.1*100000, snap.Balance, 1e-9)
	assert.Equal(t, 0.0, snap.Margin)
}

func TestGetOpenPositions_ReturnsDetachedRecords(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()
	setQuote(b, 1.1000, 1.1002)

	trade, err := domain.NewTrade("EURUSDM", domain.Buy, 0.1, domain.Market, nil, fptr(1.0950), fptr(1.1100))
	require.NoError(t, err)
	trade = b.Execute(ctx, trade)
	require.Equal(t, domain.StatusOpen, trade.Status())

	positions, err := b.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	got := positions[0]
	assert.Equal(t, trade.ID, got.ID)
	assert.Equal(t, trade.ExecutedPrice, got.ExecutedPrice)
	assert.Equal(t, domain.StatusOpen, got.Status())
	assert.NotSame(t, trade, got)
}

func TestGetPrice(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	_, err := b.GetPrice(ctx, "EURUSDM")
	assert.ErrorIs(t, err, ports.ErrNoPrice)

	setQuote(b, 1.1000, 1.1002)
	quote, err := b.GetPrice(ctx, "EURUSDM")
	require.NoError(t, err)
	assert.Equal(t, 1.1000, quote.Bid)
	assert.Equal(t, 1.1002, quote.Ask)
}

func TestGetHistoricalBars(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 5)
	for i := range bars {
		bars[i] = domain.Bar{
			OpenTime:  base.Add(time.Duration(i) * time.Minute),
			Symbol:    "EURUSDM",
			Timeframe: domain.M1,
			Open:      1.10, High: 1.11, Low: 1.09, Close: 1.105,
			Volume: 100,
		}
	}
	b.LoadBars("EURUSDM", domain.M1, bars)

	got, err := b.GetHistoricalBars(ctx, "EURUSDM", domain.M1, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(2*time.Minute), got[0].OpenTime) // newest 3, oldest first

	got, err = b.GetHistoricalBars(ctx, "EURUSDM", domain.M5, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
