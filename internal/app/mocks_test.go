package app

import (
	"context"
	"fmt"
	"time"

	"fxTradeBot/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// mockBroker implements ports.Broker with scripted venue state.
type mockBroker struct {
	positions []*domain.Trade
	pending   []*domain.Trade
	account   domain.AccountSnapshot
	fillPrice float64

	executed []*domain.Trade
	closed   []*domain.Trade
	nextID   int
}

func newMockBroker() *mockBroker {
	return &mockBroker{
		account:   domain.AccountSnapshot{Balance: 10000, Equity: 10000, FreeMargin: 9000},
		fillPrice: 1.1002,
		nextID:    1,
	}
}

func (m *mockBroker) Connect(ctx context.Context) error    { return nil }
func (m *mockBroker) Disconnect(ctx context.Context) error { return nil }

func (m *mockBroker) Execute(ctx context.Context, trade *domain.Trade) *domain.Trade {
	trade.ID = fmt.Sprintf("MOCK-%d", m.nextID)
	m.nextID++
	m.executed = append(m.executed, trade)
	if trade.OrderType != domain.Market {
		return trade
	}
	trade.ExecutedPrice = m.fillPrice
	if err := trade.UpdateStatus(domain.StatusOpen); err != nil {
		return trade
	}
	return trade
}

func (m *mockBroker) CloseTrade(ctx context.Context, trade *domain.Trade) *domain.Trade {
	m.closed = append(m.closed, trade)
	if trade.IsPending() {
		_ = trade.UpdateStatus(domain.StatusCancelled)
		return trade
	}
	trade.ClosePrice = m.fillPrice
	trade.CloseReason = domain.CloseReasonManual
	_ = trade.UpdateStatus(domain.StatusClosed)
	return trade
}

func (m *mockBroker) GetAccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	return m.account, nil
}

func (m *mockBroker) GetOpenPositions(ctx context.Context) ([]*domain.Trade, error) {
	return m.positions, nil
}

func (m *mockBroker) GetPendingOrders(ctx context.Context) ([]*domain.Trade, error) {
	return m.pending, nil
}

func (m *mockBroker) GetPrice(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	return domain.PriceSnapshot{Symbol: symbol, Bid: m.fillPrice - 0.0002, Ask: m.fillPrice, Time: time.Now()}, nil
}

func (m *mockBroker) GetHistoricalBars(ctx context.Context, symbol string, timeframe domain.Timeframe, count int) ([]domain.Bar, error) {
	return nil, nil
}

// mockRepo implements ports.TradeRepository, recording saves in memory.
type mockRepo struct {
	saved      []*domain.Trade
	openTrades []*domain.Trade
	saveErr    error
	nextID     int64
}

func (m *mockRepo) Save(ctx context.Context, trade *domain.Trade) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if trade.LocalID == 0 {
		m.nextID++
		trade.LocalID = m.nextID
	}
	m.saved = append(m.saved, trade)
	return nil
}

func (m *mockRepo) FindOpen(ctx context.Context) ([]*domain.Trade, error) {
	return m.openTrades, nil
}

func (m *mockRepo) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	return nil, nil
}

func (m *mockRepo) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	return 0, nil
}

func (m *mockRepo) TotalProfit(ctx context.Context) (float64, error) { return 0, nil }

// mockRiskGate approves or refuses everything.
type mockRiskGate struct {
	refuseWith error
	approvals  int
}

func (m *mockRiskGate) Approve(ctx context.Context, trade *domain.Trade, account domain.AccountSnapshot, openPositions int) error {
	if m.refuseWith != nil {
		return m.refuseWith
	}
	m.approvals++
	return nil
}

func fptr(f float64) *float64 { return &f }
