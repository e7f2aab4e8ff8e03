package simbroker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fxTradeBot/config"
	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"
)

// Broker is the simulated execution venue. It implements the same ports.Broker
// contract as the live adapter: synchronous market fills, venue-side pending
// orders with limit/stop trigger rules, SL/TP sweeps, and margin/equity
// accounting. Because the simulation IS the venue, the profit it reports is
// authoritative, computed from full symbol metadata (pip value, contract
// size).
type Broker struct {
	logger  ports.Logger
	symbols config.SymbolTable
	clock   func() time.Time

	mu         sync.Mutex
	connected  bool
	connectErr error // injected connection fault

	account    domain.AccountSnapshot
	prices     map[string]domain.PriceSnapshot
	bars       map[string][]domain.Bar
	open       []*domain.Trade
	pending    []*domain.Trade
	closed     []*domain.Trade
	nextTicket int
}

// Config holds construction parameters for the simulated venue.
type Config struct {
	Logger         ports.Logger
	Symbols        config.SymbolTable
	InitialDeposit float64
	Currency       string
	Leverage       int
	Clock          func() time.Time // defaults to time.Now
}

// New creates a simulated venue with a fresh account.
func New(cfg Config) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the simulated venue")
	}
	if cfg.InitialDeposit <= 0 {
		cfg.InitialDeposit = 10000.0
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 100
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	if cfg.Symbols == nil {
		cfg.Symbols = config.SymbolTable{}
	}

	return &Broker{
		logger:  cfg.Logger,
		symbols: cfg.Symbols,
		clock:   clock,
		account: domain.AccountSnapshot{
			Balance:    cfg.InitialDeposit,
			Equity:     cfg.InitialDeposit,
			FreeMargin: cfg.InitialDeposit,
			Currency:   cfg.Currency,
			Leverage:   cfg.Leverage,
		},
		prices:     make(map[string]domain.PriceSnapshot),
		bars:       make(map[string][]domain.Bar),
		nextTicket: 1,
	}, nil
}

// Connect establishes the simulated session.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *Broker) connectLocked(ctx context.Context) error {
	if b.connected {
		return nil
	}
	if b.connectErr != nil {
		return fmt.Errorf("%w: %v", ports.ErrConnectionFailed, b.connectErr)
	}
	b.connected = true
	b.logger.Info(ctx, "Connected to simulated venue")
	return nil
}

// Disconnect tears the simulated session down.
func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		b.connected = false
		b.logger.Info(ctx, "Disconnected from simulated venue")
	}
	return nil
}

// SetConnectFailure injects a connection fault: subsequent connects fail with
// err until cleared with nil. The current session is dropped.
func (b *Broker) SetConnectFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectErr = err
	if err != nil {
		b.connected = false
	}
}

// SetPrice publishes a quote to the simulated venue.
func (b *Broker) SetPrice(snapshot domain.PriceSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if snapshot.Time.IsZero() {
		snapshot.Time = b.clock()
	}
	b.prices[snapshot.Symbol] = snapshot
}

// LoadBars seeds historical data for a symbol/timeframe.
func (b *Broker) LoadBars(symbol string, timeframe domain.Timeframe, bars []domain.Bar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars[barsKey(symbol, timeframe)] = domain.NormalizeBars(bars)
}

func barsKey(symbol string, timeframe domain.Timeframe) string {
	return symbol + "_" + string(timeframe)
}

// ensureConnectedLocked attempts exactly one transparent reconnect.
func (b *Broker) ensureConnectedLocked(ctx context.Context) error {
	if b.connected {
		return nil
	}
	return b.connectLocked(ctx)
}

// reject transitions the trade to REJECTED, logging when the trade is already
// terminal and cannot carry the rejection.
func (b *Broker) reject(ctx context.Context, trade *domain.Trade, reason string) *domain.Trade {
	if err := trade.Reject(reason); err != nil {
		b.logger.Error(ctx, err, "Could not mark trade rejected", map[string]interface{}{"trade": trade.String(), "reason": reason})
		return trade
	}
	b.logger.Warn(ctx, "Trade rejected", map[string]interface{}{"trade": trade.String(), "reason": reason})
	return trade
}

// Execute submits a trade to the simulated venue. Failures land in status
// REJECTED; no error ever escapes this call.
func (b *Broker) Execute(ctx context.Context, trade *domain.Trade) *domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureConnectedLocked(ctx); err != nil {
		return b.reject(ctx, trade, "not connected to venue: "+err.Error())
	}
	if !trade.IsPending() {
		// Double submission is a caller defect; there is no legal transition
		// to carry a rejection, so surface it through the log only.
		b.logger.Error(ctx, ports.ErrInvalidRequest, "Execute called on non-pending trade", map[string]interface{}{"trade": trade.String()})
		return trade
	}
	// Re-checked here even though the constructor validates: callers may
	// mutate size between construction and submission.
	if trade.Size <= 0 {
		return b.reject(ctx, trade, fmt.Sprintf("invalid trade size %v", trade.Size))
	}

	trade.ID = fmt.Sprintf("SIM-%d", b.nextTicket)
	b.nextTicket++

	if trade.OrderType == domain.Market {
		quote, ok := b.prices[trade.Symbol]
		if !ok || !quote.IsValid() {
			trade.ID = ""
			return b.reject(ctx, trade, "no price for "+trade.Symbol)
		}
		if trade.Direction == domain.Buy {
			trade.ExecutedPrice = quote.Ask
		} else {
			trade.ExecutedPrice = quote.Bid
		}
		if trade.OpenTime.IsZero() {
			trade.OpenTime = b.clock()
		}
		if err := trade.UpdateStatus(domain.StatusOpen); err != nil {
			b.logger.Error(ctx, err, "Failed to open trade after fill", map[string]interface{}{"trade": trade.String()})
			return trade
		}
		b.open = append(b.open, trade)
		b.updateAccountLocked()
		b.logger.Info(ctx, "Market order executed", map[string]interface{}{"trade": trade.String()})
		return trade
	}

	// LIMIT/STOP rest on the venue until a quote crosses the trigger.
	b.pending = append(b.pending, trade)
	b.logger.Info(ctx, "Pending order placed", map[string]interface{}{"trade": trade.String()})
	return trade
}

// CloseTrade closes an OPEN trade at market or cancels a PENDING order.
func (b *Broker) CloseTrade(ctx context.Context, trade *domain.Trade) *domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureConnectedLocked(ctx); err != nil {
		b.logger.Error(ctx, err, "Failed to connect while closing trade", map[string]interface{}{"trade": trade.String()})
		return trade
	}
	if trade.ID == "" {
		b.logger.Error(ctx, ports.ErrOrderNotFound, "Cannot close trade without a venue ID")
		return trade
	}

	for _, pos := range b.open {
		if pos.ID != trade.ID {
			continue
		}
		quote, ok := b.prices[pos.Symbol]
		if !ok || !quote.IsValid() {
			b.logger.Error(ctx, ports.ErrNoPrice, "Cannot close position without a quote", map[string]interface{}{"symbol": pos.Symbol})
			return trade
		}
		closePrice := quote.Bid
		if pos.Direction == domain.Sell {
			closePrice = quote.Ask
		}
		b.closePositionLocked(ctx, pos, closePrice, domain.CloseReasonManual)
		return pos
	}

	for i, order := range b.pending {
		if order.ID != trade.ID {
			continue
		}
		if err := order.UpdateStatus(domain.StatusCancelled); err != nil {
			b.logger.Error(ctx, err, "Failed to cancel pending order", map[string]interface{}{"trade": order.String()})
			return order
		}
		b.pending = append(b.pending[:i], b.pending[i+1:]...)
		b.logger.Info(ctx, "Pending order cancelled", map[string]interface{}{"trade": order.String()})
		return order
	}

	b.logger.Warn(ctx, "Trade not found for closing", map[string]interface{}{"id": trade.ID})
	return trade
}

// Tick advances the venue one step: pending orders are checked against the
// current quotes and open positions are swept for SL/TP hits. Drivers call it
// after publishing prices.
func (b *Broker) Tick(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkPendingLocked(ctx)
	b.checkStopsLocked(ctx)
	b.updateAccountLocked()
}

func (b *Broker) checkPendingLocked(ctx context.Context) {
	remaining := b.pending[:0]
	for _, order := range b.pending {
		quote, ok := b.prices[order.Symbol]
		if !ok || !quote.IsValid() || order.EntryPrice == nil {
			remaining = append(remaining, order)
			continue
		}
		entry := *order.EntryPrice

		triggered := false
		switch order.OrderType {
		case domain.Limit:
			triggered = (order.Direction == domain.Buy && quote.Ask <= entry) ||
				(order.Direction == domain.Sell && quote.Bid >= entry)
		case domain.Stop:
			triggered = (order.Direction == domain.Buy && quote.Ask >= entry) ||
				(order.Direction == domain.Sell && quote.Bid <= entry)
		}

		if !triggered {
			remaining = append(remaining, order)
			continue
		}

		order.ExecutedPrice = entry
		order.OpenTime = b.clock()
		if err := order.UpdateStatus(domain.StatusOpen); err != nil {
			b.logger.Error(ctx, err, "Failed to open triggered order", map[string]interface{}{"trade": order.String()})
			remaining = append(remaining, order)
			continue
		}
		b.open = append(b.open, order)
		b.logger.Info(ctx, "Pending order triggered", map[string]interface{}{"trade": order.String()})
	}
	b.pending = remaining
}

func (b *Broker) checkStopsLocked(ctx context.Context) {
	for _, pos := range append([]*domain.Trade(nil), b.open...) {
		quote, ok := b.prices[pos.Symbol]
		if !ok || !quote.IsValid() {
			continue
		}
		if pos.StopLoss != nil {
			sl := *pos.StopLoss
			if (pos.Direction == domain.Buy && quote.Bid <= sl) ||
				(pos.Direction == domain.Sell && quote.Ask >= sl) {
				b.closePositionLocked(ctx, pos, sl, domain.CloseReasonStopLoss)
				continue
			}
		}
		if pos.TakeProfit != nil {
			tp := *pos.TakeProfit
			if (pos.Direction == domain.Buy && quote.Bid >= tp) ||
				(pos.Direction == domain.Sell && quote.Ask <= tp) {
				b.closePositionLocked(ctx, pos, tp, domain.CloseReasonTakeProfit)
			}
		}
	}
}

func (b *Broker) closePositionLocked(ctx context.Context, pos *domain.Trade, closePrice float64, reason domain.CloseReason) {
	pos.ClosePrice = closePrice
	pos.CloseReason = reason
	if pos.CloseTime.IsZero() {
		pos.CloseTime = b.clock()
	}
	pos.Profit = b.profitAt(pos, closePrice)
	if err := pos.UpdateStatus(domain.StatusClosed); err != nil {
		b.logger.Error(ctx, err, "Failed to close position", map[string]interface{}{"trade": pos.String()})
		return
	}

	for i, p := range b.open {
		if p == pos {
			b.open = append(b.open[:i], b.open[i+1:]...)
			break
		}
	}
	b.closed = append(b.closed, pos)
	b.account.Balance += pos.Profit
	b.updateAccountLocked()
	b.logger.Info(ctx, "Position closed", map[string]interface{}{"trade": pos.String(), "reason": string(reason), "profit": pos.Profit})
}

// profitAt converts price movement into currency P&L using the full symbol
// metadata (contract size); pip-value conventions vary per instrument, which
// is exactly why only the venue side may do this.
func (b *Broker) profitAt(pos *domain.Trade, price float64) float64 {
	meta := b.symbols.Get(pos.Symbol)
	diff := price - pos.ExecutedPrice
	if pos.Direction == domain.Sell {
		diff = pos.ExecutedPrice - price
	}
	return diff*pos.Size*meta.ContractSize - pos.Commission - pos.Swap
}

func (b *Broker) unrealizedLocked(pos *domain.Trade) float64 {
	quote, ok := b.prices[pos.Symbol]
	if !ok || !quote.IsValid() {
		return pos.Profit
	}
	price := quote.Bid
	if pos.Direction == domain.Sell {
		price = quote.Ask
	}
	return b.profitAt(pos, price)
}

func (b *Broker) updateAccountLocked() {
	totalProfit := 0.0
	totalMargin := 0.0
	for _, pos := range b.open {
		pos.Profit = b.unrealizedLocked(pos)
		totalProfit += pos.Profit

		meta := b.symbols.Get(pos.Symbol)
		leverage := float64(b.account.Leverage)
		totalMargin += pos.ExecutedPrice * pos.Size * meta.ContractSize / leverage
	}
	b.account.Profit = totalProfit
	b.account.Margin = totalMargin
	b.account.Equity = b.account.Balance + totalProfit
	b.account.FreeMargin = b.account.Equity - totalMargin
}

// GetAccountSnapshot returns the whole account projection.
func (b *Broker) GetAccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return domain.AccountSnapshot{}, err
	}
	b.updateAccountLocked()
	return b.account, nil
}

// GetOpenPositions returns the venue's authoritative open-position set as
// detached Trade records, the way a remote venue would report them.
func (b *Broker) GetOpenPositions(ctx context.Context) ([]*domain.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}
	b.updateAccountLocked()

	out := make([]*domain.Trade, 0, len(b.open))
	for _, pos := range b.open {
		view, err := domain.NewTrade(pos.Symbol, pos.Direction, pos.Size, domain.Market, nil, pos.StopLoss, pos.TakeProfit)
		if err != nil {
			b.logger.Error(ctx, err, "Failed to project open position", map[string]interface{}{"trade": pos.String()})
			continue
		}
		view.ID = pos.ID
		view.ExecutedPrice = pos.ExecutedPrice
		view.OpenTime = pos.OpenTime
		view.Profit = pos.Profit
		view.Commission = pos.Commission
		view.Swap = pos.Swap
		if err := view.UpdateStatus(domain.StatusOpen); err != nil {
			b.logger.Error(ctx, err, "Failed to mark projected position open", map[string]interface{}{"trade": pos.String()})
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

// GetPendingOrders returns venue-side orders that have not filled yet.
func (b *Broker) GetPendingOrders(ctx context.Context) ([]*domain.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	out := make([]*domain.Trade, 0, len(b.pending))
	for _, order := range b.pending {
		view, err := domain.NewTrade(order.Symbol, order.Direction, order.Size, order.OrderType, order.EntryPrice, order.StopLoss, order.TakeProfit)
		if err != nil {
			b.logger.Error(ctx, err, "Failed to project pending order", map[string]interface{}{"trade": order.String()})
			continue
		}
		view.ID = order.ID
		out = append(out, view)
	}
	return out, nil
}

// GetPrice returns the current quote, or a failure when none is available —
// never a zero or synthetic price.
func (b *Broker) GetPrice(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return domain.PriceSnapshot{}, err
	}
	quote, ok := b.prices[symbol]
	if !ok || !quote.IsValid() {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: %s", ports.ErrNoPrice, symbol)
	}
	return quote, nil
}

// GetHistoricalBars returns up to count seeded bars, oldest first.
func (b *Broker) GetHistoricalBars(ctx context.Context, symbol string, timeframe domain.Timeframe, count int) ([]domain.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}
	series := b.bars[barsKey(symbol, timeframe)]
	if count > 0 && len(series) > count {
		series = series[len(series)-count:]
	}
	out := make([]domain.Bar, len(series))
	copy(out, series)
	return out, nil
}

// ClosedTrades returns the venue-side record of finalized trades.
func (b *Broker) ClosedTrades() []*domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.Trade, len(b.closed))
	copy(out, b.closed)
	return out
}
