package binancebroker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Broker implements ports.Broker against Binance futures. All venue calls are
// serialized through a single mutex: the underlying session tolerates one
// in-flight request at a time, so concurrent callers queue rather than
// interleave.
type Broker struct {
	mu             sync.Mutex
	client         *futures.Client
	logger         ports.Logger
	requestTimeout time.Duration
	reconnectDelay time.Duration
	connected      bool
}

// Config holds configuration specific to the Binance venue adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	UseTestnet     bool
	Logger         ports.Logger
	RequestTimeout time.Duration // per-call deadline (e.g., 10 * time.Second)
	ReconnectDelay time.Duration // pause before the single transparent reconnect
}

// New creates a new Binance venue adapter.
func New(cfg Config) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance venue adapter")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Adapter will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance adapter configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance adapter configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}

	return &Broker{
		client:         client,
		logger:         cfg.Logger,
		requestTimeout: requestTimeout,
		reconnectDelay: reconnectDelay,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (b *Broker) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // New order rejected / ReduceOnly order rejected
			mappedErr = ports.ErrOrderRejected
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderRejected
		case -2013, -4044: // Order/position does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP, or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -2019, -3005, -3041, -4047: // Insufficient margin/balance/position
			mappedErr = ports.ErrOrderRejected
		case -4003, -4014, -4015: // Qty/price/leverage not within permissible range
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		b.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, parsing).
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	b.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func (b *Broker) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.requestTimeout)
}

// Connect verifies connectivity and synchronizes clocks with the venue.
func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *Broker) connectLocked(ctx context.Context) error {
	op := "Connect"
	cctx, cancel := b.callCtx(ctx)
	defer cancel()

	if err := b.client.NewPingService().Do(cctx); err != nil {
		b.connected = false
		return fmt.Errorf("%w: %w", ports.ErrConnectionFailed, b.handleError(ctx, err, op))
	}
	if _, err := b.client.NewSetServerTimeService().Do(cctx); err != nil {
		b.connected = false
		return fmt.Errorf("%w: %w", ports.ErrConnectionFailed, b.handleError(ctx, err, op))
	}
	b.connected = true
	b.logger.Info(ctx, "Connected to Binance venue")
	return nil
}

// Disconnect marks the session closed. The underlying transport is HTTP so
// there is nothing to tear down beyond the session flag.
func (b *Broker) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		b.connected = false
		b.logger.Info(ctx, "Disconnected from Binance venue")
	}
	return nil
}

// ensureConnectedLocked attempts exactly one transparent reconnect before
// giving up; repeated failures surface to the caller.
func (b *Broker) ensureConnectedLocked(ctx context.Context) error {
	if b.connected {
		return nil
	}
	b.logger.Warn(ctx, "Venue session down, attempting reconnect")
	select {
	case <-time.After(b.reconnectDelay):
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
	return b.connectLocked(ctx)
}

func (b *Broker) reject(ctx context.Context, trade *domain.Trade, reason string) *domain.Trade {
	if err := trade.Reject(reason); err != nil {
		b.logger.Error(ctx, err, "Could not mark trade rejected", map[string]interface{}{"trade": trade.String(), "reason": reason})
		return trade
	}
	b.logger.Warn(ctx, "Trade rejected", map[string]interface{}{"trade": trade.String(), "reason": reason})
	return trade
}

// Execute submits the trade to the venue. The returned trade is always the
// input trade with its status resolved; submission failures land in REJECTED
// with the reason recorded, never in an error return.
func (b *Broker) Execute(ctx context.Context, trade *domain.Trade) *domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "Execute"
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return b.reject(ctx, trade, "not connected to venue: "+err.Error())
	}
	if !trade.IsPending() {
		b.logger.Error(ctx, ports.ErrInvalidRequest, "Execute called on non-pending trade", map[string]interface{}{"trade": trade.String()})
		return trade
	}
	if trade.Size <= 0 {
		return b.reject(ctx, trade, fmt.Sprintf("invalid trade size %v", trade.Size))
	}

	side, orderType, err := venueOrderParams(trade.Direction, trade.OrderType)
	if err != nil {
		return b.reject(ctx, trade, err.Error())
	}

	svc := b.client.NewCreateOrderService().
		Symbol(trade.Symbol).
		Side(side).
		Type(orderType).
		Quantity(formatQty(trade.Size))

	switch trade.OrderType {
	case domain.Limit:
		svc = svc.Price(formatPrice(*trade.EntryPrice)).TimeInForce(futures.TimeInForceTypeGTC)
	case domain.Stop:
		svc = svc.StopPrice(formatPrice(*trade.EntryPrice))
	}

	cctx, cancel := b.callCtx(ctx)
	order, err := svc.Do(cctx)
	cancel()
	if err != nil {
		return b.reject(ctx, trade, b.handleError(ctx, err, op).Error())
	}

	trade.ID = strconv.FormatInt(order.OrderID, 10)

	if trade.OrderType != domain.Market {
		// Protection rests alongside the order so the fill is never naked,
		// even when it lands between reconciliation polls.
		b.placeProtectiveOrdersLocked(ctx, trade)
		b.logger.Info(ctx, "Pending order placed", map[string]interface{}{"trade": trade.String()})
		return trade
	}

	fillPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	if fillPrice <= 0 {
		// Some venue responses omit the average fill price; fall back to the
		// current book on the side the order crossed.
		quote, qerr := b.getPriceLocked(ctx, trade.Symbol)
		if qerr != nil {
			return b.reject(ctx, trade, "fill price unavailable: "+qerr.Error())
		}
		if trade.Direction == domain.Buy {
			fillPrice = quote.Ask
		} else {
			fillPrice = quote.Bid
		}
	}

	trade.ExecutedPrice = fillPrice
	if trade.OpenTime.IsZero() {
		trade.OpenTime = time.UnixMilli(order.UpdateTime)
	}
	if err := trade.UpdateStatus(domain.StatusOpen); err != nil {
		b.logger.Error(ctx, err, "Failed to open trade after fill", map[string]interface{}{"trade": trade.String()})
		return trade
	}

	// In one-way position mode the venue reports the filled result as a
	// position keyed by symbol, not by the originating order ID. Adopt the
	// position identity here so reconciliation matches the venue's reports.
	trade.ID = trade.Symbol

	b.placeProtectiveOrdersLocked(ctx, trade)
	b.logger.Info(ctx, "Market order executed", map[string]interface{}{"trade": trade.String()})
	return trade
}

// placeProtectiveOrdersLocked installs venue-side SL/TP as close-position
// orders. Failures here leave the position unprotected, so they are logged
// loudly but do not fail the already-filled trade.
func (b *Broker) placeProtectiveOrdersLocked(ctx context.Context, trade *domain.Trade) {
	side := closingSide(trade.Direction)

	if trade.StopLoss != nil {
		cctx, cancel := b.callCtx(ctx)
		_, err := b.client.NewCreateOrderService().
			Symbol(trade.Symbol).
			Side(side).
			Type(futures.OrderTypeStopMarket).
			StopPrice(formatPrice(*trade.StopLoss)).
			ClosePosition(true).
			Do(cctx)
		cancel()
		if err != nil {
			b.logger.Error(ctx, b.handleError(ctx, err, "PlaceStopLoss"), "Position is open without a stop loss", map[string]interface{}{"trade": trade.String()})
		}
	}

	if trade.TakeProfit != nil {
		cctx, cancel := b.callCtx(ctx)
		_, err := b.client.NewCreateOrderService().
			Symbol(trade.Symbol).
			Side(side).
			Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(formatPrice(*trade.TakeProfit)).
			ClosePosition(true).
			Do(cctx)
		cancel()
		if err != nil {
			b.logger.Error(ctx, b.handleError(ctx, err, "PlaceTakeProfit"), "Position is open without a take profit", map[string]interface{}{"trade": trade.String()})
		}
	}
}

// CloseTrade flattens an OPEN position with a reduce-only market order, or
// cancels a PENDING venue order. The trade is returned with its state as far
// as it could be resolved; failures are logged and leave the state unchanged.
func (b *Broker) CloseTrade(ctx context.Context, trade *domain.Trade) *domain.Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "CloseTrade"
	if err := b.ensureConnectedLocked(ctx); err != nil {
		b.logger.Error(ctx, err, "Failed to connect while closing trade", map[string]interface{}{"trade": trade.String()})
		return trade
	}

	if trade.IsPending() && trade.ID != "" {
		orderID, err := strconv.ParseInt(trade.ID, 10, 64)
		if err != nil {
			b.logger.Error(ctx, err, "Pending trade carries a non-numeric order ID", map[string]interface{}{"trade": trade.String()})
			return trade
		}
		cctx, cancel := b.callCtx(ctx)
		_, err = b.client.NewCancelOrderService().Symbol(trade.Symbol).OrderID(orderID).Do(cctx)
		cancel()
		if err != nil {
			b.logger.Error(ctx, b.handleError(ctx, err, op), "Failed to cancel pending order", map[string]interface{}{"trade": trade.String()})
			return trade
		}
		if err := trade.UpdateStatus(domain.StatusCancelled); err != nil {
			b.logger.Error(ctx, err, "Failed to mark order cancelled", map[string]interface{}{"trade": trade.String()})
		}
		return trade
	}

	if !trade.IsOpen() {
		b.logger.Warn(ctx, "CloseTrade called on trade that is neither open nor pending", map[string]interface{}{"trade": trade.String()})
		return trade
	}

	cctx, cancel := b.callCtx(ctx)
	order, err := b.client.NewCreateOrderService().
		Symbol(trade.Symbol).
		Side(closingSide(trade.Direction)).
		Type(futures.OrderTypeMarket).
		Quantity(formatQty(trade.Size)).
		ReduceOnly(true).
		Do(cctx)
	cancel()
	if err != nil {
		b.logger.Error(ctx, b.handleError(ctx, err, op), "Failed to close position", map[string]interface{}{"trade": trade.String()})
		return trade
	}

	closePrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	trade.ClosePrice = closePrice
	if trade.CloseTime.IsZero() {
		trade.CloseTime = time.UnixMilli(order.UpdateTime)
	}
	if trade.CloseReason == "" {
		trade.CloseReason = domain.CloseReasonManual
	}
	if err := trade.UpdateStatus(domain.StatusClosed); err != nil {
		b.logger.Error(ctx, err, "Failed to mark trade closed", map[string]interface{}{"trade": trade.String()})
	}
	b.cancelProtectiveOrdersLocked(ctx, trade.Symbol)
	b.logger.Info(ctx, "Position closed", map[string]interface{}{"trade": trade.String()})
	return trade
}

// cancelProtectiveOrdersLocked removes resting close-position orders left
// behind after a position is flattened; a stale one would fire against the
// next position opened on the symbol.
func (b *Broker) cancelProtectiveOrdersLocked(ctx context.Context, symbol string) {
	op := "CancelProtectiveOrders"
	cctx, cancel := b.callCtx(ctx)
	orders, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(cctx)
	cancel()
	if err != nil {
		b.logger.Error(ctx, b.handleError(ctx, err, op), "Could not list protective orders after close", map[string]interface{}{"symbol": symbol})
		return
	}

	for _, order := range orders {
		if !order.ClosePosition {
			continue
		}
		cctx, cancel := b.callCtx(ctx)
		_, err := b.client.NewCancelOrderService().Symbol(symbol).OrderID(order.OrderID).Do(cctx)
		cancel()
		if err != nil {
			b.logger.Error(ctx, b.handleError(ctx, err, op), "Stale protective order left on venue", map[string]interface{}{"symbol": symbol, "orderID": order.OrderID})
		}
	}
}

// GetAccountSnapshot returns the whole account state in one call.
func (b *Broker) GetAccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "GetAccountSnapshot"
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return domain.AccountSnapshot{}, err
	}

	cctx, cancel := b.callCtx(ctx)
	account, err := b.client.NewGetAccountService().Do(cctx)
	cancel()
	if err != nil {
		return domain.AccountSnapshot{}, b.handleError(ctx, err, op)
	}

	balance, err := strconv.ParseFloat(account.TotalWalletBalance, 64)
	if err != nil {
		return domain.AccountSnapshot{}, b.handleError(ctx, fmt.Errorf("%w: parsing balance '%s': %w", ports.ErrMalformedResponse, account.TotalWalletBalance, err), op)
	}
	equity, err := strconv.ParseFloat(account.TotalMarginBalance, 64)
	if err != nil {
		return domain.AccountSnapshot{}, b.handleError(ctx, fmt.Errorf("%w: parsing equity '%s': %w", ports.ErrMalformedResponse, account.TotalMarginBalance, err), op)
	}
	margin, _ := strconv.ParseFloat(account.TotalPositionInitialMargin, 64)
	freeMargin, _ := strconv.ParseFloat(account.AvailableBalance, 64)
	profit, _ := strconv.ParseFloat(account.TotalUnrealizedProfit, 64)

	return domain.AccountSnapshot{
		Balance:    balance,
		Equity:     equity,
		Margin:     margin,
		FreeMargin: freeMargin,
		Currency:   "USDT",
		Profit:     profit,
	}, nil
}

// GetOpenPositions returns the venue's authoritative open-position set. The
// profit on each returned trade is the venue's own figure and is copied as-is
// downstream, never recomputed.
func (b *Broker) GetOpenPositions(ctx context.Context) ([]*domain.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "GetOpenPositions"
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	cctx, cancel := b.callCtx(ctx)
	positions, err := b.client.NewGetPositionRiskService().Do(cctx)
	cancel()
	if err != nil {
		return nil, b.handleError(ctx, err, op)
	}

	trades := make([]*domain.Trade, 0, len(positions))
	for _, pos := range positions {
		trade, err := positionToTrade(pos)
		if err != nil {
			return nil, b.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err), op)
		}
		if trade != nil {
			trades = append(trades, trade)
		}
	}
	return trades, nil
}

// GetPendingOrders returns venue-side orders that have not filled yet.
func (b *Broker) GetPendingOrders(ctx context.Context) ([]*domain.Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "GetPendingOrders"
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	cctx, cancel := b.callCtx(ctx)
	orders, err := b.client.NewListOpenOrdersService().Do(cctx)
	cancel()
	if err != nil {
		return nil, b.handleError(ctx, err, op)
	}

	trades := make([]*domain.Trade, 0, len(orders))
	for _, order := range orders {
		// Protective close-position orders belong to an open position, not to
		// the pending set.
		if order.ClosePosition {
			continue
		}
		trade, err := orderToTrade(order)
		if err != nil {
			return nil, b.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err), op)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// GetPrice returns the current top-of-book quote for the symbol.
func (b *Broker) GetPrice(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureConnectedLocked(ctx); err != nil {
		return domain.PriceSnapshot{}, err
	}
	return b.getPriceLocked(ctx, symbol)
}

func (b *Broker) getPriceLocked(ctx context.Context, symbol string) (domain.PriceSnapshot, error) {
	op := "GetPrice"
	cctx, cancel := b.callCtx(ctx)
	tickers, err := b.client.NewListBookTickersService().Symbol(symbol).Do(cctx)
	cancel()
	if err != nil {
		return domain.PriceSnapshot{}, b.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: %s", ports.ErrNoPrice, symbol)
	}

	bid, err := strconv.ParseFloat(tickers[0].BidPrice, 64)
	if err != nil {
		return domain.PriceSnapshot{}, b.handleError(ctx, fmt.Errorf("%w: parsing bid '%s': %w", ports.ErrMalformedResponse, tickers[0].BidPrice, err), op)
	}
	ask, err := strconv.ParseFloat(tickers[0].AskPrice, 64)
	if err != nil {
		return domain.PriceSnapshot{}, b.handleError(ctx, fmt.Errorf("%w: parsing ask '%s': %w", ports.ErrMalformedResponse, tickers[0].AskPrice, err), op)
	}

	quote := domain.PriceSnapshot{Symbol: symbol, Bid: bid, Ask: ask, Time: time.Now()}
	if !quote.IsValid() {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: venue returned zero quote for %s", ports.ErrNoPrice, symbol)
	}
	return quote, nil
}

// GetHistoricalBars retrieves up to count bars for the symbol, oldest first.
func (b *Broker) GetHistoricalBars(ctx context.Context, symbol string, timeframe domain.Timeframe, count int) ([]domain.Bar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := "GetHistoricalBars"
	if err := b.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	cctx, cancel := b.callCtx(ctx)
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(venueInterval(timeframe)).
		Limit(count).
		Do(cctx)
	cancel()
	if err != nil {
		return nil, b.handleError(ctx, err, op)
	}

	bars := make([]domain.Bar, 0, len(klines))
	for _, bk := range klines {
		bar, err := barFromKline(bk, symbol, timeframe)
		if err != nil {
			return nil, b.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err), op)
		}
		bars = append(bars, bar)
	}
	return domain.NormalizeBars(bars), nil
}
