package binancebroker

import (
	"fmt"
	"strconv"
	"time"

	"fxTradeBot/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
)

// venueOrderParams maps a trade's direction and order type onto the venue's
// order vocabulary. Each (direction, orderType) pair must land on a distinct
// (side, type) pair so the venue can never conflate two different intents.
func venueOrderParams(direction domain.TradeDirection, orderType domain.OrderType) (futures.SideType, futures.OrderType, error) {
	var side futures.SideType
	switch direction {
	case domain.Buy:
		side = futures.SideTypeBuy
	case domain.Sell:
		side = futures.SideTypeSell
	default:
		return "", "", fmt.Errorf("unknown trade direction %q", direction)
	}

	switch orderType {
	case domain.Market:
		return side, futures.OrderTypeMarket, nil
	case domain.Limit:
		return side, futures.OrderTypeLimit, nil
	case domain.Stop:
		return side, futures.OrderTypeStopMarket, nil
	default:
		return "", "", fmt.Errorf("unknown order type %q", orderType)
	}
}

// closingSide returns the venue side that flattens a position.
func closingSide(direction domain.TradeDirection) futures.SideType {
	if direction == domain.Buy {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

var venueIntervals = map[domain.Timeframe]string{
	domain.M1:  "1m",
	domain.M5:  "5m",
	domain.M15: "15m",
	domain.M30: "30m",
	domain.H1:  "1h",
	domain.H4:  "4h",
	domain.D1:  "1d",
	domain.W1:  "1w",
	domain.MN1: "1M",
}

// venueInterval converts a timeframe into the venue's kline interval string.
func venueInterval(timeframe domain.Timeframe) string {
	if interval, ok := venueIntervals[timeframe]; ok {
		return interval
	}
	return "1m"
}

func formatQty(size float64) string {
	return strconv.FormatFloat(size, 'f', -1, 64)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// positionToTrade converts a venue position report into a detached Trade. The
// venue has no per-position ticket on this endpoint, so the symbol serves as
// the position identifier (one-way position mode).
func positionToTrade(pos *futures.PositionRisk) (*domain.Trade, error) {
	amt, err := strconv.ParseFloat(pos.PositionAmt, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing position amount '%s': %w", pos.PositionAmt, err)
	}
	if amt == 0 {
		return nil, nil
	}

	direction := domain.Buy
	size := amt
	if amt < 0 {
		direction = domain.Sell
		size = -amt
	}

	entryPrice, err := strconv.ParseFloat(pos.EntryPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing entry price '%s': %w", pos.EntryPrice, err)
	}
	profit, err := strconv.ParseFloat(pos.UnRealizedProfit, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing unrealized profit '%s': %w", pos.UnRealizedProfit, err)
	}

	trade, err := domain.NewTrade(pos.Symbol, direction, size, domain.Market, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	trade.ID = pos.Symbol
	trade.ExecutedPrice = entryPrice
	trade.Profit = profit
	if err := trade.UpdateStatus(domain.StatusOpen); err != nil {
		return nil, err
	}
	return trade, nil
}

// orderToTrade converts a venue-side resting order into a PENDING Trade.
func orderToTrade(order *futures.Order) (*domain.Trade, error) {
	size, err := strconv.ParseFloat(order.OrigQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing order quantity '%s': %w", order.OrigQuantity, err)
	}

	direction := domain.Buy
	if order.Side == futures.SideTypeSell {
		direction = domain.Sell
	}

	orderType := domain.Limit
	entryStr := order.Price
	if order.Type == futures.OrderTypeStopMarket || order.Type == futures.OrderTypeStop {
		orderType = domain.Stop
		entryStr = order.StopPrice
	}
	entry, err := strconv.ParseFloat(entryStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing order price '%s': %w", entryStr, err)
	}

	trade, err := domain.NewTrade(order.Symbol, direction, size, orderType, &entry, nil, nil)
	if err != nil {
		return nil, err
	}
	trade.ID = strconv.FormatInt(order.OrderID, 10)
	return trade, nil
}

func barFromKline(bk *futures.Kline, symbol string, timeframe domain.Timeframe) (domain.Bar, error) {
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Bar{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		Symbol:    symbol,
		Timeframe: timeframe,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
