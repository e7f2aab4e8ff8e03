package risk

import (
	"context"
	"fmt"

	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"
)

// Config holds the risk limits enforced before any trade reaches the venue.
type Config struct {
	MaxPositionSize  float64
	MaxOpenPositions int
	MaxDailyTrades   int
	MinFreeMargin    float64
	RequireStopLoss  bool
}

// Manager implements ports.RiskGate. It sits between the trading service and
// the venue: a trade it refuses is never submitted.
type Manager struct {
	config Config
	repo   ports.TradeRepository
	logger ports.Logger
}

// NewManager creates a risk gate. The repository supplies the per-day trade
// count; it may be nil, in which case the daily limit is not enforced.
func NewManager(config Config, repo ports.TradeRepository, logger ports.Logger) *Manager {
	return &Manager{config: config, repo: repo, logger: logger}
}

func (m *Manager) refuse(ctx context.Context, trade *domain.Trade, format string, args ...interface{}) error {
	reason := fmt.Sprintf(format, args...)
	if m.logger != nil {
		m.logger.Warn(ctx, "Trade refused by risk gate", map[string]interface{}{"trade": trade.String(), "reason": reason})
	}
	return fmt.Errorf("%w: %s", ports.ErrRiskRejected, reason)
}

// Approve checks the trade against the configured limits. A nil return means
// the trade may be submitted.
func (m *Manager) Approve(ctx context.Context, trade *domain.Trade, account domain.AccountSnapshot, openPositions int) error {
	if m.config.MaxPositionSize > 0 && trade.Size > m.config.MaxPositionSize {
		return m.refuse(ctx, trade, "position size %v exceeds maximum allowed %v", trade.Size, m.config.MaxPositionSize)
	}

	if m.config.MaxOpenPositions > 0 && openPositions >= m.config.MaxOpenPositions {
		return m.refuse(ctx, trade, "open positions %d at maximum allowed %d", openPositions, m.config.MaxOpenPositions)
	}

	if m.config.MinFreeMargin > 0 && account.FreeMargin < m.config.MinFreeMargin {
		return m.refuse(ctx, trade, "free margin %v below minimum required %v", account.FreeMargin, m.config.MinFreeMargin)
	}

	if m.config.RequireStopLoss && trade.StopLoss == nil {
		return m.refuse(ctx, trade, "stop loss is required")
	}

	if m.config.MaxDailyTrades > 0 && m.repo != nil {
		count, err := m.repo.CountTodayBySymbol(ctx, trade.Symbol)
		if err != nil {
			return fmt.Errorf("failed to count today's trades for %s: %w", trade.Symbol, err)
		}
		if count >= m.config.MaxDailyTrades {
			return m.refuse(ctx, trade, "daily trades %d at maximum allowed %d", count, m.config.MaxDailyTrades)
		}
	}

	return nil
}
