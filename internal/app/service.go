package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fxTradeBot/config"
	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"
)

// TradingService orchestrates the trade lifecycle: risk gating, venue
// submission, journaling, and the periodic reconciliation that keeps the
// local view aligned with the venue.
type TradingService struct {
	cfg        *config.Config
	logger     ports.Logger
	broker     ports.Broker
	repo       ports.TradeRepository
	riskGate   ports.RiskGate
	book       *TradeBook
	reconciler *Reconciler
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	broker ports.Broker,
	repo ports.TradeRepository,
	riskGate ports.RiskGate,
) (*TradingService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || broker == nil || repo == nil || riskGate == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}

	book := NewTradeBook()
	reconciler, err := NewReconciler(broker, book, repo, logger)
	if err != nil {
		return nil, err
	}

	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		broker:     broker,
		repo:       repo,
		riskGate:   riskGate,
		book:       book,
		reconciler: reconciler,
	}, nil
}

// Book exposes the trade book for inspection.
func (s *TradingService) Book() *TradeBook { return s.book }

// Submit runs a trade through the risk gate and, if approved, the venue. The
// returned trade always reflects the final submission state: REJECTED trades
// come back with the reason set, not as an error.
func (s *TradingService) Submit(ctx context.Context, trade *domain.Trade) (*domain.Trade, error) {
	account, err := s.broker.GetAccountSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account snapshot: %w", err)
	}

	if err := s.riskGate.Approve(ctx, trade, account, s.book.OpenCount()); err != nil {
		if rejErr := trade.Reject(err.Error()); rejErr != nil {
			s.logger.Error(ctx, rejErr, "Could not mark risk-refused trade rejected", map[string]interface{}{"trade": trade.String()})
		}
		s.journal(ctx, trade)
		return trade, err
	}

	result := s.broker.Execute(ctx, trade)
	s.journal(ctx, result)

	if result.IsOpen() || result.IsPending() {
		s.book.Add(result)
	}
	return result, nil
}

// Close flattens an open trade or cancels a pending one, then journals the
// outcome.
func (s *TradingService) Close(ctx context.Context, trade *domain.Trade) *domain.Trade {
	result := s.broker.CloseTrade(ctx, trade)
	s.journal(ctx, result)
	if result.Status().IsTerminal() {
		s.book.Remove(result.ID)
	}
	return result
}

// TotalProfit reports the realized profit recorded in the journal.
func (s *TradingService) TotalProfit(ctx context.Context) (float64, error) {
	return s.repo.TotalProfit(ctx)
}

// Start connects to the venue, restores in-flight trades from the journal,
// and runs the reconciliation loop until the context is cancelled or a
// shutdown signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.broker.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to venue: %w", err)
	}
	defer func() {
		if err := s.broker.Disconnect(context.Background()); err != nil {
			s.logger.Error(context.Background(), err, "Failed to disconnect from venue")
		}
	}()

	if err := s.restore(ctx); err != nil {
		return err
	}

	// First pass immediately so restored state is corrected before trading.
	if err := s.reconciler.ReconcileOnce(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial reconciliation failed")
	}

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	s.logger.Info(ctx, "Trading Service started", map[string]interface{}{
		"symbol":            s.cfg.Symbol,
		"venue":             string(s.cfg.Venue),
		"reconcileInterval": s.cfg.ReconcileInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading Service stopping")
			return nil
		case <-ticker.C:
			if err := s.reconciler.ReconcileOnce(ctx); err != nil {
				s.logger.Error(ctx, err, "Reconciliation pass failed")
			}
		}
	}
}

// restore loads in-flight trades from the journal into the book after a
// restart. The first reconciliation pass then settles any that changed while
// the service was down.
func (s *TradingService) restore(ctx context.Context) error {
	trades, err := s.repo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore in-flight trades: %w", err)
	}
	for _, trade := range trades {
		if trade.ID == "" {
			s.logger.Warn(ctx, "Journaled trade has no venue ID, cannot track", map[string]interface{}{"localID": trade.LocalID, "symbol": trade.Symbol})
			continue
		}
		s.book.Add(trade)
	}
	if len(trades) > 0 {
		s.logger.Info(ctx, "Restored in-flight trades from journal", map[string]interface{}{"count": len(trades)})
	}
	return nil
}

func (s *TradingService) journal(ctx context.Context, trade *domain.Trade) {
	if err := s.repo.Save(ctx, trade); err != nil {
		s.logger.Error(ctx, err, "Failed to journal trade", map[string]interface{}{"trade": trade.String()})
	}
}
