package app

import (
	"context"
	"fmt"

	"fxTradeBot/internal/domain"
	"fxTradeBot/internal/ports"
)

// missingPollThreshold is how many consecutive polls a locally-open trade may
// be absent from the venue before it is declared closed. A single absence can
// be a transient snapshot artifact; two in a row is treated as real.
const missingPollThreshold = 2

// Reconciler aligns the local trade book with the venue's view. The venue
// always wins: venue-reported profit is copied verbatim, positions the venue
// no longer has are closed locally, positions only the venue knows about are
// adopted.
type Reconciler struct {
	broker ports.Broker
	book   *TradeBook
	repo   ports.TradeRepository
	logger ports.Logger

	// consecutive polls each venue ID has been missing from the venue
	missing map[string]int
}

// NewReconciler creates a reconciler over the given book. The repository may
// be nil when no journaling is wanted.
func NewReconciler(broker ports.Broker, book *TradeBook, repo ports.TradeRepository, logger ports.Logger) (*Reconciler, error) {
	if broker == nil || book == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for reconciler")
	}
	return &Reconciler{
		broker:  broker,
		book:    book,
		repo:    repo,
		logger:  logger,
		missing: make(map[string]int),
	}, nil
}

// ReconcileOnce runs a single reconciliation pass.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	positions, err := r.broker.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch venue positions: %w", err)
	}
	pending, err := r.broker.GetPendingOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch venue pending orders: %w", err)
	}

	venueSide := make(map[string]*domain.Trade, len(positions)+len(pending))
	for _, vt := range positions {
		venueSide[vt.ID] = vt
	}
	for _, vt := range pending {
		venueSide[vt.ID] = vt
	}

	for id, vt := range venueSide {
		local, ok := r.book.Get(id)
		if !ok {
			local = r.rekey(ctx, vt, venueSide)
		}
		if local == nil {
			r.adopt(ctx, vt)
			continue
		}
		r.align(ctx, local, vt)
		delete(r.missing, id)
	}

	// Anything we track that the venue no longer reports.
	for _, local := range r.book.All() {
		if _, ok := venueSide[local.ID]; ok {
			continue
		}
		if local.Status().IsTerminal() {
			r.book.Remove(local.ID)
			delete(r.missing, local.ID)
			continue
		}

		r.missing[local.ID]++
		polls := r.missing[local.ID]
		if polls < missingPollThreshold {
			r.logger.Warn(ctx, "Trade missing from venue snapshot", map[string]interface{}{"id": local.ID, "consecutivePolls": polls})
			continue
		}
		r.closeMissing(ctx, local)
	}

	return nil
}

// rekey matches an unrecognized venue report against a tracked trade whose ID
// went stale because the venue changed the key: order IDs become symbol-keyed
// position reports once a fill turns an order into a position (one-way
// position mode). The tracked trade is re-indexed under the venue's key and
// returned; nil means no tracked trade can be the same trade and the report
// should be adopted as new.
func (r *Reconciler) rekey(ctx context.Context, vt *domain.Trade, venueSide map[string]*domain.Trade) *domain.Trade {
	for _, local := range r.book.All() {
		if local.Status().IsTerminal() {
			continue
		}
		// Still reported under its own key: a different trade.
		if _, reported := venueSide[local.ID]; reported {
			continue
		}
		if local.Symbol != vt.Symbol || local.Direction != vt.Direction {
			continue
		}
		// A venue-side resting order can only be a trade we still hold as
		// pending; an open local trade must map to a position report.
		if vt.IsPending() && !local.IsPending() {
			continue
		}

		oldID := local.ID
		r.book.Remove(oldID)
		delete(r.missing, oldID)
		local.ID = vt.ID
		r.book.Add(local)
		r.logger.Info(ctx, "Re-keyed trade to venue identity", map[string]interface{}{"oldID": oldID, "newID": vt.ID, "symbol": local.Symbol})
		return local
	}
	return nil
}

// adopt registers a trade the venue reports but the book does not track, e.g.
// one opened manually or lost to a crash before journaling.
func (r *Reconciler) adopt(ctx context.Context, vt *domain.Trade) {
	r.logger.Warn(ctx, "Adopting venue trade not found locally", map[string]interface{}{"trade": vt.String()})
	r.book.Add(vt)
	r.journal(ctx, vt)
}

// align copies the venue's authoritative view onto the local trade. Structural
// disagreements are conflicts: they are logged and the venue's values are
// taken, since the local record cannot be more right than the venue's.
func (r *Reconciler) align(ctx context.Context, local, venue *domain.Trade) {
	if local.Symbol != venue.Symbol || local.Direction != venue.Direction || local.Size != venue.Size {
		r.logger.Error(ctx, ports.ErrReconciliationConflict, "Local trade disagrees with venue, venue wins", map[string]interface{}{
			"id":             local.ID,
			"localSymbol":    local.Symbol,
			"venueSymbol":    venue.Symbol,
			"localDirection": local.Direction,
			"venueDirection": venue.Direction,
			"localSize":      local.Size,
			"venueSize":      venue.Size,
		})
		local.Symbol = venue.Symbol
		local.Direction = venue.Direction
		local.Size = venue.Size
	}

	changed := false
	if venue.IsOpen() {
		// Venue profit is copied as-is: the venue nets out commission, swap
		// and per-instrument conversion that no local formula reproduces.
		if local.Profit != venue.Profit {
			local.Profit = venue.Profit
			changed = true
		}
		if venue.ExecutedPrice > 0 && local.ExecutedPrice != venue.ExecutedPrice {
			local.ExecutedPrice = venue.ExecutedPrice
			changed = true
		}
		if local.IsPending() {
			// The venue filled a resting order between polls.
			if local.ExecutedPrice <= 0 {
				local.ExecutedPrice = venue.ExecutedPrice
			}
			if err := local.UpdateStatus(domain.StatusOpen); err != nil {
				r.logger.Error(ctx, err, "Failed to mark filled order open", map[string]interface{}{"trade": local.String()})
			} else {
				r.logger.Info(ctx, "Pending order filled on venue", map[string]interface{}{"trade": local.String()})
				changed = true
			}
		}
	}

	if changed {
		r.journal(ctx, local)
	}
}

// closeMissing finalizes a trade the venue has stopped reporting for
// missingPollThreshold consecutive polls.
func (r *Reconciler) closeMissing(ctx context.Context, local *domain.Trade) {
	defer func() {
		r.book.Remove(local.ID)
		delete(r.missing, local.ID)
	}()

	if local.IsPending() {
		if err := local.UpdateStatus(domain.StatusCancelled); err != nil {
			r.logger.Error(ctx, err, "Failed to cancel order missing from venue", map[string]interface{}{"trade": local.String()})
			return
		}
		r.logger.Warn(ctx, "Pending order no longer on venue, marked cancelled", map[string]interface{}{"trade": local.String()})
		r.journal(ctx, local)
		return
	}

	// Closed on the venue side (SL/TP hit, liquidation, manual close). The
	// last venue-reported profit stands as the realized figure.
	local.CloseReason = domain.CloseReasonBroker
	if err := local.UpdateStatus(domain.StatusClosed); err != nil {
		r.logger.Error(ctx, err, "Failed to close trade missing from venue", map[string]interface{}{"trade": local.String()})
		return
	}
	r.logger.Warn(ctx, "Position no longer on venue, marked closed", map[string]interface{}{"trade": local.String(), "profit": local.Profit})
	r.journal(ctx, local)
}

func (r *Reconciler) journal(ctx context.Context, trade *domain.Trade) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Save(ctx, trade); err != nil {
		r.logger.Error(ctx, err, "Failed to journal reconciled trade", map[string]interface{}{"trade": trade.String()})
	}
}
