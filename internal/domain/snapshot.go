package domain

import "time"

// PriceSnapshot is an immutable read of the current quote for a symbol.
// A snapshot is usable only when both sides are present; callers must treat an
// unusable snapshot as "cannot execute", never substitute a default price.
type PriceSnapshot struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// IsValid reports whether both sides of the quote are present.
func (p PriceSnapshot) IsValid() bool {
	return p.Bid > 0 && p.Ask > 0 && isFinite(p.Bid) && isFinite(p.Ask)
}

// Spread returns the ask/bid distance, zero for an unusable snapshot.
func (p PriceSnapshot) Spread() float64 {
	if !p.IsValid() {
		return 0
	}
	return p.Ask - p.Bid
}

// AccountSnapshot is a read-only projection of account metrics, refreshed on
// demand as a whole. A failed refresh leaves the previous snapshot intact and
// is reported as a failure, never merged field by field.
type AccountSnapshot struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Currency   string
	Profit     float64
	Leverage   int
}
