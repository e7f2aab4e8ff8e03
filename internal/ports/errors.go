package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying venue/infrastructure errors with these so callers
// can discriminate with errors.Is without importing venue SDKs.
var (
	// Connection lifecycle — recoverable by reconnect/retry.
	ErrNotConnected         = errors.New("no active venue session")
	ErrConnectionFailed     = errors.New("failed to connect to the venue")
	ErrAuthenticationFailed = errors.New("venue authentication failed")
	ErrTimeout              = errors.New("venue operation timed out")
	ErrContextCanceled      = errors.New("operation canceled via context")

	// Market data
	ErrNoPrice           = errors.New("no live quote available")
	ErrMalformedResponse = errors.New("malformed venue response")

	// Orders — terminal for the trade, not fatal for the process. Wherever a
	// Trade is the return value the rejection travels in-band as status
	// REJECTED; this sentinel covers the remaining surfaces.
	ErrOrderRejected  = errors.New("venue refused the order")
	ErrOrderNotFound  = errors.New("order not found on the venue")
	ErrRateLimited    = errors.New("venue rate limit exceeded")
	ErrInvalidRequest = errors.New("invalid request parameters")

	// Reconciliation — venue and local view disagree in an unresolvable way.
	// Logged at error level; the venue view wins.
	ErrReconciliationConflict = errors.New("venue and local trade state disagree")

	// Risk gate
	ErrRiskRejected = errors.New("trade rejected by risk rules")

	// Persistence
	ErrQueryFailed  = errors.New("journal query failed")
	ErrUpdateFailed = errors.New("journal update failed")

	ErrUnknown = errors.New("unknown error occurred")
)
