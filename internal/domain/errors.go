package domain

import "errors"

// Domain-level errors. Adapters and callers discriminate with errors.Is.
var (
	// ErrValidation indicates malformed trade intent. It is raised before any
	// venue interaction and surfaced synchronously to the caller.
	ErrValidation = errors.New("invalid trade parameters")

	// ErrInvalidTransition indicates a status change not present in the
	// transition table. It signals a defect in the calling code, not a normal
	// runtime condition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMissingExecutedPrice indicates an attempt to open a trade before its
	// fill price was recorded.
	ErrMissingExecutedPrice = errors.New("executed price is required to open a trade")
)
