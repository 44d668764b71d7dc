package negotiation

import "errors"

var (
	// ErrInvalidState is returned when a transition's precondition does not hold.
	// Callers render it as a retry-safe conflict, the caller's view was stale.
	ErrInvalidState = errors.New("invalid negotiation state")

	ErrInvalidAmount = errors.New("amount must be positive")
	ErrBidNotFound   = errors.New("bid not found")
	ErrNotBidOwner   = errors.New("bid belongs to another worker")
	ErrSelfBid       = errors.New("poster cannot bid on own job")
)
