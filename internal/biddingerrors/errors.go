package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrAuctionExists    = errors.New("auction already exists")
	ErrVersionConflict  = errors.New("auction was modified concurrently")
	ErrStoreUnavailable = errors.New("auction store unavailable")
)

// business logic errors
var (
	ErrInvalidBid        = errors.New("invalid bid")
	ErrInvalidAuction    = errors.New("invalid auction")
	ErrAuctionNotLive    = errors.New("auction is not accepting bids")
	ErrSelfBidForbidden  = errors.New("owner cannot bid on own auction")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotYetStartable   = errors.New("bidding start time not reached")
	ErrInvalidSchedule   = errors.New("invalid bidding schedule")
	ErrCancelWithBids    = errors.New("auction with bids cannot be cancelled without force")
	ErrForbidden         = errors.New("actor not allowed to perform operation")
)

// transient errors; the whole operation may be retried from scratch
var (
	ErrLockTimeout        = errors.New("timed out waiting for auction lock")
	ErrPersistenceFailure = errors.New("auction persistence failed")
)

// IsRetryable reports whether err is transient and left no partial state behind
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrPersistenceFailure)
}

// IsRejection reports whether err is a terminal validation failure
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrAuctionNotFound, ErrInvalidBid, ErrInvalidAuction, ErrAuctionNotLive,
		ErrSelfBidForbidden, ErrBidTooLow, ErrInvalidTransition, ErrNotYetStartable,
		ErrInvalidSchedule, ErrCancelWithBids, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
