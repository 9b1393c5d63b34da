// Package lifecycle is the single authority on auction status transitions
// and on the derived fields that accompany them. Functions mutate the
// passed auction only on success; a failed transition leaves it untouched.
// Re-applying a transition whose target is already reached is a no-op.
package lifecycle

import (
	"fmt"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/models"
)

var transitions = map[models.AuctionStatus][]models.AuctionStatus{
	models.StatusDraft:     {models.StatusScheduled},
	models.StatusScheduled: {models.StatusLive},
	models.StatusLive:      {models.StatusPaused, models.StatusEnded, models.StatusCancelled},
	models.StatusPaused:    {models.StatusLive},
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to models.AuctionStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func invalid(a *models.Auction, to models.AuctionStatus) error {
	return fmt.Errorf("lifecycle: %w - %s -> %s on auction %s", biddingerrors.ErrInvalidTransition, a.Status, to, a.AuctionID)
}

// Schedule moves a draft auction to scheduled. Both bidding bounds must lie
// in the future and starts must precede ends.
func Schedule(a *models.Auction, now time.Time) (bool, error) {
	if a.Status == models.StatusScheduled {
		return false, nil
	}
	if !CanTransition(a.Status, models.StatusScheduled) {
		return false, invalid(a, models.StatusScheduled)
	}
	if !a.BiddingStartsAt.Before(a.BiddingEndsAt) {
		return false, fmt.Errorf("lifecycle: %w - start %s is not before end %s", biddingerrors.ErrInvalidSchedule,
			a.BiddingStartsAt.Format(time.RFC3339), a.BiddingEndsAt.Format(time.RFC3339))
	}
	if !a.BiddingStartsAt.After(now) {
		return false, fmt.Errorf("lifecycle: %w - start %s is not in the future", biddingerrors.ErrInvalidSchedule,
			a.BiddingStartsAt.Format(time.RFC3339))
	}
	a.Status = models.StatusScheduled
	a.UpdatedAt = now
	return true, nil
}

// Start opens bidding on a scheduled auction once its start time is reached
func Start(a *models.Auction, now time.Time) (bool, error) {
	if a.Status == models.StatusLive {
		return false, nil
	}
	if !CanTransition(a.Status, models.StatusLive) || a.Status == models.StatusPaused {
		return false, invalid(a, models.StatusLive)
	}
	if now.Before(a.BiddingStartsAt) {
		return false, fmt.Errorf("lifecycle: %w - auction %s opens at %s", biddingerrors.ErrNotYetStartable,
			a.AuctionID, a.BiddingStartsAt.Format(time.RFC3339))
	}
	a.Status = models.StatusLive
	a.UpdatedAt = now
	return true, nil
}

// Pause suspends bidding on a live auction
func Pause(a *models.Auction, now time.Time) (bool, error) {
	if a.Status == models.StatusPaused {
		return false, nil
	}
	if a.Status != models.StatusLive {
		return false, invalid(a, models.StatusPaused)
	}
	a.Status = models.StatusPaused
	a.UpdatedAt = now
	return true, nil
}

// Resume reopens bidding on a paused auction
func Resume(a *models.Auction, now time.Time) (bool, error) {
	if a.Status == models.StatusLive {
		return false, nil
	}
	if a.Status != models.StatusPaused {
		return false, invalid(a, models.StatusLive)
	}
	a.Status = models.StatusLive
	a.UpdatedAt = now
	return true, nil
}

// End closes a live auction. Without administrative authority the deadline
// must have passed. When a leader exists the auction lands in sold with the
// winner and final amount fixed; otherwise it stays ended with no winner.
func End(a *models.Auction, now time.Time, administrative bool) (bool, error) {
	if a.Status == models.StatusEnded || a.Status == models.StatusSold {
		return false, nil
	}
	if a.Status != models.StatusLive {
		return false, invalid(a, models.StatusEnded)
	}
	if !administrative && now.Before(a.BiddingEndsAt) {
		return false, fmt.Errorf("lifecycle: %w - auction %s runs until %s", biddingerrors.ErrInvalidTransition,
			a.AuctionID, a.BiddingEndsAt.Format(time.RFC3339))
	}

	a.Status = models.StatusEnded
	if a.CurrentHighestBidderID != nil {
		winner := *a.CurrentHighestBidderID
		amount := a.CurrentHighestBid
		a.WinnerID = &winner
		a.FinalAmount = &amount
		a.Status = models.StatusSold
	}
	a.UpdatedAt = now
	return true, nil
}

// Cancel withdraws a live auction. Once bids exist only a forced cancel is allowed.
func Cancel(a *models.Auction, now time.Time, force bool) (bool, error) {
	if a.Status == models.StatusCancelled {
		return false, nil
	}
	if a.Status != models.StatusLive {
		return false, invalid(a, models.StatusCancelled)
	}
	if a.TotalBids > 0 && !force {
		return false, fmt.Errorf("lifecycle: %w - auction %s has %d bids", biddingerrors.ErrCancelWithBids, a.AuctionID, a.TotalBids)
	}
	a.Status = models.StatusCancelled
	a.UpdatedAt = now
	return true, nil
}

// Expired reports whether a live auction has reached its deadline
func Expired(a models.Auction, now time.Time) bool {
	return a.Status == models.StatusLive && !now.Before(a.BiddingEndsAt)
}

// CheckBiddable rejects unless the auction is live and now lies in [starts, ends)
func CheckBiddable(a models.Auction, now time.Time) error {
	if a.Status != models.StatusLive {
		return fmt.Errorf("lifecycle: %w - auction %s is %s", biddingerrors.ErrAuctionNotLive, a.AuctionID, a.Status)
	}
	if now.Before(a.BiddingStartsAt) || !now.Before(a.BiddingEndsAt) {
		return fmt.Errorf("lifecycle: %w - auction %s accepts bids between %s and %s", biddingerrors.ErrAuctionNotLive,
			a.AuctionID, a.BiddingStartsAt.Format(time.RFC3339), a.BiddingEndsAt.Format(time.RFC3339))
	}
	return nil
}
