package bidding

import (
	"context"
	"fmt"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/lifecycle"
	"live-bidding/internal/models"
	"live-bidding/internal/repository"
	"live-bidding/utils"
)

// transitionFunc is one of the lifecycle package's transitions
type transitionFunc func(a *models.Auction, now time.Time) (bool, error)

// authorize checks actor authority against the freshly read auction. Admins
// may do anything; owners only what ownerAllowed permits on their own auctions.
func authorize(actor models.Actor, a models.Auction, ownerAllowed bool) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if ownerAllowed && actor.UserID != "" && actor.UserID == a.OwnerID {
		return nil
	}
	return fmt.Errorf("%w - %s %s on auction %s", biddingerrors.ErrForbidden, actor.Role, actor.UserID, a.AuctionID)
}

// transition applies fn under the critical section and publishes a
// StatusChanged event when the status actually moved
func (s *BiddingService) transition(ctx context.Context, op, auctionID string, actor models.Actor, ownerAllowed bool, fn transitionFunc) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	committed, out, err := s.execute(ctx, auctionID, func(_ context.Context, _ repository.Tx, a *models.Auction, now time.Time) (outcome, error) {
		if err := authorize(actor, *a, ownerAllowed); err != nil {
			return outcome{}, err
		}
		from := a.Status
		changed, err := fn(a, now)
		if err != nil || !changed {
			return outcome{}, err
		}
		var ev models.Event = models.StatusChanged{AuctionID: a.AuctionID, From: from, To: a.Status}
		if a.Status == models.StatusEnded || a.Status == models.StatusSold {
			ev = endedEvent(*a)
		}
		return outcome{changed: true, broadcast: []models.Event{ev}}, nil
	})
	if err != nil {
		utils.Warn("Auction transition rejected", map[string]any{
			"auction_id": auctionID,
			"operation":  op,
			"actor_id":   actor.UserID,
			"error":      err.Error(),
		})
		return models.Auction{}, err
	}
	if out.changed {
		utils.Info("Auction transitioned", map[string]any{
			"auction_id": auctionID,
			"operation":  op,
			"status":     committed.Status,
			"actor_id":   actor.UserID,
		})
	}
	return committed, nil
}

// ScheduleAuction moves a draft auction to scheduled (owner or admin)
func (s *BiddingService) ScheduleAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error) {
	return s.transition(ctx, "schedule", auctionID, actor, true, lifecycle.Schedule)
}

// StartAuction opens bidding once the start time is reached (owner or admin)
func (s *BiddingService) StartAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error) {
	return s.transition(ctx, "start", auctionID, actor, true, lifecycle.Start)
}

// PauseAuction suspends bidding (owner or admin)
func (s *BiddingService) PauseAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error) {
	return s.transition(ctx, "pause", auctionID, actor, true, lifecycle.Pause)
}

// ResumeAuction reopens bidding on a paused auction (owner or admin)
func (s *BiddingService) ResumeAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error) {
	return s.transition(ctx, "resume", auctionID, actor, true, lifecycle.Resume)
}

// EndAuction closes a live auction ahead of its deadline (admin only)
func (s *BiddingService) EndAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error) {
	return s.transition(ctx, "end", auctionID, actor, false, func(a *models.Auction, now time.Time) (bool, error) {
		return lifecycle.End(a, now, true)
	})
}

// CancelAuction withdraws a live auction (owner or admin). Forcing past
// existing bids requires an admin.
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID string, actor models.Actor, force bool) (models.Auction, error) {
	if force && actor.Role != models.RoleAdmin {
		return models.Auction{}, fmt.Errorf("service: %w - force cancel requires admin", biddingerrors.ErrForbidden)
	}
	return s.transition(ctx, "cancel", auctionID, actor, true, func(a *models.Auction, now time.Time) (bool, error) {
		return lifecycle.Cancel(a, now, force)
	})
}

// CloseIfExpired ends a live auction whose deadline has passed. It re-reads
// the auction under the critical section, so an auction extended by a
// last-second bid is left running. Reports whether this call closed it.
func (s *BiddingService) CloseIfExpired(ctx context.Context, auctionID string) (bool, error) {
	committed, out, err := s.execute(ctx, auctionID, func(_ context.Context, _ repository.Tx, a *models.Auction, now time.Time) (outcome, error) {
		if !lifecycle.Expired(*a, now) {
			return outcome{}, nil
		}
		if _, err := lifecycle.End(a, now, false); err != nil {
			return outcome{}, err
		}
		return outcome{changed: true, broadcast: []models.Event{endedEvent(*a)}}, nil
	})
	if err != nil {
		return false, err
	}
	if out.changed {
		fields := map[string]any{
			"auction_id": auctionID,
			"status":     committed.Status,
		}
		if committed.WinnerID != nil {
			fields["winner_id"] = *committed.WinnerID
			fields["final_amount"] = committed.FinalAmount.String()
		}
		utils.Info("Auction closed on expiry", fields)
	}
	return out.changed, nil
}

// ActivateIfDue starts a scheduled auction whose start time has passed.
// Reports whether this call started it.
func (s *BiddingService) ActivateIfDue(ctx context.Context, auctionID string) (bool, error) {
	_, out, err := s.execute(ctx, auctionID, func(_ context.Context, _ repository.Tx, a *models.Auction, now time.Time) (outcome, error) {
		if a.Status != models.StatusScheduled || now.Before(a.BiddingStartsAt) {
			return outcome{}, nil
		}
		from := a.Status
		if _, err := lifecycle.Start(a, now); err != nil {
			return outcome{}, err
		}
		return outcome{
			changed:   true,
			broadcast: []models.Event{models.StatusChanged{AuctionID: a.AuctionID, From: from, To: a.Status}},
		}, nil
	})
	if err != nil {
		return false, err
	}
	if out.changed {
		utils.Info("Auction activated on schedule", map[string]any{"auction_id": auctionID})
	}
	return out.changed, nil
}
