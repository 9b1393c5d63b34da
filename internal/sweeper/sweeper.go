// Package sweeper periodically closes auctions whose deadline has passed and
// opens scheduled auctions whose start time has arrived.
package sweeper

import (
	"context"
	"time"

	"live-bidding/internal/models"
	"live-bidding/utils"

	"golang.org/x/sync/errgroup"
)

// AuctionCloser is the slice of the bidding service the sweep drives
type AuctionCloser interface {
	ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error)
	CloseIfExpired(ctx context.Context, auctionID string) (bool, error)
	ActivateIfDue(ctx context.Context, auctionID string) (bool, error)
}

// Sweeper runs the close and activation sweep
type Sweeper struct {
	svc         AuctionCloser
	interval    time.Duration
	concurrency int
	clock       func() time.Time
}

// Result counts what one sweep did
type Result struct {
	Closed    int
	Activated int
	Failed    int
}

// New creates a Sweeper; interval and concurrency fall back to 2s and 8
func New(svc AuctionCloser, interval time.Duration, concurrency int) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Sweeper{svc: svc, interval: interval, concurrency: concurrency, clock: time.Now}
}

// WithClock replaces the clock used to pre-filter candidates
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// Run sweeps on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	utils.Info("Auction sweeper started", map[string]any{"interval": s.interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.Info("Auction sweeper stopped", nil)
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				utils.Error("Auction sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// SweepOnce visits every candidate once. Candidates are only a hint; the
// service re-reads each auction under its critical section before acting,
// so an auction extended since the listing is left alone.
func (s *Sweeper) SweepOnce(ctx context.Context) (Result, error) {
	now := s.clock()

	live, err := s.svc.ListAuctionsByStatus(ctx, models.StatusLive)
	if err != nil {
		return Result{}, err
	}
	scheduled, err := s.svc.ListAuctionsByStatus(ctx, models.StatusScheduled)
	if err != nil {
		return Result{}, err
	}

	var closeIDs, activateIDs []string
	for _, a := range live {
		if !now.Before(a.BiddingEndsAt) {
			closeIDs = append(closeIDs, a.AuctionID)
		}
	}
	for _, a := range scheduled {
		if !now.Before(a.BiddingStartsAt) {
			activateIDs = append(activateIDs, a.AuctionID)
		}
	}

	closed := make([]bool, len(closeIDs))
	activated := make([]bool, len(activateIDs))
	failed := make([]bool, len(closeIDs)+len(activateIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range closeIDs {
		g.Go(func() error {
			ok, err := s.svc.CloseIfExpired(gctx, id)
			if err != nil {
				failed[i] = true
				utils.Warn("Sweep failed to close auction", map[string]any{"auction_id": id, "error": err.Error()})
				return nil
			}
			closed[i] = ok
			return nil
		})
	}
	for i, id := range activateIDs {
		g.Go(func() error {
			ok, err := s.svc.ActivateIfDue(gctx, id)
			if err != nil {
				failed[len(closeIDs)+i] = true
				utils.Warn("Sweep failed to activate auction", map[string]any{"auction_id": id, "error": err.Error()})
				return nil
			}
			activated[i] = ok
			return nil
		})
	}
	// one auction failing does not stop the rest; it is retried next tick
	_ = g.Wait()

	var res Result
	for _, ok := range closed {
		if ok {
			res.Closed++
		}
	}
	for _, ok := range activated {
		if ok {
			res.Activated++
		}
	}
	for _, f := range failed {
		if f {
			res.Failed++
		}
	}
	if res.Closed+res.Activated+res.Failed > 0 {
		utils.Info("Auction sweep finished", map[string]any{
			"closed":    res.Closed,
			"activated": res.Activated,
			"failed":    res.Failed,
		})
	}
	return res, ctx.Err()
}
