package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bidding "live-bidding/internal/biddingService"
	"live-bidding/internal/models"
	"live-bidding/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func auction(id string, status models.AuctionStatus, starts, ends time.Time) models.Auction {
	return models.Auction{
		AuctionID:              id,
		OwnerID:                "owner1",
		Status:                 status,
		StartingBid:            decimal.NewFromInt(1000),
		CurrentHighestBid:      decimal.NewFromInt(1000),
		BidIncrement:           decimal.NewFromInt(100),
		BiddingStartsAt:        starts,
		BiddingEndsAt:          ends,
		AutoExtend:             true,
		ExtensionWindowSeconds: 120,
		MaxExtensions:          5,
	}
}

func newFixture(t *testing.T, auctions ...models.Auction) (*bidding.BiddingService, *Sweeper, *clock) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		require.NoError(t, repo.CreateAuction(context.Background(), a))
	}
	c := &clock{t: epoch}
	cfg := bidding.DefaultConfig()
	cfg.Clock = c.Now
	svc, err := bidding.NewBiddingService(repo, nil, cfg)
	require.NoError(t, err)
	return svc, New(svc, time.Second, 4).WithClock(c.Now), c
}

func TestSweeper_SweepOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, sw, c := newFixture(t,
		auction("expired", models.StatusLive, epoch.Add(-time.Hour), epoch.Add(-time.Second)),
		auction("running", models.StatusLive, epoch.Add(-time.Hour), epoch.Add(time.Hour)),
		auction("due", models.StatusScheduled, epoch.Add(-time.Minute), epoch.Add(time.Hour)),
		auction("later", models.StatusScheduled, epoch.Add(time.Minute), epoch.Add(time.Hour)),
		auction("paused", models.StatusPaused, epoch.Add(-time.Hour), epoch.Add(-time.Second)),
	)

	res, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Closed: 1, Activated: 1}, res)

	for id, want := range map[string]models.AuctionStatus{
		"expired": models.StatusEnded,
		"running": models.StatusLive,
		"due":     models.StatusLive,
		"later":   models.StatusScheduled,
		"paused":  models.StatusPaused,
	} {
		a, err := svc.GetAuction(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, a.Status, id)
	}

	// a second pass finds nothing left to do
	res, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{}, res)

	c.Advance(time.Minute)
	res, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Activated: 1}, res)
}

// A bid in the last two minutes moves the deadline, so the sweep that
// would have closed the auction leaves it running.
func TestSweeper_RespectsExtension(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, sw, c := newFixture(t, auction("auction1", models.StatusLive, epoch.Add(-time.Hour), epoch.Add(time.Minute)))

	c.Advance(30 * time.Second)
	result, err := svc.PlaceBid(ctx, "auction1", "bidder1", decimal.NewFromInt(1100))
	require.NoError(t, err)
	require.True(t, result.Extended)
	require.Equal(t, epoch.Add(150*time.Second), result.BiddingEndsAt)

	c.Advance(31 * time.Second) // past the original deadline
	res, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{}, res)

	c.Advance(2 * time.Minute)
	res, err = sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, Result{Closed: 1}, res)

	a, err := svc.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, models.StatusSold, a.Status)
	require.Equal(t, "bidder1", *a.WinnerID)
}

type failingCloser struct {
	auctions []models.Auction
	listErr  error
	mu       sync.Mutex
	calls    []string
}

func (f *failingCloser) ListAuctionsByStatus(_ context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Auction
	for _, a := range f.auctions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *failingCloser) CloseIfExpired(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if id == "broken" {
		return false, errors.New("store unavailable")
	}
	return true, nil
}

func (f *failingCloser) ActivateIfDue(context.Context, string) (bool, error) {
	return false, nil
}

func TestSweeper_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	f := &failingCloser{auctions: []models.Auction{
		auction("broken", models.StatusLive, epoch.Add(-time.Hour), epoch.Add(-time.Second)),
		auction("a", models.StatusLive, epoch.Add(-time.Hour), epoch.Add(-time.Second)),
		auction("b", models.StatusLive, epoch.Add(-time.Hour), epoch),
	}}
	sw := New(f, time.Second, 1).WithClock(func() time.Time { return epoch })

	res, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{Closed: 2, Failed: 1}, res)
	require.ElementsMatch(t, []string{"broken", "a", "b"}, f.calls)

	f.listErr = errors.New("store unavailable")
	_, err = sw.SweepOnce(context.Background())
	require.Error(t, err)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := &failingCloser{auctions: []models.Auction{
		auction("a", models.StatusLive, epoch.Add(-time.Hour), epoch.Add(-time.Second)),
	}}
	sw := New(f, 5*time.Millisecond, 2).WithClock(func() time.Time { return epoch })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
