package lifecycle

import (
	"errors"
	"testing"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Helper to create an auction in a given status
func newAuction(status models.AuctionStatus) models.Auction {
	return models.Auction{
		AuctionID:         "auction1",
		OwnerID:           "owner1",
		Status:            status,
		StartingBid:       decimal.NewFromInt(1000),
		CurrentHighestBid: decimal.NewFromInt(1000),
		BidIncrement:      decimal.NewFromInt(100),
		BiddingStartsAt:   now.Add(-time.Hour),
		BiddingEndsAt:     now.Add(time.Hour),
	}
}

func strPtr(s string) *string { return &s }

func TestSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      models.AuctionStatus
		startsAt    time.Time
		endsAt      time.Time
		wantChanged bool
		wantErr     error
	}{
		{name: "draft_future_window", status: models.StatusDraft, startsAt: now.Add(time.Minute), endsAt: now.Add(time.Hour), wantChanged: true},
		{name: "already_scheduled_noop", status: models.StatusScheduled, startsAt: now.Add(time.Minute), endsAt: now.Add(time.Hour)},
		{name: "start_in_past", status: models.StatusDraft, startsAt: now.Add(-time.Minute), endsAt: now.Add(time.Hour), wantErr: biddingerrors.ErrInvalidSchedule},
		{name: "start_after_end", status: models.StatusDraft, startsAt: now.Add(2 * time.Hour), endsAt: now.Add(time.Hour), wantErr: biddingerrors.ErrInvalidSchedule},
		{name: "start_equals_end", status: models.StatusDraft, startsAt: now.Add(time.Hour), endsAt: now.Add(time.Hour), wantErr: biddingerrors.ErrInvalidSchedule},
		{name: "live_cannot_schedule", status: models.StatusLive, startsAt: now.Add(time.Minute), endsAt: now.Add(time.Hour), wantErr: biddingerrors.ErrInvalidTransition},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := newAuction(tc.status)
			a.BiddingStartsAt, a.BiddingEndsAt = tc.startsAt, tc.endsAt
			before := a

			changed, err := Schedule(&a, now)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "expected error: %v, got: %v", tc.wantErr, err)
				require.Equal(t, before, a)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantChanged, changed)
			require.Equal(t, models.StatusScheduled, a.Status)
		})
	}
}

func TestStart(t *testing.T) {
	t.Parallel()

	t.Run("scheduled_after_start_time", func(t *testing.T) {
		a := newAuction(models.StatusScheduled)
		changed, err := Start(&a, now)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, models.StatusLive, a.Status)
	})

	t.Run("scheduled_at_exact_start_time", func(t *testing.T) {
		a := newAuction(models.StatusScheduled)
		a.BiddingStartsAt = now
		_, err := Start(&a, now)
		require.NoError(t, err)
	})

	t.Run("not_yet_startable", func(t *testing.T) {
		a := newAuction(models.StatusScheduled)
		a.BiddingStartsAt = now.Add(time.Second)
		_, err := Start(&a, now)
		require.ErrorIs(t, err, biddingerrors.ErrNotYetStartable)
		require.Equal(t, models.StatusScheduled, a.Status)
	})

	t.Run("draft_to_live_is_invalid", func(t *testing.T) {
		a := newAuction(models.StatusDraft)
		_, err := Start(&a, now)
		require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)
		require.Equal(t, models.StatusDraft, a.Status)
	})

	t.Run("paused_is_resumed_not_started", func(t *testing.T) {
		a := newAuction(models.StatusPaused)
		_, err := Start(&a, now)
		require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)
	})

	t.Run("live_is_noop", func(t *testing.T) {
		a := newAuction(models.StatusLive)
		changed, err := Start(&a, now)
		require.NoError(t, err)
		require.False(t, changed)
	})
}

func TestPauseResume(t *testing.T) {
	t.Parallel()

	a := newAuction(models.StatusLive)

	changed, err := Pause(&a, now)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.StatusPaused, a.Status)

	changed, err = Pause(&a, now)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = Resume(&a, now)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.StatusLive, a.Status)

	ended := newAuction(models.StatusEnded)
	_, err = Pause(&ended, now)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)

	draft := newAuction(models.StatusDraft)
	_, err = Resume(&draft, now)
	require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)
}

func TestEnd(t *testing.T) {
	t.Parallel()

	t.Run("expired_without_bids_has_no_winner", func(t *testing.T) {
		a := newAuction(models.StatusLive)
		a.BiddingEndsAt = now
		changed, err := End(&a, now, false)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, models.StatusEnded, a.Status)
		require.Nil(t, a.WinnerID)
		require.Nil(t, a.FinalAmount)
	})

	t.Run("expired_with_leader_is_sold", func(t *testing.T) {
		a := newAuction(models.StatusLive)
		a.BiddingEndsAt = now.Add(-time.Second)
		a.CurrentHighestBid = decimal.NewFromInt(1300)
		a.CurrentHighestBidderID = strPtr("bidder2")
		a.TotalBids = 3

		changed, err := End(&a, now, false)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, models.StatusSold, a.Status)
		require.Equal(t, "bidder2", *a.WinnerID)
		require.True(t, decimal.NewFromInt(1300).Equal(*a.FinalAmount))
	})

	t.Run("before_deadline_requires_admin", func(t *testing.T) {
		a := newAuction(models.StatusLive)
		_, err := End(&a, now, false)
		require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)
		require.Equal(t, models.StatusLive, a.Status)

		changed, err := End(&a, now, true)
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, models.StatusEnded, a.Status)
	})

	t.Run("idempotent_on_ended_and_sold", func(t *testing.T) {
		a := newAuction(models.StatusLive)
		a.BiddingEndsAt = now
		a.CurrentHighestBidderID = strPtr("bidder1")
		a.TotalBids = 1
		_, err := End(&a, now, false)
		require.NoError(t, err)
		first := a

		changed, err := End(&a, now.Add(time.Minute), false)
		require.NoError(t, err)
		require.False(t, changed)
		require.Equal(t, first, a)
	})

	t.Run("cancelled_cannot_end", func(t *testing.T) {
		a := newAuction(models.StatusCancelled)
		_, err := End(&a, now, true)
		require.ErrorIs(t, err, biddingerrors.ErrInvalidTransition)
	})
}

func TestCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    models.AuctionStatus
		totalBids int64
		force     bool
		wantErr   error
	}{
		{name: "live_without_bids", status: models.StatusLive},
		{name: "live_with_bids_rejected", status: models.StatusLive, totalBids: 2, wantErr: biddingerrors.ErrCancelWithBids},
		{name: "live_with_bids_forced", status: models.StatusLive, totalBids: 2, force: true},
		{name: "already_cancelled_noop", status: models.StatusCancelled},
		{name: "draft_invalid", status: models.StatusDraft, wantErr: biddingerrors.ErrInvalidTransition},
		{name: "sold_invalid", status: models.StatusSold, force: true, wantErr: biddingerrors.ErrInvalidTransition},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := newAuction(tc.status)
			a.TotalBids = tc.totalBids
			_, err := Cancel(&a, now, tc.force)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Equal(t, tc.status, a.Status)
				return
			}
			require.NoError(t, err)
			require.Equal(t, models.StatusCancelled, a.Status)
		})
	}
}

func TestCheckBiddable(t *testing.T) {
	t.Parallel()

	live := newAuction(models.StatusLive)
	require.NoError(t, CheckBiddable(live, now))

	atEnd := live
	atEnd.BiddingEndsAt = now
	require.ErrorIs(t, CheckBiddable(atEnd, now), biddingerrors.ErrAuctionNotLive)

	early := live
	early.BiddingStartsAt = now.Add(time.Second)
	require.ErrorIs(t, CheckBiddable(early, now), biddingerrors.ErrAuctionNotLive)

	paused := newAuction(models.StatusPaused)
	require.ErrorIs(t, CheckBiddable(paused, now), biddingerrors.ErrAuctionNotLive)

	require.True(t, Expired(atEnd, now))
	require.False(t, Expired(live, now))
}
