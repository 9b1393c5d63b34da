//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-bidding/internal/biddingerrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *PostgresRepo {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("auctions"),
		postgres.WithUsername("auction"),
		postgres.WithPassword("auction"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepo(ctx, dsn, 10)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func TestPostgresRepo_RoundTrip(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	a := newAuction("auction1")
	a.BiddingStartsAt = a.BiddingStartsAt.Truncate(time.Microsecond)
	a.BiddingEndsAt = a.BiddingEndsAt.Truncate(time.Microsecond)
	a.CreatedAt = a.CreatedAt.Truncate(time.Microsecond)
	a.UpdatedAt = a.UpdatedAt.Truncate(time.Microsecond)
	require.NoError(t, repo.CreateAuction(ctx, a))
	require.ErrorIs(t, repo.CreateAuction(ctx, a), biddingerrors.ErrAuctionExists)

	got, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, a.AuctionID, got.AuctionID)
	require.True(t, a.StartingBid.Equal(got.StartingBid))
	require.True(t, a.BiddingEndsAt.Equal(got.BiddingEndsAt))

	_, err = repo.GetAuction(ctx, "auctionX")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	require.NoError(t, commitBid(ctx, repo, newBid("bid1", "auction1", "user1", 1100)))
	require.NoError(t, commitBid(ctx, repo, newBid("bid2", "auction1", "user2", 1200)))
	require.NoError(t, commitBid(ctx, repo, newBid("bid3", "auction1", "user1", 1300)))

	got, err = repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Version)
	require.Equal(t, int64(3), got.TotalBids)
	require.Equal(t, int64(2), got.TotalBidders)
	require.True(t, decimal.NewFromInt(1300).Equal(got.CurrentHighestBid))

	bids, err := repo.GetBidsByAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, "bid3", bids[2].BidID)

	live, err := repo.ListAuctionsByStatus(ctx, got.Status)
	require.NoError(t, err)
	require.Len(t, live, 1)
}

func TestPostgresRepo_RollbackAndConflict(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateAuction(ctx, newAuction("auction1")))

	boom := errors.New("boom")
	err := repo.RunInTx(ctx, "auction1", func(tx Tx) error {
		a, err := tx.LockAuction(ctx)
		require.NoError(t, err)
		a.Version++
		require.NoError(t, tx.UpdateAuction(ctx, a, 0))
		require.NoError(t, tx.AppendBid(ctx, newBid("bid1", "auction1", "user1", 1100)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	bids, err := repo.GetBidsByAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Empty(t, bids)

	err = repo.RunInTx(ctx, "auction1", func(tx Tx) error {
		a, err := tx.LockAuction(ctx)
		require.NoError(t, err)
		a.Version = 7
		return tx.UpdateAuction(ctx, a, 6)
	})
	require.ErrorIs(t, err, biddingerrors.ErrVersionConflict)
}

func TestPostgresRepo_CentAmountsRoundTrip(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	a := newAuction("auction1")
	a.StartingBid = decimal.RequireFromString("10.50")
	a.CurrentHighestBid = a.StartingBid
	a.BidIncrement = decimal.RequireFromString("0.25")
	require.NoError(t, repo.CreateAuction(ctx, a))

	bid := newBid("bid1", "auction1", "user1", 0)
	bid.Amount = decimal.RequireFromString("10.75")
	require.NoError(t, commitBid(ctx, repo, bid))

	got, err := repo.GetAuction(ctx, "auction1")
	require.NoError(t, err)
	require.True(t, a.StartingBid.Equal(got.StartingBid), got.StartingBid.String())
	require.True(t, a.BidIncrement.Equal(got.BidIncrement), got.BidIncrement.String())
	require.True(t, bid.Amount.Equal(got.CurrentHighestBid), got.CurrentHighestBid.String())

	bids, err := repo.GetBidsByAuction(ctx, "auction1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.True(t, bid.Amount.Equal(bids[0].Amount), bids[0].Amount.String())
}
