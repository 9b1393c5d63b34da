package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	bidding "live-bidding/internal/biddingService"
	"live-bidding/internal/broadcast"
	"live-bidding/internal/models"
	"live-bidding/internal/repository"

	"github.com/shopspring/decimal"
)

// liveAuction returns an auction open for the whole benchmark run
func liveAuction(id string, startingBid int64) models.Auction {
	now := time.Now().UTC()
	return models.Auction{
		AuctionID:         id,
		OwnerID:           "owner_bench",
		Title:             "Benchmark auction " + id,
		Status:            models.StatusLive,
		StartingBid:       decimal.NewFromInt(startingBid),
		CurrentHighestBid: decimal.NewFromInt(startingBid),
		BidIncrement:      decimal.NewFromInt(1),
		BiddingStartsAt:   now.Add(-time.Minute),
		BiddingEndsAt:     now.Add(24 * time.Hour),
	}
}

func newService(b *testing.B, pub bidding.Publisher, auctions ...models.Auction) *bidding.BiddingService {
	b.Helper()
	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		if err := repo.CreateAuction(context.Background(), a); err != nil {
			b.Fatalf("failed to seed auction: %v", err)
		}
	}
	svc, err := bidding.NewBiddingService(repo, pub, bidding.DefaultConfig())
	if err != nil {
		b.Fatalf("failed to create service: %v", err)
	}
	return svc
}

// Benchmark 1: PlaceBid - Isolated Auctions (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	auctions := make([]models.Auction, b.N)
	for i := range auctions {
		auctions[i] = liveAuction(fmt.Sprintf("auction_%d", i), 50)
	}
	svc := newService(b, nil, auctions...)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bidderID := fmt.Sprintf("user_%d", i)
		amount := decimal.NewFromInt(int64(51 + rand.Intn(100)))
		if _, err := svc.PlaceBid(ctx, auctions[i].AuctionID, bidderID, amount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Auction (High Contention - Concurrency Benchmark)
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	auction := liveAuction("shared_auction_1", 50)
	svc := newService(b, nil, auction)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			bidderID := fmt.Sprintf("user_parallel_%d", rnd.Int())
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			// bids overtaken by a higher concurrent bid are rejected as too low
			_, _ = svc.PlaceBid(ctx, auction.AuctionID, bidderID, decimal.NewFromInt(nextBid))
		}
	})
}

// Benchmark 3: PlaceBid with a room full of observers draining their feeds
func Benchmark_PlaceBid_WithObservers(b *testing.B) {
	for _, observers := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("observers_%d", observers), func(b *testing.B) {
			auction := liveAuction("observed_auction", 50)
			repo := repository.NewMemoryRepo()
			if err := repo.CreateAuction(context.Background(), auction); err != nil {
				b.Fatalf("failed to seed auction: %v", err)
			}
			rooms := broadcast.NewRouter(repo, broadcast.DefaultConfig())
			svc, err := bidding.NewBiddingService(repo, rooms, bidding.DefaultConfig())
			if err != nil {
				b.Fatalf("failed to create service: %v", err)
			}

			for i := 0; i < observers; i++ {
				sub, _, err := rooms.Join(context.Background(), auction.AuctionID, fmt.Sprintf("observer_%d", i))
				if err != nil {
					b.Fatalf("failed to join room: %v", err)
				}
				go func() {
					for range sub.Events() {
					}
				}()
				defer sub.Close()
			}

			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				bidderID := fmt.Sprintf("user_%d", i%2)
				if _, err := svc.PlaceBid(ctx, auction.AuctionID, bidderID, decimal.NewFromInt(int64(51+i))); err != nil {
					b.Fatalf("failed to place bid: %v", err)
				}
			}
		})
	}
}

// Benchmark 4: GetAuction - Concurrent (High Contention reads)
func Benchmark_GetAuction_ConcurrentSharedAuction(b *testing.B) {
	auction := liveAuction("shared_auction_1", 50)
	svc := newService(b, nil, auction)
	ctx := context.Background()

	for j := 0; j < 100; j++ {
		bidderID := fmt.Sprintf("user_%d", j)
		_, _ = svc.PlaceBid(ctx, auction.AuctionID, bidderID, decimal.NewFromInt(int64(51+j)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetAuction(ctx, auction.AuctionID); err != nil {
				b.Fatalf("failed to get auction: %v", err)
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedAuction(b *testing.B) {
	auction := liveAuction("shared_auction_1", 50)
	svc := newService(b, nil, auction)
	ctx := context.Background()

	for j := 0; j < 50; j++ {
		bidderID := fmt.Sprintf("user_seed_%d", j)
		_, _ = svc.PlaceBid(ctx, auction.AuctionID, bidderID, decimal.NewFromInt(int64(51+j*2)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 150

	// Ratio: 60% auction reads, 10% bid history reads, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			opType := rnd.Intn(10)
			switch {
			case opType < 3:
				bidderID := fmt.Sprintf("user_writer_%d", rnd.Int())
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = svc.PlaceBid(ctx, auction.AuctionID, bidderID, decimal.NewFromInt(nextBid))
			case opType < 4:
				_, _ = svc.ListBids(ctx, auction.AuctionID)
			default:
				_, _ = svc.GetAuction(ctx, auction.AuctionID)
			}
		}
	})
}
