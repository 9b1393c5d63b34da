package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/extension"
	"live-bidding/internal/lifecycle"
	"live-bidding/internal/locks"
	"live-bidding/internal/models"
	"live-bidding/internal/repository"
	"live-bidding/utils"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"
)

// Publisher receives the events of every commit, after the auction's
// critical section has been released
type Publisher interface {
	Publish(p models.Publication)
}

type noopPublisher struct{}

func (noopPublisher) Publish(models.Publication) {}

// Config bounds the time spent waiting for and inside a critical section.
// CacheTTL bounds how stale a point lookup may be when other processes
// share the store.
type Config struct {
	LockTimeout      time.Duration
	PersistTimeout   time.Duration
	MaxCommitRetries int
	CacheSize        int
	CacheTTL         time.Duration
	Clock            func() time.Time
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		LockTimeout:      2 * time.Second,
		PersistTimeout:   3 * time.Second,
		MaxCommitRetries: 3,
		CacheSize:        1024,
		CacheTTL:         time.Second,
	}
}

// BiddingService admits bids and drives auctions through their lifecycle.
// Every mutation of one auction runs inside that auction's critical section.
type BiddingService struct {
	repo  repository.AuctionDB
	locks *locks.Keyed
	cache *lru.Cache
	pub   Publisher
	cfg   Config
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, pub Publisher, cfg Config) (*BiddingService, error) {
	def := DefaultConfig()
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.MaxCommitRetries < 0 {
		cfg.MaxCommitRetries = 0
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if pub == nil {
		pub = noopPublisher{}
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("service: failed to create auction cache: %w", err)
	}

	return &BiddingService{
		repo:  repo,
		locks: locks.NewKeyed(),
		cache: cache,
		pub:   pub,
		cfg:   cfg,
	}, nil
}

func (s *BiddingService) now() time.Time {
	return s.cfg.Clock().UTC()
}

// cachedAuction is a cache entry stamped with the time it was stored
type cachedAuction struct {
	auction  models.Auction
	storedAt time.Time
}

func (s *BiddingService) remember(a models.Auction) {
	s.cache.Add(a.AuctionID, cachedAuction{auction: a, storedAt: s.now()})
}

// outcome is what a mutation decided for one freshly read auction
type outcome struct {
	changed   bool
	bid       *models.Bid
	broadcast []models.Event
	targeted  map[string]models.Event
	// reject is returned to the caller after the commit succeeds
	reject error
}

// mutation runs inside the critical section against the auction as read
// under lock. It edits a in place and reports what to persist and publish.
type mutation func(ctx context.Context, tx repository.Tx, a *models.Auction, now time.Time) (outcome, error)

// execute serializes mut with every other operation on auctionID, commits
// its result and publishes the resulting events once the section is released.
func (s *BiddingService) execute(ctx context.Context, auctionID string, mut mutation) (models.Auction, outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.Auction{}, outcome{}, fmt.Errorf("service: request for auction %s abandoned: %w", auctionID, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	unlock, err := s.locks.Lock(lockCtx, auctionID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return models.Auction{}, outcome{}, fmt.Errorf("service: request for auction %s abandoned: %w", auctionID, ctx.Err())
		}
		return models.Auction{}, outcome{}, fmt.Errorf("service: %w - auction %s after %s", biddingerrors.ErrLockTimeout, auctionID, s.cfg.LockTimeout)
	}

	committed, out, err := s.commit(ctx, auctionID, mut)
	unlock()
	if err != nil {
		return models.Auction{}, outcome{}, err
	}

	if out.changed {
		s.pub.Publish(models.Publication{
			AuctionID: auctionID,
			Seq:       committed.Version,
			At:        committed.UpdatedAt,
			Broadcast: out.broadcast,
			Targeted:  out.targeted,
		})
	}
	return committed, out, nil
}

// commit runs inside the section. Once entered it is detached from the
// caller's cancellation and bounded by the persistence timeout instead.
func (s *BiddingService) commit(ctx context.Context, auctionID string, mut mutation) (models.Auction, outcome, error) {
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PersistTimeout)
	defer cancel()

	var (
		committed models.Auction
		out       outcome
	)
	for attempt := 0; ; attempt++ {
		err := s.repo.RunInTx(commitCtx, auctionID, func(tx repository.Tx) error {
			a, err := tx.LockAuction(commitCtx)
			if err != nil {
				return err
			}
			now := s.now()
			expected := a.Version

			o, err := mut(commitCtx, tx, &a, now)
			if err != nil {
				return err
			}
			if o.changed {
				a.Version = expected + 1
				a.UpdatedAt = now
				if err := tx.UpdateAuction(commitCtx, a, expected); err != nil {
					return err
				}
				if o.bid != nil {
					if err := tx.AppendBid(commitCtx, *o.bid); err != nil {
						return err
					}
				}
			}
			committed, out = a, o
			return nil
		})
		if err == nil {
			break
		}

		switch {
		case biddingerrors.IsRejection(err):
			return models.Auction{}, outcome{}, fmt.Errorf("service: auction %s: %w", auctionID, err)
		case errors.Is(err, biddingerrors.ErrVersionConflict) && attempt < s.cfg.MaxCommitRetries:
			utils.Debug("Version conflict, retrying commit", map[string]any{
				"auction_id": auctionID,
				"attempt":    attempt + 1,
			})
			continue
		default:
			utils.Error("Failed to persist auction", map[string]any{
				"auction_id": auctionID,
				"attempts":   attempt + 1,
				"error":      err.Error(),
			})
			return models.Auction{}, outcome{}, fmt.Errorf("service: %w - auction %s: %w", biddingerrors.ErrPersistenceFailure, auctionID, err)
		}
	}

	if out.changed {
		s.remember(committed)
	}
	return committed, out, nil
}

// PlaceBid validates and commits one bid. The caller gets either the
// committed result or a specific rejection.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.BidResult, error) {
	if auctionID == "" || bidderID == "" {
		return models.BidResult{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return models.BidResult{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !models.ExactAmount(amount) {
		return models.BidResult{}, fmt.Errorf("service: %w - bid amount %s has more than %d decimals",
			biddingerrors.ErrInvalidBid, amount, models.AmountDecimals)
	}

	var (
		bid      models.Bid
		previous *string
		extended bool
	)
	committed, out, err := s.execute(ctx, auctionID, func(ctx context.Context, tx repository.Tx, a *models.Auction, now time.Time) (outcome, error) {
		if lifecycle.Expired(*a, now) {
			// the deadline passed with nobody closing it yet
			if _, err := lifecycle.End(a, now, false); err != nil {
				return outcome{}, err
			}
			return outcome{
				changed:   true,
				broadcast: []models.Event{endedEvent(*a)},
				reject: fmt.Errorf("service: %w - auction %s closed at %s", biddingerrors.ErrAuctionNotLive,
					a.AuctionID, a.BiddingEndsAt.Format(time.RFC3339)),
			}, nil
		}
		if err := lifecycle.CheckBiddable(*a, now); err != nil {
			return outcome{}, err
		}
		if bidderID == a.OwnerID {
			return outcome{}, fmt.Errorf("%w - bidder %s owns the auction", biddingerrors.ErrSelfBidForbidden, bidderID)
		}
		if minimum := a.MinimumAcceptable(); amount.LessThan(minimum) {
			return outcome{}, fmt.Errorf("%w - minimum acceptable is %s", biddingerrors.ErrBidTooLow, minimum.StringFixed(2))
		}

		seen, err := tx.HasBidder(ctx, bidderID)
		if err != nil {
			return outcome{}, err
		}

		previous = a.CurrentHighestBidderID
		leader := bidderID
		a.CurrentHighestBid = amount
		a.CurrentHighestBidderID = &leader
		a.TotalBids++
		if !seen {
			a.TotalBidders++
		}
		extended = extension.Apply(a, now)

		bid = models.Bid{
			BidID:     utils.GenerateOrderedID(),
			AuctionID: a.AuctionID,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  now,
		}

		o := outcome{
			changed: true,
			bid:     &bid,
			broadcast: []models.Event{models.BidAccepted{
				AuctionID:               a.AuctionID,
				Amount:                  amount,
				BidderID:                bidderID,
				PreviousHighestBidderID: previous,
				TotalBids:               a.TotalBids,
				TotalBidders:            a.TotalBidders,
				BiddingEndsAt:           a.BiddingEndsAt,
			}},
		}
		if previous != nil && *previous != bidderID {
			o.targeted = map[string]models.Event{
				*previous: models.Outbid{
					AuctionID:               a.AuctionID,
					PreviousHighestBidderID: *previous,
					NewAmount:               amount,
				},
			}
		}
		return o, nil
	})

	fields := map[string]any{
		"auction_id": auctionID,
		"bidder_id":  bidderID,
		"amount":     amount.String(),
	}
	if err != nil {
		if biddingerrors.IsRejection(err) {
			fields["reason"] = err.Error()
			utils.Info("Bid rejected", fields)
		}
		return models.BidResult{}, err
	}
	if out.reject != nil {
		fields["reason"] = out.reject.Error()
		utils.Info("Bid rejected, auction closed on expiry", fields)
		return models.BidResult{}, out.reject
	}

	bid.Status = models.BidLeading
	return models.BidResult{
		Bid:                     bid,
		CurrentHighestBid:       committed.CurrentHighestBid,
		PreviousHighestBidderID: previous,
		TotalBids:               committed.TotalBids,
		TotalBidders:            committed.TotalBidders,
		BiddingEndsAt:           committed.BiddingEndsAt,
		Extended:                extended,
	}, nil
}

// CreateAuction stores a new draft auction owned by the actor
func (s *BiddingService) CreateAuction(ctx context.Context, actor models.Actor, in models.NewAuction) (models.Auction, error) {
	if actor.UserID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing actor", biddingerrors.ErrForbidden)
	}
	if actor.Role == models.RoleBidder {
		return models.Auction{}, fmt.Errorf("service: %w - bidders cannot create auctions", biddingerrors.ErrForbidden)
	}
	if err := validateNewAuction(in); err != nil {
		return models.Auction{}, err
	}

	now := s.now()
	a := models.Auction{
		AuctionID:              utils.GenerateID(),
		OwnerID:                actor.UserID,
		Title:                  in.Title,
		Status:                 models.StatusDraft,
		StartingBid:            in.StartingBid,
		CurrentHighestBid:      in.StartingBid,
		BiddingStartsAt:        in.BiddingStartsAt.UTC(),
		BiddingEndsAt:          in.BiddingEndsAt.UTC(),
		BidIncrement:           in.BidIncrement,
		AutoExtend:             in.AutoExtend,
		ExtensionWindowSeconds: in.ExtensionWindowSeconds,
		MaxExtensions:          in.MaxExtensions,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.CreateAuction(ctx, a); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}
	s.remember(a)

	utils.Info("Auction created", map[string]any{
		"auction_id": a.AuctionID,
		"owner_id":   a.OwnerID,
	})
	return a, nil
}

func validateNewAuction(in models.NewAuction) error {
	switch {
	case in.StartingBid.IsNegative():
		return fmt.Errorf("service: %w - negative starting bid", biddingerrors.ErrInvalidAuction)
	case !in.BidIncrement.IsPositive():
		return fmt.Errorf("service: %w - bid increment must be positive", biddingerrors.ErrInvalidAuction)
	case !models.ExactAmount(in.StartingBid) || !models.ExactAmount(in.BidIncrement):
		return fmt.Errorf("service: %w - amounts carry at most %d decimals", biddingerrors.ErrInvalidAuction, models.AmountDecimals)
	case !in.BiddingStartsAt.Before(in.BiddingEndsAt):
		return fmt.Errorf("service: %w - bidding must start before it ends", biddingerrors.ErrInvalidAuction)
	case in.ExtensionWindowSeconds < 0 || in.MaxExtensions < 0:
		return fmt.Errorf("service: %w - negative extension settings", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

// GetAuction returns an auction from the read cache, falling back to the
// store once the entry is older than CacheTTL
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if v, ok := s.cache.Get(auctionID); ok {
		entry := v.(cachedAuction)
		if s.now().Sub(entry.storedAt) < s.cfg.CacheTTL {
			return entry.auction, nil
		}
	}

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	// a commit may have refreshed the entry while we read
	if v, ok := s.cache.Peek(auctionID); ok && v.(cachedAuction).auction.Version > a.Version {
		return a, nil
	}
	s.remember(a)
	return a, nil
}

// ListBids returns the bid log in placement order. The last bid leads,
// every earlier one has been outbid.
func (s *BiddingService) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	for i := range bids {
		bids[i].Status = models.BidOutbid
	}
	if n := len(bids); n > 0 {
		bids[n-1].Status = models.BidLeading
	}
	return bids, nil
}

// ListAuctionsByStatus passes through to the store; the sweep uses it to find candidates
func (s *BiddingService) ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	auctions, err := s.repo.ListAuctionsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list %s auctions: %w", status, err)
	}
	return auctions, nil
}

func endedEvent(a models.Auction) models.AuctionEnded {
	return models.AuctionEnded{
		AuctionID:   a.AuctionID,
		WinnerID:    a.WinnerID,
		FinalAmount: a.FinalAmount,
	}
}
