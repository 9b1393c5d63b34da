package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/models"
)

// AuctionDB defines the durable storage interface for auctions and their bid log
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction models.Auction) error
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListAuctionsByStatus(ctx context.Context, status models.AuctionStatus) ([]models.Auction, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	// RunInTx runs fn inside one transaction scoped to auctionID. All writes
	// staged through tx become visible together when fn returns nil; any
	// error discards them.
	RunInTx(ctx context.Context, auctionID string, fn func(tx Tx) error) error
}

// Tx is the per-auction transactional view handed to RunInTx callbacks
type Tx interface {
	// LockAuction reads the auction and holds it until the transaction ends
	LockAuction(ctx context.Context) (models.Auction, error)
	// HasBidder reports whether bidderID already appears in the bid log
	HasBidder(ctx context.Context, bidderID string) (bool, error)
	// UpdateAuction writes auction only if the stored version still equals
	// expectedVersion, else ErrVersionConflict
	UpdateAuction(ctx context.Context, auction models.Auction, expectedVersion int64) error
	// AppendBid adds bid to the log atomically with the auction update
	AppendBid(ctx context.Context, bid models.Bid) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]models.Auction      // key: auctionID -> value: auction
	bids     map[string][]models.Bid        // key: auctionID -> value: bid log in commit order
	bidders  map[string]map[string]struct{} // key: auctionID -> value: set of bidderIDs
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]models.Auction),
		bids:     make(map[string][]models.Bid),
		bidders:  make(map[string]map[string]struct{}),
	}
}

// CreateAuction stores a new auction record
func (r *MemoryRepo) CreateAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if auction.AuctionID == "" {
		return fmt.Errorf("create auction: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionExists)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns the committed state of an auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListAuctionsByStatus returns every auction currently in status, ordered by ID
func (r *MemoryRepo) ListAuctionsByStatus(_ context.Context, status models.AuctionStatus) ([]models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Auction
	for _, a := range r.auctions {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuctionID < out[j].AuctionID })
	return out, nil
}

// GetBidsByAuction returns the bid log of an auction in commit order
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return append([]models.Bid(nil), r.bids[auctionID]...), nil
}

// RunInTx stages writes in a memTx and applies them under the write lock
// after re-checking the version the caller read.
func (r *MemoryRepo) RunInTx(ctx context.Context, auctionID string, fn func(tx Tx) error) error {
	tx := &memTx{repo: r, auctionID: auctionID}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.update == nil && len(tx.appended) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit auction %s: %w", auctionID, err)
	}
	return r.commit(tx)
}

func (r *MemoryRepo) commit(tx *memTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.auctions[tx.auctionID]
	if !ok {
		return fmt.Errorf("commit auction %s: %w", tx.auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if tx.update != nil {
		if current.Version != tx.expectedVersion {
			return fmt.Errorf("commit auction %s at version %d (stored %d): %w",
				tx.auctionID, tx.expectedVersion, current.Version, biddingerrors.ErrVersionConflict)
		}
		r.auctions[tx.auctionID] = *tx.update
	}
	for _, b := range tx.appended {
		r.bids[tx.auctionID] = append(r.bids[tx.auctionID], b)
		set, ok := r.bidders[tx.auctionID]
		if !ok {
			set = make(map[string]struct{})
			r.bidders[tx.auctionID] = set
		}
		set[b.BidderID] = struct{}{}
	}
	return nil
}

type memTx struct {
	repo            *MemoryRepo
	auctionID       string
	update          *models.Auction
	expectedVersion int64
	appended        []models.Bid
}

func (t *memTx) LockAuction(ctx context.Context) (models.Auction, error) {
	return t.repo.GetAuction(ctx, t.auctionID)
}

func (t *memTx) HasBidder(_ context.Context, bidderID string) (bool, error) {
	for _, b := range t.appended {
		if b.BidderID == bidderID {
			return true, nil
		}
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	_, ok := t.repo.bidders[t.auctionID][bidderID]
	return ok, nil
}

func (t *memTx) UpdateAuction(_ context.Context, auction models.Auction, expectedVersion int64) error {
	if auction.AuctionID != t.auctionID {
		return fmt.Errorf("update auction %s in tx for %s: %w", auction.AuctionID, t.auctionID, biddingerrors.ErrInvalidAuction)
	}
	if t.update != nil && t.expectedVersion != expectedVersion {
		return fmt.Errorf("update auction %s: %w - tx already updated at version %d",
			t.auctionID, biddingerrors.ErrVersionConflict, t.expectedVersion)
	}
	a := auction
	t.update = &a
	t.expectedVersion = expectedVersion
	return nil
}

func (t *memTx) AppendBid(_ context.Context, bid models.Bid) error {
	if bid.AuctionID != t.auctionID {
		return fmt.Errorf("append bid for auction %s in tx for %s: %w", bid.AuctionID, t.auctionID, biddingerrors.ErrInvalidBid)
	}
	t.appended = append(t.appended, bid)
	return nil
}
