package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusScheduled AuctionStatus = "scheduled"
	StatusLive      AuctionStatus = "live"
	StatusPaused    AuctionStatus = "paused"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
	StatusSold      AuctionStatus = "sold"
)

// IsTerminal reports whether no further transition can leave the status
func (s AuctionStatus) IsTerminal() bool {
	return s == StatusEnded || s == StatusSold || s == StatusCancelled
}

// Role of an already-authenticated actor
type Role string

const (
	RoleBidder Role = "bidder"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

// Actor is the verified identity invoking an operation
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Auction is the durable auction record. The current-highest fields are a
// cached view of the bid log, maintained on every commit.
type Auction struct {
	AuctionID              string           `json:"auction_id"`
	OwnerID                string           `json:"owner_id"`
	Title                  string           `json:"title"`
	Status                 AuctionStatus    `json:"status"`
	StartingBid            decimal.Decimal  `json:"starting_bid"`
	CurrentHighestBid      decimal.Decimal  `json:"current_highest_bid"`
	CurrentHighestBidderID *string          `json:"current_highest_bidder_id"`
	TotalBids              int64            `json:"total_bids"`
	TotalBidders           int64            `json:"total_bidders"`
	BiddingStartsAt        time.Time        `json:"bidding_starts_at"`
	BiddingEndsAt          time.Time        `json:"bidding_ends_at"`
	BidIncrement           decimal.Decimal  `json:"bid_increment"`
	AutoExtend             bool             `json:"auto_extend"`
	ExtensionWindowSeconds int64            `json:"extension_window_seconds"`
	MaxExtensions          int64            `json:"max_extensions"`
	ExtensionsUsed         int64            `json:"extensions_used"`
	WinnerID               *string          `json:"winner_id"`
	FinalAmount            *decimal.Decimal `json:"final_amount"`
	Version                int64            `json:"version"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}

// ExtensionWindow returns the configured anti-snipe window as a duration
func (a Auction) ExtensionWindow() time.Duration {
	return time.Duration(a.ExtensionWindowSeconds) * time.Second
}

// MinimumAcceptable is the lowest amount the next bid may carry
func (a Auction) MinimumAcceptable() decimal.Decimal {
	return a.CurrentHighestBid.Add(a.BidIncrement)
}

// AmountDecimals is the number of decimal places every stored amount keeps
const AmountDecimals = 2

// ExactAmount reports whether d fits AmountDecimals without rounding
func ExactAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountDecimals))
}

// BidStatus is the derived standing of a committed bid
type BidStatus string

const (
	BidLeading BidStatus = "accepted-leading"
	BidOutbid  BidStatus = "accepted-outbid"
)

// Bid is an append-only fact: one committed bid
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	PlacedAt  time.Time       `json:"placed_at"`
	Status    BidStatus       `json:"status"`
}

// BidResult is the definitive acceptance returned to a bidder
type BidResult struct {
	Bid                     Bid             `json:"bid"`
	CurrentHighestBid       decimal.Decimal `json:"current_highest_bid"`
	PreviousHighestBidderID *string         `json:"previous_highest_bidder_id"`
	TotalBids               int64           `json:"total_bids"`
	TotalBidders            int64           `json:"total_bidders"`
	BiddingEndsAt           time.Time       `json:"bidding_ends_at"`
	Extended                bool            `json:"extended"`
}

// NewAuction holds the owner-supplied fields of a draft auction
type NewAuction struct {
	OwnerID                string
	Title                  string
	StartingBid            decimal.Decimal
	BidIncrement           decimal.Decimal
	BiddingStartsAt        time.Time
	BiddingEndsAt          time.Time
	AutoExtend             bool
	ExtensionWindowSeconds int64
	MaxExtensions          int64
}

// RoomSnapshot is what a late joiner receives on entering an auction room
type RoomSnapshot struct {
	Auction      Auction    `json:"auction"`
	RecentEvents []Envelope `json:"recent_events"`
	Observers    int        `json:"observers"`
}
