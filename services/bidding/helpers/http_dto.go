package helpers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Amounts travel as decimal strings.
type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CreateAuctionRequest struct {
	Title                  string          `json:"title"`
	StartingBid            decimal.Decimal `json:"starting_bid"`
	BidIncrement           decimal.Decimal `json:"bid_increment"`
	BiddingStartsAt        time.Time       `json:"bidding_starts_at" binding:"required"`
	BiddingEndsAt          time.Time       `json:"bidding_ends_at" binding:"required"`
	AutoExtend             bool            `json:"auto_extend"`
	ExtensionWindowSeconds int64           `json:"extension_window_seconds" binding:"gte=0"`
	MaxExtensions          int64           `json:"max_extensions" binding:"gte=0"`
}

type BidResponse struct {
	BidID                   string  `json:"bid_id"`
	AuctionID               string  `json:"auction_id"`
	BidderID                string  `json:"bidder_id"`
	Amount                  string  `json:"amount"`
	Status                  string  `json:"status"`
	PlacedAt                string  `json:"placed_at"`
	CurrentHighestBid       string  `json:"current_highest_bid"`
	PreviousHighestBidderID *string `json:"previous_highest_bidder_id"`
	TotalBids               int64   `json:"total_bids"`
	TotalBidders            int64   `json:"total_bidders"`
	BiddingEndsAt           string  `json:"bidding_ends_at"`
	Extended                bool    `json:"extended"`
}

// SocketMessage is a frame sent by a room client
type SocketMessage struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// SocketReply is a frame sent to a room client in answer to its own message
type SocketReply struct {
	Type      string       `json:"type"`
	Bid       *BidResponse `json:"bid,omitempty"`
	Error     string       `json:"error,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
}
