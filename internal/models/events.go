package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType tags the closed set of events fanned out to auction rooms
type EventType string

const (
	EventBidAccepted   EventType = "bid_accepted"
	EventOutbid        EventType = "outbid"
	EventAuctionEnded  EventType = "auction_ended"
	EventStatusChanged EventType = "status_changed"
)

// Event is implemented only by the payload types in this file
type Event interface {
	Type() EventType
	Auction() string
	isEvent()
}

type BidAccepted struct {
	AuctionID               string          `json:"auction_id"`
	Amount                  decimal.Decimal `json:"amount"`
	BidderID                string          `json:"bidder_id"`
	PreviousHighestBidderID *string         `json:"previous_highest_bidder_id"`
	TotalBids               int64           `json:"total_bids"`
	TotalBidders            int64           `json:"total_bidders"`
	BiddingEndsAt           time.Time       `json:"bidding_ends_at"`
}

type Outbid struct {
	AuctionID               string          `json:"auction_id"`
	PreviousHighestBidderID string          `json:"previous_highest_bidder_id"`
	NewAmount               decimal.Decimal `json:"new_amount"`
}

type AuctionEnded struct {
	AuctionID   string           `json:"auction_id"`
	WinnerID    *string          `json:"winner_id"`
	FinalAmount *decimal.Decimal `json:"final_amount"`
}

// StatusChanged covers transitions other than closing (schedule, start, pause, resume, cancel)
type StatusChanged struct {
	AuctionID string        `json:"auction_id"`
	From      AuctionStatus `json:"from"`
	To        AuctionStatus `json:"to"`
}

func (BidAccepted) Type() EventType   { return EventBidAccepted }
func (Outbid) Type() EventType        { return EventOutbid }
func (AuctionEnded) Type() EventType  { return EventAuctionEnded }
func (StatusChanged) Type() EventType { return EventStatusChanged }

func (e BidAccepted) Auction() string   { return e.AuctionID }
func (e Outbid) Auction() string        { return e.AuctionID }
func (e AuctionEnded) Auction() string  { return e.AuctionID }
func (e StatusChanged) Auction() string { return e.AuctionID }

func (BidAccepted) isEvent()   {}
func (Outbid) isEvent()        {}
func (AuctionEnded) isEvent()  {}
func (StatusChanged) isEvent() {}

// Envelope is the wire form of one delivered event. Seq is the auction
// version the event was committed at; events of one auction are delivered
// in Seq order.
type Envelope struct {
	Type      EventType `json:"type"`
	AuctionID string    `json:"auction_id"`
	Seq       int64     `json:"seq"`
	At        time.Time `json:"at"`
	Data      Event     `json:"data"`
}

// Publication is the set of events produced by one commit. Targeted events
// go only to the named observer; Broadcast events go to the whole room.
type Publication struct {
	AuctionID string
	Seq       int64
	At        time.Time
	Broadcast []Event
	Targeted  map[string]Event
}

// Empty reports whether the publication carries nothing to deliver
func (p Publication) Empty() bool {
	return len(p.Broadcast) == 0 && len(p.Targeted) == 0
}

// NewEnvelope wraps an event for delivery
func NewEnvelope(seq int64, at time.Time, ev Event) Envelope {
	return Envelope{Type: ev.Type(), AuctionID: ev.Auction(), Seq: seq, At: at, Data: ev}
}
