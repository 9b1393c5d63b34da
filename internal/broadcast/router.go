// Package broadcast keeps the process-local auction rooms and fans committed
// events out to their observers. Rooms are a delivery list only; nothing in
// here is consulted when deciding whether a bid is valid.
package broadcast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"live-bidding/internal/models"
	"live-bidding/utils"
)

// SnapshotSource supplies the current auction state for joiners
type SnapshotSource interface {
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
}

// Config sizes the per-room buffers
type Config struct {
	// RecentEvents is how many broadcast envelopes a late joiner receives
	RecentEvents int
	// SubscriberBuffer is the per-subscription channel capacity; a
	// subscriber that falls this far behind is evicted
	SubscriberBuffer int
	// MaxPending caps publications held back waiting for a sequence gap to fill
	MaxPending int
	// ReorderWindow is how long a gap may hold delivery before it is skipped
	ReorderWindow time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		RecentEvents:     20,
		SubscriberBuffer: 64,
		MaxPending:       32,
		ReorderWindow:    200 * time.Millisecond,
	}
}

// Subscription is one observer connection in one room
type Subscription struct {
	id         uint64
	AuctionID  string
	ObserverID string
	events     chan models.Envelope
	router     *Router
	closed     bool // guarded by router.mu
}

// Events yields envelopes in sequence order. It is closed on Leave or eviction.
func (s *Subscription) Events() <-chan models.Envelope {
	return s.events
}

// Close leaves the room; safe to call more than once
func (s *Subscription) Close() {
	s.router.remove(s)
}

type room struct {
	subs    map[uint64]*Subscription
	ready   bool
	lastSeq int64
	pending map[int64]models.Publication
	recent  []models.Envelope
	timer   *time.Timer
}

// Router is the registry of auction rooms, keyed by auction id
type Router struct {
	mu     sync.Mutex
	rooms  map[string]*room
	source SnapshotSource
	cfg    Config
	nextID uint64
}

// NewRouter creates an empty router
func NewRouter(source SnapshotSource, cfg Config) *Router {
	def := DefaultConfig()
	if cfg.RecentEvents < 0 {
		cfg.RecentEvents = def.RecentEvents
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = def.SubscriberBuffer
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = def.ReorderWindow
	}
	return &Router{
		rooms:  make(map[string]*room),
		source: source,
		cfg:    cfg,
	}
}

// Join adds observerID to the auction's room, creating the room on first
// join, and returns the subscription with a snapshot of the current state.
func (r *Router) Join(ctx context.Context, auctionID, observerID string) (*Subscription, models.RoomSnapshot, error) {
	if auctionID == "" || observerID == "" {
		return nil, models.RoomSnapshot{}, fmt.Errorf("broadcast: join requires auction and observer ids")
	}

	// register before reading state so nothing committed after the read is missed
	r.mu.Lock()
	rm, ok := r.rooms[auctionID]
	if !ok {
		rm = &room{
			subs:    make(map[uint64]*Subscription),
			pending: make(map[int64]models.Publication),
		}
		r.rooms[auctionID] = rm
	}
	r.nextID++
	sub := &Subscription{
		id:         r.nextID,
		AuctionID:  auctionID,
		ObserverID: observerID,
		events:     make(chan models.Envelope, r.cfg.SubscriberBuffer),
		router:     r,
	}
	rm.subs[sub.id] = sub
	r.mu.Unlock()

	auction, err := r.source.GetAuction(ctx, auctionID)
	if err != nil {
		r.remove(sub)
		return nil, models.RoomSnapshot{}, fmt.Errorf("broadcast: snapshot for auction %s: %w", auctionID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !rm.ready {
		rm.ready = true
		rm.lastSeq = auction.Version
		r.settle(auctionID, rm)
	}
	snap := models.RoomSnapshot{
		Auction:      auction,
		RecentEvents: append([]models.Envelope(nil), rm.recent...),
		Observers:    observerCount(rm),
	}

	utils.Debug("Observer joined auction room", map[string]any{
		"auction_id":  auctionID,
		"observer_id": observerID,
		"observers":   snap.Observers,
	})
	return sub, snap, nil
}

// Leave removes every subscription observerID holds in the auction's room
func (r *Router) Leave(auctionID, observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[auctionID]
	if !ok {
		return
	}
	for _, sub := range rm.subs {
		if sub.ObserverID == observerID {
			r.detach(rm, sub)
		}
	}
	r.dropIfEmpty(auctionID, rm)
}

func (r *Router) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[sub.AuctionID]
	if !ok || sub.closed {
		return
	}
	r.detach(rm, sub)
	r.dropIfEmpty(sub.AuctionID, rm)
}

// detach must be called with r.mu held
func (r *Router) detach(rm *room, sub *Subscription) {
	delete(rm.subs, sub.id)
	if !sub.closed {
		sub.closed = true
		close(sub.events)
	}
}

func (r *Router) dropIfEmpty(auctionID string, rm *room) {
	if len(rm.subs) > 0 {
		return
	}
	if rm.timer != nil {
		rm.timer.Stop()
	}
	if r.rooms[auctionID] == rm {
		delete(r.rooms, auctionID)
	}
}

// Publish hands one commit's events to the auction's room. Publications are
// delivered in Seq order; one at or below what the room already delivered
// is dropped.
func (r *Router) Publish(p models.Publication) {
	if p.Empty() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[p.AuctionID]
	if !ok {
		return
	}
	if rm.ready && p.Seq <= rm.lastSeq {
		return
	}
	rm.pending[p.Seq] = p
	if !rm.ready {
		return
	}

	r.settle(p.AuctionID, rm)
}

// settle delivers what can be delivered in order and arms the gap timer for
// the rest. Must be called with r.mu held.
func (r *Router) settle(auctionID string, rm *room) {
	r.drain(auctionID, rm)
	if len(rm.pending) > r.cfg.MaxPending {
		r.skipGap(auctionID, rm)
	}
	if len(rm.pending) > 0 && rm.timer == nil {
		rm.timer = time.AfterFunc(r.cfg.ReorderWindow, func() { r.expireGap(auctionID, rm) })
	}
	// eviction may have emptied the room
	r.dropIfEmpty(auctionID, rm)
}

// drain delivers consecutive pending publications
func (r *Router) drain(auctionID string, rm *room) {
	for seq := range rm.pending {
		if seq <= rm.lastSeq {
			delete(rm.pending, seq)
		}
	}
	for {
		p, ok := rm.pending[rm.lastSeq+1]
		if !ok {
			break
		}
		delete(rm.pending, p.Seq)
		rm.lastSeq = p.Seq
		r.deliver(auctionID, rm, p)
	}
	if len(rm.pending) == 0 && rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
}

// skipGap gives up on the missing sequence numbers and delivers everything
// pending in order. Commits made by other processes leave such gaps.
func (r *Router) skipGap(auctionID string, rm *room) {
	seqs := make([]int64, 0, len(rm.pending))
	for seq := range rm.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	utils.Debug("Skipping event sequence gap", map[string]any{
		"auction_id": auctionID,
		"last_seq":   rm.lastSeq,
		"next_seq":   seqs[0],
	})
	for _, seq := range seqs {
		p := rm.pending[seq]
		delete(rm.pending, seq)
		rm.lastSeq = seq
		r.deliver(auctionID, rm, p)
	}
	if rm.timer != nil {
		rm.timer.Stop()
		rm.timer = nil
	}
}

func (r *Router) expireGap(auctionID string, rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm.timer = nil
	if r.rooms[auctionID] != rm || len(rm.pending) == 0 {
		return
	}
	r.skipGap(auctionID, rm)
	r.dropIfEmpty(auctionID, rm)
}

// deliver must be called with r.mu held
func (r *Router) deliver(auctionID string, rm *room, p models.Publication) {
	for _, ev := range p.Broadcast {
		env := models.NewEnvelope(p.Seq, p.At, ev)
		r.remember(rm, env)
		for _, sub := range rm.subs {
			r.send(auctionID, rm, sub, env)
		}
	}
	for observerID, ev := range p.Targeted {
		env := models.NewEnvelope(p.Seq, p.At, ev)
		for _, sub := range rm.subs {
			if sub.ObserverID == observerID {
				r.send(auctionID, rm, sub, env)
			}
		}
	}
}

func (r *Router) remember(rm *room, env models.Envelope) {
	if r.cfg.RecentEvents == 0 {
		return
	}
	if len(rm.recent) == r.cfg.RecentEvents {
		copy(rm.recent, rm.recent[1:])
		rm.recent[len(rm.recent)-1] = env
		return
	}
	rm.recent = append(rm.recent, env)
}

// send never blocks; a subscriber with a full buffer is evicted
func (r *Router) send(auctionID string, rm *room, sub *Subscription, env models.Envelope) {
	if sub.closed {
		return
	}
	select {
	case sub.events <- env:
	default:
		utils.Warn("Evicting slow room subscriber", map[string]any{
			"auction_id":  auctionID,
			"observer_id": sub.ObserverID,
			"seq":         env.Seq,
		})
		r.detach(rm, sub)
	}
}

// Observers returns the number of distinct observers in the auction's room
func (r *Router) Observers(auctionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[auctionID]
	if !ok {
		return 0
	}
	return observerCount(rm)
}

// Rooms returns the number of open rooms
func (r *Router) Rooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func observerCount(rm *room) int {
	seen := make(map[string]struct{}, len(rm.subs))
	for _, sub := range rm.subs {
		seen[sub.ObserverID] = struct{}{}
	}
	return len(seen)
}
