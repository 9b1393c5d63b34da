package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"live-bidding/internal/broadcast"
	"live-bidding/internal/models"
	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// RoomRegistry admits observers into auction rooms
type RoomRegistry interface {
	Join(ctx context.Context, auctionID, observerID string) (*broadcast.Subscription, models.RoomSnapshot, error)
}

// SocketConfig tunes one room connection
type SocketConfig struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	BidsPerSecond  float64
	BidBurst       int
}

func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 4096,
		BidsPerSecond:  5,
		BidBurst:       5,
	}
}

type RoomHandler struct {
	service  BiddingServiceInterface
	rooms    RoomRegistry
	cfg      SocketConfig
	upgrader websocket.Upgrader
}

func NewRoomHandler(service BiddingServiceInterface, rooms RoomRegistry, cfg SocketConfig) *RoomHandler {
	def := DefaultSocketConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.BidsPerSecond <= 0 {
		cfg.BidsPerSecond = def.BidsPerSecond
	}
	if cfg.BidBurst <= 0 {
		cfg.BidBurst = def.BidBurst
	}
	return &RoomHandler{
		service: service,
		rooms:   rooms,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			// origin checks belong to the gateway that verified the caller
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// JoinRoomHandler handles GET /auctions/:auction_id/room. The first frame
// is the room snapshot, then every event envelope in sequence order.
// Closing the socket leaves the room.
func (h *RoomHandler) JoinRoomHandler(c *gin.Context) {
	actor := helpers.ActorFromContext(c)
	auctionID := c.Param("auction_id")

	sub, snapshot, err := h.rooms.Join(c.Request.Context(), auctionID, actor.UserID)
	if err != nil {
		helpers.RespondError(c, "JoinRoomHandler", err, map[string]any{
			"auction_id":  auctionID,
			"observer_id": actor.UserID,
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		sub.Close()
		utils.Warn("JoinRoomHandler: websocket upgrade failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
		return
	}

	session := &roomSession{
		handler:    h,
		conn:       conn,
		sub:        sub,
		actor:      actor,
		replies:    make(chan helpers.SocketReply, 8),
		limiter:    rate.NewLimiter(rate.Limit(h.cfg.BidsPerSecond), h.cfg.BidBurst),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	helpers.LogSuccess("JoinRoomHandler", "observer joined room", map[string]any{
		"auction_id":  auctionID,
		"observer_id": actor.UserID,
		"observers":   snapshot.Observers,
	})
	session.run(c.Request.Context(), snapshot)
}

// roomSession owns one websocket connection. Only the write loop writes to
// the connection; only the read loop reads from it.
type roomSession struct {
	handler    *RoomHandler
	conn       *websocket.Conn
	sub        *broadcast.Subscription
	actor      models.Actor
	replies    chan helpers.SocketReply
	limiter    *rate.Limiter
	done       chan struct{} // read loop finished
	writerDone chan struct{}
}

func (s *roomSession) run(parent context.Context, snapshot models.RoomSnapshot) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer close(s.writerDone)
		s.writeLoop(snapshot)
	}()

	s.readLoop(ctx)

	cancel()
	close(s.done)
	s.sub.Close()
	<-s.writerDone
	_ = s.conn.Close()
	utils.Debug("Observer left room", map[string]any{
		"auction_id":  s.sub.AuctionID,
		"observer_id": s.actor.UserID,
	})
}

func (s *roomSession) readLoop(ctx context.Context) {
	cfg := s.handler.cfg
	s.conn.SetReadLimit(cfg.MaxMessageSize)
	pongWait := cfg.PingInterval * 2
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				utils.Debug("Room connection read failed", map[string]any{
					"auction_id":  s.sub.AuctionID,
					"observer_id": s.actor.UserID,
					"error":       err.Error(),
				})
			}
			return
		}
		if !s.reply(s.handleMessage(ctx, raw)) {
			return
		}
	}
}

func (s *roomSession) handleMessage(ctx context.Context, raw []byte) helpers.SocketReply {
	var msg helpers.SocketMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return helpers.SocketReply{Type: "error", Error: "invalid message format"}
	}
	if msg.Type != "bid" {
		return helpers.SocketReply{Type: "error", Error: "unknown message type"}
	}
	if !s.limiter.Allow() {
		utils.Warn("Room bid rate limit exceeded", map[string]any{
			"auction_id": s.sub.AuctionID,
			"bidder_id":  s.actor.UserID,
		})
		return helpers.SocketReply{Type: "error", Error: "rate limit exceeded", Retryable: true}
	}

	result, err := s.handler.service.PlaceBid(ctx, s.sub.AuctionID, s.actor.UserID, msg.Amount)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		return helpers.SocketReply{
			Type:      "error",
			Error:     message,
			Retryable: status == http.StatusServiceUnavailable,
		}
	}
	bid := helpers.ToBidResponse(result)
	return helpers.SocketReply{Type: "bid_result", Bid: &bid}
}

// reply hands a frame to the write loop; false once the writer has quit
func (s *roomSession) reply(r helpers.SocketReply) bool {
	select {
	case s.replies <- r:
		return true
	case <-s.writerDone:
		return false
	}
}

func (s *roomSession) writeLoop(snapshot models.RoomSnapshot) {
	cfg := s.handler.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	if err := s.writeJSON(snapshot); err != nil {
		_ = s.conn.Close()
		return
	}

	for {
		select {
		case env, ok := <-s.sub.Events():
			if !ok {
				// evicted as a slow consumer or left the room
				s.closeWith(websocket.ClosePolicyViolation, "subscription closed")
				return
			}
			if err := s.writeJSON(env); err != nil {
				_ = s.conn.Close()
				return
			}
		case r := <-s.replies:
			if err := s.writeJSON(r); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			s.closeWith(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (s *roomSession) writeJSON(v any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.handler.cfg.WriteTimeout))
	err := s.conn.WriteJSON(v)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		utils.Debug("Room connection write failed", map[string]any{
			"auction_id":  s.sub.AuctionID,
			"observer_id": s.actor.UserID,
			"error":       err.Error(),
		})
	}
	return err
}

func (s *roomSession) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.handler.cfg.WriteTimeout))
	// unblock the read loop
	_ = s.conn.Close()
}
