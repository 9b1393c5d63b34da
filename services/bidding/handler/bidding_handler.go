package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/models"
	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (models.BidResult, error)
	CreateAuction(ctx context.Context, actor models.Actor, in models.NewAuction) (models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (models.Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	ScheduleAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error)
	StartAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error)
	PauseAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error)
	ResumeAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error)
	EndAuction(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error)
	CancelAuction(ctx context.Context, auctionID string, actor models.Actor, force bool) (models.Auction, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	actor := helpers.ActorFromContext(c)
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	result, err := h.service.PlaceBid(c.Request.Context(), auctionID, actor.UserID, req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"bidder_id":  actor.UserID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(result), "bid accepted")
	helpers.LogSuccess("PlaceBidHandler", "bid accepted", map[string]any{
		"bid_id":     result.Bid.BidID,
		"auction_id": auctionID,
		"bidder_id":  actor.UserID,
		"amount":     result.Bid.Amount.String(),
		"extended":   result.Extended,
	})
}

// ListBidsHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) ListBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.ListBids(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "ListBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	if bids == nil {
		bids = []models.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("ListBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	actor := helpers.ActorFromContext(c)

	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.service.CreateAuction(c.Request.Context(), actor, helpers.ToNewAuction(req))
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"owner_id": actor.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "auction created")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id": auction.AuctionID,
		"owner_id":   auction.OwnerID,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

type transitionFunc func(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error)

// transitionHandler builds the handler for one POST /auctions/:auction_id/<op> route
func (h *BiddingHandler) transitionHandler(name, message string, fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := helpers.ActorFromContext(c)
		auctionID := c.Param("auction_id")

		auction, err := fn(c.Request.Context(), auctionID, actor)
		if err != nil {
			helpers.RespondError(c, name, err, map[string]any{
				"auction_id": auctionID,
				"actor_id":   actor.UserID,
			})
			return
		}

		utils.JSONResponse(c, http.StatusOK, auction, message)
		helpers.LogSuccess(name, message, map[string]any{
			"auction_id": auctionID,
			"status":     auction.Status,
			"actor_id":   actor.UserID,
		})
	}
}

// ScheduleAuctionHandler handles POST /auctions/:auction_id/schedule
func (h *BiddingHandler) ScheduleAuctionHandler() gin.HandlerFunc {
	return h.transitionHandler("ScheduleAuctionHandler", "auction scheduled", h.service.ScheduleAuction)
}

// StartAuctionHandler handles POST /auctions/:auction_id/start
func (h *BiddingHandler) StartAuctionHandler() gin.HandlerFunc {
	return h.transitionHandler("StartAuctionHandler", "auction started", h.service.StartAuction)
}

// PauseAuctionHandler handles POST /auctions/:auction_id/pause
func (h *BiddingHandler) PauseAuctionHandler() gin.HandlerFunc {
	return h.transitionHandler("PauseAuctionHandler", "auction paused", h.service.PauseAuction)
}

// ResumeAuctionHandler handles POST /auctions/:auction_id/resume
func (h *BiddingHandler) ResumeAuctionHandler() gin.HandlerFunc {
	return h.transitionHandler("ResumeAuctionHandler", "auction resumed", h.service.ResumeAuction)
}

// EndAuctionHandler handles POST /auctions/:auction_id/end
func (h *BiddingHandler) EndAuctionHandler() gin.HandlerFunc {
	return h.transitionHandler("EndAuctionHandler", "auction ended", h.service.EndAuction)
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel?force=true
func (h *BiddingHandler) CancelAuctionHandler(c *gin.Context) {
	force := false
	if raw := c.Query("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			err = fmt.Errorf("%w - force must be a boolean", biddingerrors.ErrInvalidAuction)
			helpers.RespondError(c, "CancelAuctionHandler", err, map[string]any{"force": raw})
			return
		}
		force = v
	}

	h.transitionHandler("CancelAuctionHandler", "auction cancelled",
		func(ctx context.Context, auctionID string, actor models.Actor) (models.Auction, error) {
			return h.service.CancelAuction(ctx, auctionID, actor, force)
		})(c)
}
