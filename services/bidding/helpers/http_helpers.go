package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/models"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionNotLive):
		return http.StatusConflict, "auction is not accepting bids"
	case errors.Is(err, biddingerrors.ErrInvalidTransition):
		return http.StatusConflict, "invalid status transition"
	case errors.Is(err, biddingerrors.ErrNotYetStartable):
		return http.StatusConflict, "bidding start time not reached"
	case errors.Is(err, biddingerrors.ErrCancelWithBids):
		return http.StatusConflict, "auction has bids"
	case errors.Is(err, biddingerrors.ErrSelfBidForbidden):
		return http.StatusForbidden, "owner cannot bid on own auction"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "operation not allowed"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidAuction), errors.Is(err, biddingerrors.ErrInvalidSchedule):
		return http.StatusBadRequest, "invalid auction details"
	case biddingerrors.IsRetryable(err):
		return http.StatusServiceUnavailable, "temporarily unavailable, retry"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the mapped error response. Transient failures carry
// "retryable": true so clients know the whole request may be resent.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	if status == http.StatusServiceUnavailable {
		utils.JSONRetryableError(c, status, err, message)
	} else {
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	}

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// ToBidResponse flattens a bid result for the wire
func ToBidResponse(r models.BidResult) BidResponse {
	return BidResponse{
		BidID:                   r.Bid.BidID,
		AuctionID:               r.Bid.AuctionID,
		BidderID:                r.Bid.BidderID,
		Amount:                  r.Bid.Amount.String(),
		Status:                  string(r.Bid.Status),
		PlacedAt:                r.Bid.PlacedAt.UTC().Format(time.RFC3339Nano),
		CurrentHighestBid:       r.CurrentHighestBid.String(),
		PreviousHighestBidderID: r.PreviousHighestBidderID,
		TotalBids:               r.TotalBids,
		TotalBidders:            r.TotalBidders,
		BiddingEndsAt:           r.BiddingEndsAt.UTC().Format(time.RFC3339Nano),
		Extended:                r.Extended,
	}
}

// ToNewAuction converts a create request into the service input
func ToNewAuction(req CreateAuctionRequest) models.NewAuction {
	return models.NewAuction{
		Title:                  req.Title,
		StartingBid:            req.StartingBid,
		BidIncrement:           req.BidIncrement,
		BiddingStartsAt:        req.BiddingStartsAt,
		BiddingEndsAt:          req.BiddingEndsAt,
		AutoExtend:             req.AutoExtend,
		ExtensionWindowSeconds: req.ExtensionWindowSeconds,
		MaxExtensions:          req.MaxExtensions,
	}
}
