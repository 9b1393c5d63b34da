package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"live-bidding/internal/models"
	"live-bidding/services/bidding/helpers"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the upstream gateway after authentication
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
		"user_id": helpers.ActorFromContext(c).UserID,
	})
}

// IdentityMiddleware turns the gateway's identity headers into a models.Actor.
// A missing role means a plain bidder.
func IdentityMiddleware(c *gin.Context) {
	userID := c.GetHeader(HeaderUserID)
	if userID == "" {
		utils.JSONError(c, http.StatusUnauthorized, errors.New("missing "+HeaderUserID+" header"), "unauthenticated")
		c.Abort()
		return
	}

	role := models.Role(c.GetHeader(HeaderUserRole))
	switch role {
	case "":
		role = models.RoleBidder
	case models.RoleBidder, models.RoleOwner, models.RoleAdmin:
	default:
		utils.JSONError(c, http.StatusBadRequest, fmt.Errorf("unknown role %q", role), "invalid identity")
		c.Abort()
		return
	}

	helpers.SetActor(c, models.Actor{UserID: userID, Role: role})
	c.Next()
}
