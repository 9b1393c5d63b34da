package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"live-bidding/internal/models"
	"live-bidding/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestIdentityMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/whoami", IdentityMiddleware, func(c *gin.Context) {
		c.JSON(http.StatusOK, helpers.ActorFromContext(c))
	})

	tests := []struct {
		name           string
		userID         string
		role           string
		expectedStatus int
		expectedActor  models.Actor
	}{
		{name: "bidder_by_default", userID: "user1", expectedStatus: http.StatusOK, expectedActor: models.Actor{UserID: "user1", Role: models.RoleBidder}},
		{name: "owner", userID: "user2", role: "owner", expectedStatus: http.StatusOK, expectedActor: models.Actor{UserID: "user2", Role: models.RoleOwner}},
		{name: "admin", userID: "user3", role: "admin", expectedStatus: http.StatusOK, expectedActor: models.Actor{UserID: "user3", Role: models.RoleAdmin}},
		{name: "missing_user", role: "admin", expectedStatus: http.StatusUnauthorized},
		{name: "unknown_role", userID: "user4", role: "root", expectedStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tc.userID != "" {
				req.Header.Set(HeaderUserID, tc.userID)
			}
			if tc.role != "" {
				req.Header.Set(HeaderUserRole, tc.role)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedStatus == http.StatusOK {
				require.JSONEq(t, `{"user_id":"`+tc.expectedActor.UserID+`","role":"`+string(tc.expectedActor.Role)+`"}`, w.Body.String())
			}
		})
	}
}
