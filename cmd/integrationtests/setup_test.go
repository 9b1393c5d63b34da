package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	bidding "live-bidding/internal/biddingService"
	"live-bidding/internal/broadcast"
	"live-bidding/internal/models"
	"live-bidding/internal/repository"
	"live-bidding/internal/server"
	"live-bidding/internal/sweeper"
	handler "live-bidding/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is shared by the service and the sweep so tests can move time
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testApp is the whole process wired over the in-memory store
type testApp struct {
	router *gin.Engine
	repo   *repository.MemoryRepo
	rooms  *broadcast.Router
	sweep  *sweeper.Sweeper
	clock  *testClock
}

// SetupTestApp initializes the router with in-memory repository for integration testing.
func SetupTestApp(t *testing.T, auctions ...models.Auction) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	for _, a := range auctions {
		require.NoError(t, repo.CreateAuction(context.Background(), a))
	}

	clock := &testClock{t: epoch}
	rooms := broadcast.NewRouter(repo, broadcast.DefaultConfig())
	cfg := bidding.DefaultConfig()
	cfg.Clock = clock.Now
	svc, err := bidding.NewBiddingService(repo, rooms, cfg)
	require.NoError(t, err)

	return &testApp{
		router: server.SetupRouter(svc, rooms, handler.DefaultSocketConfig()),
		repo:   repo,
		rooms:  rooms,
		sweep:  sweeper.New(svc, time.Second, 4).WithClock(clock.Now),
		clock:  clock,
	}
}

// liveAuction is open for an hour from epoch with a 2 minute anti-snipe window
func liveAuction(id string) models.Auction {
	return models.Auction{
		AuctionID:              id,
		OwnerID:                "owner1",
		Title:                  "Auction " + id,
		Status:                 models.StatusLive,
		StartingBid:            decimal.NewFromInt(1000),
		CurrentHighestBid:      decimal.NewFromInt(1000),
		BidIncrement:           decimal.NewFromInt(100),
		BiddingStartsAt:        epoch.Add(-time.Hour),
		BiddingEndsAt:          epoch.Add(time.Hour),
		AutoExtend:             true,
		ExtensionWindowSeconds: 120,
		MaxExtensions:          10,
	}
}

// ExecuteRequestAndParse executes an HTTP request as the given user and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, actor models.Actor, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if actor.UserID != "" {
		req.Header.Set(server.HeaderUserID, actor.UserID)
		req.Header.Set(server.HeaderUserRole, string(actor.Role))
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}
