package server

import (
	handler "live-bidding/services/bidding/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures all Gin routes for the application
func SetupRouter(biddingService handler.BiddingServiceInterface, rooms handler.RoomRegistry, socketCfg handler.SocketConfig) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(biddingService)
	roomHandler := handler.NewRoomHandler(biddingService, rooms, socketCfg)

	auctions := router.Group("/auctions", IdentityMiddleware)
	{
		auctions.POST("", biddingHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)

		auctions.GET("/:auction_id/bids", biddingHandler.ListBidsHandler)
		auctions.POST("/:auction_id/bids", biddingHandler.PlaceBidHandler)

		auctions.POST("/:auction_id/schedule", biddingHandler.ScheduleAuctionHandler())
		auctions.POST("/:auction_id/start", biddingHandler.StartAuctionHandler())
		auctions.POST("/:auction_id/pause", biddingHandler.PauseAuctionHandler())
		auctions.POST("/:auction_id/resume", biddingHandler.ResumeAuctionHandler())
		auctions.POST("/:auction_id/end", biddingHandler.EndAuctionHandler())
		auctions.POST("/:auction_id/cancel", biddingHandler.CancelAuctionHandler)

		auctions.GET("/:auction_id/room", roomHandler.JoinRoomHandler)
	}

	return router
}
