package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/nft-auction-api/internal/auction"
	"github.com/ksred/nft-auction-api/internal/auth"
	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/config"
	"github.com/ksred/nft-auction-api/internal/database"
	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/factory"
	"github.com/ksred/nft-auction-api/internal/oracle"
	"github.com/ksred/nft-auction-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the auction API server with graceful shutdown
// support. It sets up all required services, database connections, and API
// routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(TestAPIKey, TestAPISecret)
	authService.RegisterAdminCredentials(DeployerAPIKey, DeployerAPISecret)

	eventService := events.NewService(db)
	ledger := chain.NewLedger(db)
	chainHandlers := chain.NewGinHandlers(ledger)
	escrowService := escrow.NewService(db)
	oracleService := oracle.NewService(db, cfg.FeedStalenessTolerance)

	auctionService := auction.NewService(db, escrowService, oracleService, eventService)
	auctionHandlers := auction.NewGinHandlers(auctionService, eventService)

	factoryService := factory.NewService(db, escrowService, oracleService, auctionService, eventService)
	factoryHandlers := factory.NewGinHandlers(factoryService)

	// Create and start the refund processor for outbid funds
	refundProcessor := auction.NewRefundProcessor(db, escrowService, eventService, cfg.RefundInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go refundProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, auctionHandlers, factoryHandlers, chainHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// Test credentials registered at startup for local runs
var (
	TestAPIKey        = "test-api-key"
	TestAPISecret     = "test-api-secret"
	DeployerAPIKey    = "deployer-api-key"
	DeployerAPISecret = "deployer-api-secret"
)

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Auction routes: Reads are public; creation and bidding require JWT
// - Settlement route: Public, idempotent after first success
// - Admin routes: Oracle bindings, restricted to the deploying identity
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	auctionHandlers *auction.GinHandlers,
	factoryHandlers *factory.GinHandlers,
	chainHandlers *chain.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Auction routes
		auctions := v1.Group("/auctions")
		{
			auctions.GET("", auctionHandlers.ListAuctionsHandler())
			auctions.GET("/:auction_id", auctionHandlers.GetAuctionHandler())
			auctions.GET("/:auction_id/bids", auctionHandlers.GetBidsHandler())
			auctions.GET("/:auction_id/events", auctionHandlers.GetEventsHandler())

			// Settlement is callable by anyone once the auction has ended
			auctions.POST("/:auction_id/end", factoryHandlers.EndAuctionHandler())

			authed := auctions.Group("")
			authed.Use(middleware.JWTAuth(jwtSecret))
			{
				authed.POST("", factoryHandlers.CreateAuctionHandler())
				authed.POST("/:auction_id/bids", auctionHandlers.PlaceBidHandler())
			}
		}

		// Price feed reads
		feeds := v1.Group("/price-feeds")
		{
			feeds.GET("", factoryHandlers.ListPriceFeedsHandler())
			feeds.GET("/:asset_kind/latest", factoryHandlers.LatestAnswerHandler())
		}

		// Ledger routes: reads are public, approvals need the owner's token
		ledger := v1.Group("/ledger")
		{
			ledger.GET("/accounts/:address", chainHandlers.GetAccountHandler())
			ledger.GET("/nfts/:contract/:token_id", chainHandlers.GetNFTHandler())

			approvals := ledger.Group("")
			approvals.Use(middleware.JWTAuth(jwtSecret))
			{
				approvals.POST("/approvals/nft", chainHandlers.ApproveNFTHandler())
				approvals.POST("/approvals/token", chainHandlers.ApproveTokenHandler())
			}
		}

		// Admin routes (deploying identity only)
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth(jwtSecret))
		{
			admin.POST("/price-feeds", factoryHandlers.SetPriceFeedHandler())
			admin.POST("/price-feeds/:asset_kind/rounds", factoryHandlers.PostRoundHandler())
			admin.POST("/ledger/native", chainHandlers.SeedNativeHandler())
			admin.POST("/ledger/tokens", chainHandlers.MintTokenHandler())
			admin.POST("/ledger/nfts", chainHandlers.MintNFTHandler())
		}
	}
}
