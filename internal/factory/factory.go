package factory

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/auction"
	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/oracle"
	"github.com/ksred/nft-auction-api/internal/types"
	"github.com/ksred/nft-auction-api/pkg/response"
)

// Service is the external entry point for auction creation, oracle binding,
// and settlement triggers. Creation escrows the asset and persists the new
// auction in one transaction: when custody cannot be obtained, no auction
// exists afterwards.
type Service struct {
	gormDB  *gorm.DB
	db      *Database
	escrow  *escrow.Service
	oracle  *oracle.Service
	auction *auction.Service
	events  *events.Service
}

func NewService(gormDB *gorm.DB, escrowService *escrow.Service, oracleService *oracle.Service, auctionService *auction.Service, eventService *events.Service) *Service {
	return &Service{
		gormDB:  gormDB,
		db:      NewDatabase(gormDB),
		escrow:  escrowService,
		oracle:  oracleService,
		auction: auctionService,
		events:  eventService,
	}
}

// CreateAuction escrows the seller's asset and opens a new active auction.
// The seller must be the asset's verified owner and must have approved the
// escrow vault; otherwise the call fails with ErrAssetTransferRejected and
// nothing is persisted.
func (s *Service) CreateAuction(seller string, duration time.Duration, reservePrice decimal.Decimal, assetContract string, assetID uint64, idempotencyKey string) (*CreateAuctionResult, error) {
	logger := log.With().
		Str("seller", seller).
		Str("asset_contract", assetContract).
		Uint64("asset_id", assetID).
		Str("service", "factory").
		Logger()

	if duration <= 0 {
		return nil, fmt.Errorf("auction duration must be positive")
	}

	if idempotencyKey != "" {
		record, err := s.db.GetIdempotencyRecord(idempotencyKey)
		if err != nil {
			return nil, err
		}
		if record != nil && record.ExpiresAt.After(time.Now()) {
			snapshot, err := s.auction.GetSnapshot(record.ResourceID)
			if err != nil {
				return nil, err
			}
			return resultFromSnapshot(snapshot), nil
		}
	}

	auctionID := uuid.New().String()
	now := time.Now()
	record := &auction.Auction{
		AuctionID:     auctionID,
		Seller:        seller,
		AssetContract: assetContract,
		AssetID:       assetID,
		ReservePrice:  reservePrice,
		StartTime:     now,
		EndTime:       now.Add(duration),
		State:         types.AuctionStateActive,
		HighestBid:    decimal.Zero,
	}

	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.escrow.WithTx(tx).HoldAsset(auctionID, assetContract, assetID, seller); err != nil {
			return fmt.Errorf("%w: %v", types.ErrAssetTransferRejected, err)
		}

		if err := auction.NewDatabase(tx).CreateAuction(record); err != nil {
			return err
		}

		if idempotencyKey != "" {
			if err := NewDatabase(tx).CreateIdempotencyRecord(&IdempotencyRecord{
				IdempotencyKey: idempotencyKey,
				ResourceID:     auctionID,
				ResourceType:   "auction",
				ExpiresAt:      time.Now().Add(24 * time.Hour),
			}); err != nil {
				return err
			}
		}

		return s.events.Record(tx, auctionID, events.TypeAuctionCreated, AuctionCreatedEvent{
			AuctionID:      auctionID,
			AuctionAddress: auctionAddress(auctionID),
			TokenID:        assetID,
			AssetContract:  assetContract,
			Seller:         seller,
			ReservePrice:   reservePrice,
			EndTime:        record.EndTime,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("auction creation failed")
		return nil, err
	}

	logger.Info().
		Str("auction_id", auctionID).
		Str("reserve_price", reservePrice.String()).
		Time("end_time", record.EndTime).
		Msg("auction created")

	return &CreateAuctionResult{
		AuctionID:      auctionID,
		AuctionAddress: auctionAddress(auctionID),
		AssetContract:  assetContract,
		AssetID:        assetID,
		Seller:         seller,
		ReservePrice:   reservePrice,
		EndTime:        record.EndTime,
	}, nil
}

// SetPriceFeed registers asset kind / feed source bindings pairwise.
// Restricted to the deploying identity at the routing layer.
func (s *Service) SetPriceFeed(assetKinds, sources []string) error {
	return s.oracle.RegisterFeeds(assetKinds, sources)
}

// EndAuction triggers settlement on an auction instance.
func (s *Service) EndAuction(auctionID string) (*auction.Snapshot, error) {
	return s.auction.EndAuction(auctionID)
}

func auctionAddress(auctionID string) string {
	return "/api/v1/auctions/" + auctionID
}

func resultFromSnapshot(snapshot *auction.Snapshot) *CreateAuctionResult {
	return &CreateAuctionResult{
		AuctionID:      snapshot.AuctionID,
		AuctionAddress: auctionAddress(snapshot.AuctionID),
		AssetContract:  snapshot.AssetContract,
		AssetID:        snapshot.AssetID,
		Seller:         snapshot.Seller,
		ReservePrice:   snapshot.ReservePrice,
		EndTime:        snapshot.EndTime,
	}
}

// GinHandlers contains HTTP handlers for factory endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createAuctionRequest struct {
	DurationSeconds int64           `json:"duration_seconds" binding:"required,gt=0"`
	ReservePrice    decimal.Decimal `json:"reserve_price" binding:"required"`
	AssetContract   string          `json:"asset_contract" binding:"required"`
	AssetID         uint64          `json:"asset_id"`
}

type setPriceFeedRequest struct {
	AssetKinds  []string `json:"asset_kinds" binding:"required"`
	FeedSources []string `json:"feed_sources" binding:"required"`
}

type postRoundRequest struct {
	Answer decimal.Decimal `json:"answer" binding:"required"`
}

// CreateAuctionHandler handles POST requests to create auctions
// Requires a valid JWT token and idempotency key in headers; the seller is
// the authenticated client
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		seller := c.GetString("clientID")
		if seller == "" {
			response.Unauthorized(c, "Missing seller identity")
			return
		}

		var request createAuctionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.CreateAuction(
			seller,
			time.Duration(request.DurationSeconds)*time.Second,
			request.ReservePrice,
			request.AssetContract,
			request.AssetID,
			idempotencyKey,
		)
		response.Handle(c, result, err)
	}
}

// EndAuctionHandler handles POST requests to settle an auction
// Callable by any party, no authorization required; retries after the first
// success fail with ALREADY_SETTLED and move nothing
func (h *GinHandlers) EndAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := h.service.EndAuction(c.Param("auction_id"))
		response.Handle(c, snapshot, err)
	}
}

// SetPriceFeedHandler handles POST requests to register oracle bindings
// Restricted to the deploying identity via admin authentication
func (h *GinHandlers) SetPriceFeedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request setPriceFeedRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetPriceFeed(request.AssetKinds, request.FeedSources); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{"registered": len(request.AssetKinds)})
	}
}

// ListPriceFeedsHandler handles GET requests for registered oracle bindings
func (h *GinHandlers) ListPriceFeedsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bindings, err := h.service.oracle.Bindings()
		response.Handle(c, bindings, err)
	}
}

// LatestAnswerHandler handles GET requests for an asset kind's latest price
func (h *GinHandlers) LatestAnswerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		answer, err := h.service.oracle.LatestAnswer(c.Param("asset_kind"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"asset_kind": c.Param("asset_kind"), "answer": answer})
	}
}

// PostRoundHandler handles POST requests to record a feed reading
// Restricted to the deploying identity via admin authentication
func (h *GinHandlers) PostRoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request postRoundRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		binding, err := h.service.oracle.Binding(c.Param("asset_kind"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if binding == nil {
			response.Handle(c, nil, types.ErrOracleUnavailable)
			return
		}

		if err := h.service.oracle.PostRound(binding.Source, request.Answer); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"source": binding.Source, "answer": request.Answer})
	}
}
