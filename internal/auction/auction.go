package auction

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/oracle"
	"github.com/ksred/nft-auction-api/internal/types"
	"github.com/ksred/nft-auction-api/pkg/response"
)

// Service runs the per-auction state machine: bid admission, ranking by
// normalized value, and settlement. Calls against the same auction are
// serialized by a per-auction lock; the original substrate ordered them
// globally, so nothing here relies on cross-auction ordering.
type Service struct {
	gormDB *gorm.DB
	db     *Database
	escrow *escrow.Service
	oracle *oracle.Service
	events *events.Service

	locks sync.Map // auctionID -> *sync.Mutex
	now   func() time.Time
}

func NewService(gormDB *gorm.DB, escrowService *escrow.Service, oracleService *oracle.Service, eventService *events.Service) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
		escrow: escrowService,
		oracle: oracleService,
		events: eventService,
		now:    time.Now,
	}
}

func (s *Service) lock(auctionID string) func() {
	value, _ := s.locks.LoadOrStore(auctionID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// PlaceBid admits a bid into an active auction. The raw amount is normalized
// at admission time and must strictly exceed both the reserve price and the
// current highest normalized value. The new bid's funds are escrowed first;
// the superseded bid is only marked refundable, never refunded in this call.
func (s *Service) PlaceBid(auctionID, bidder, assetKind string, rawAmount, attachedValue decimal.Decimal) (*Bid, error) {
	logger := log.With().
		Str("auction_id", auctionID).
		Str("bidder", bidder).
		Str("asset_kind", assetKind).
		Str("service", "auction").
		Logger()

	unlock := s.lock(auctionID)
	defer unlock()

	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, types.ErrAuctionNotFound
	}
	if auction.State != types.AuctionStateActive || !s.now().Before(auction.EndTime) {
		return nil, types.ErrBiddingClosed
	}

	normalized, err := s.oracle.Normalize(assetKind, rawAmount)
	if err != nil {
		logger.Error().Err(err).Msg("bid normalization failed")
		return nil, err
	}

	if normalized.Cmp(auction.ReservePrice) <= 0 || normalized.Cmp(auction.HighestBid) <= 0 {
		return nil, fmt.Errorf("%w: %s does not exceed reserve %s and highest %s",
			types.ErrBidTooLow, normalized, auction.ReservePrice, auction.HighestBid)
	}

	bid := &Bid{
		BidID:           uuid.New().String(),
		AuctionID:       auctionID,
		Bidder:          bidder,
		AssetKind:       assetKind,
		RawAmount:       rawAmount,
		NormalizedValue: normalized,
		Status:          types.BidStateLeading,
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		holdID, err := s.escrow.WithTx(tx).HoldFunds(auctionID, bidder, assetKind, rawAmount, attachedValue)
		if err != nil {
			return err
		}
		bid.HoldID = holdID

		previous, err := db.GetLeadingBid(auctionID)
		if err != nil {
			return err
		}
		if previous != nil {
			previous.Status = types.BidStateOutbid
			if err := db.UpdateBid(previous); err != nil {
				return err
			}
		}

		if err := db.CreateBid(bid); err != nil {
			return err
		}

		auction.HighestBidder = bidder
		auction.HighestBid = normalized
		auction.HighestAssetKind = assetKind
		auction.HighestRawAmount = rawAmount
		if err := db.UpdateAuction(auction); err != nil {
			return err
		}

		return s.events.Record(tx, auctionID, events.TypeBidPlaced, BidPlacedEvent{
			AuctionID:         auctionID,
			Bidder:            bidder,
			AssetKind:         assetKind,
			Amount:            rawAmount,
			NormalizedHighest: normalized,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("bid rejected")
		return nil, err
	}

	logger.Info().
		Str("bid_id", bid.BidID).
		Str("raw_amount", rawAmount.String()).
		Str("normalized_value", normalized.String()).
		Msg("bid accepted")
	return bid, nil
}

// EndAuction settles the auction. Callable by anyone once the end time has
// passed; settlement runs exactly once. With a highest bid the asset goes to
// the winner and the winning funds to the seller, and every superseded bid
// still holding funds is refunded; with no bids the asset returns to the
// seller.
func (s *Service) EndAuction(auctionID string) (*Snapshot, error) {
	logger := log.With().
		Str("auction_id", auctionID).
		Str("service", "auction").
		Logger()

	unlock := s.lock(auctionID)
	defer unlock()

	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, types.ErrAuctionNotFound
	}
	if auction.State == types.AuctionStateSettled {
		return nil, types.ErrAlreadySettled
	}
	if s.now().Before(auction.EndTime) {
		return nil, fmt.Errorf("%w: ends at %s", types.ErrAuctionNotYetEnded, auction.EndTime.Format(time.RFC3339))
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)
		escrowTx := s.escrow.WithTx(tx)

		winner, err := db.GetLeadingBid(auctionID)
		if err != nil {
			return err
		}

		assetRecipient := auction.Seller
		if winner != nil {
			assetRecipient = winner.Bidder

			if err := escrowTx.ReleaseFundsTo(winner.HoldID, auction.Seller); err != nil {
				return err
			}
			winner.Status = types.BidStateWon
			if err := db.UpdateBid(winner); err != nil {
				return err
			}
		}

		if err := escrowTx.ReleaseAssetTo(auctionID, assetRecipient); err != nil {
			return err
		}

		outbid, err := db.GetOutbidBidsForAuction(auctionID)
		if err != nil {
			return err
		}
		for i := range outbid {
			if err := s.refundBid(tx, db, escrowTx, &outbid[i]); err != nil {
				return err
			}
		}

		auction.State = types.AuctionStateSettled
		if err := db.UpdateAuction(auction); err != nil {
			return err
		}

		winnerAddress := ""
		if winner != nil {
			winnerAddress = winner.Bidder
		}
		return s.events.Record(tx, auctionID, events.TypeAuctionEnded, AuctionEndedEvent{
			AuctionID: auctionID,
			Winner:    winnerAddress,
			AssetTo:   assetRecipient,
			FinalBid:  auction.HighestBid,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("settlement failed")
		return nil, err
	}

	logger.Info().
		Str("state", auction.State).
		Str("highest_bidder", auction.HighestBidder).
		Str("highest_bid", auction.HighestBid.String()).
		Msg("auction settled")

	snapshot := auction.snapshot()
	return &snapshot, nil
}

func (s *Service) refundBid(tx *gorm.DB, db *Database, escrowTx *escrow.Service, bid *Bid) error {
	if err := escrowTx.RefundFunds(bid.HoldID); err != nil {
		return err
	}
	bid.Status = types.BidStateRefunded
	if err := db.UpdateBid(bid); err != nil {
		return err
	}
	return s.events.Record(tx, bid.AuctionID, events.TypeFundsRefunded, FundsRefundedEvent{
		AuctionID: bid.AuctionID,
		Bidder:    bid.Bidder,
		AssetKind: bid.AssetKind,
		Amount:    bid.RawAmount,
	})
}

// GetSnapshot returns the read-interface view of an auction.
func (s *Service) GetSnapshot(auctionID string) (*Snapshot, error) {
	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, types.ErrAuctionNotFound
	}
	snapshot := auction.snapshot()
	return &snapshot, nil
}

// GetBids returns an auction's bid history, admission order.
func (s *Service) GetBids(auctionID string) ([]Bid, error) {
	auction, err := s.db.GetAuction(auctionID)
	if err != nil {
		return nil, err
	}
	if auction == nil {
		return nil, types.ErrAuctionNotFound
	}
	return s.db.GetBidsByAuction(auctionID)
}

// ListAuctions returns all auctions, newest first.
func (s *Service) ListAuctions() ([]Auction, error) {
	return s.db.ListAuctions()
}

func (a *Auction) snapshot() Snapshot {
	return Snapshot{
		AuctionID:     a.AuctionID,
		Seller:        a.Seller,
		AssetContract: a.AssetContract,
		AssetID:       a.AssetID,
		ReservePrice:  a.ReservePrice,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		State:         a.State,
		HighestBid:    a.HighestBid,
		HighestBidder: a.HighestBidder,
	}
}

// GinHandlers contains HTTP handlers for auction endpoints
type GinHandlers struct {
	service *Service
	events  *events.Service
}

func NewGinHandlers(service *Service, eventService *events.Service) *GinHandlers {
	return &GinHandlers{
		service: service,
		events:  eventService,
	}
}

type placeBidRequest struct {
	AssetKind     string          `json:"asset_kind" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	AttachedValue decimal.Decimal `json:"attached_value"`
}

// PlaceBidHandler handles POST requests to submit a bid
// Requires a valid JWT token; the bidder identity comes from the token, not
// the request body
func (h *GinHandlers) PlaceBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bidder := c.GetString("clientID")
		if bidder == "" {
			response.Unauthorized(c, "Missing bidder identity")
			return
		}

		var request placeBidRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if request.Amount.Sign() <= 0 {
			response.BadRequest(c, "bid amount must be positive")
			return
		}

		bid, err := h.service.PlaceBid(
			c.Param("auction_id"),
			bidder,
			request.AssetKind,
			request.Amount,
			request.AttachedValue,
		)
		response.Handle(c, bid, err)
	}
}

// GetAuctionHandler handles GET requests for an auction snapshot
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := h.service.GetSnapshot(c.Param("auction_id"))
		response.Handle(c, snapshot, err)
	}
}

// ListAuctionsHandler handles GET requests for all auctions
func (h *GinHandlers) ListAuctionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auctions, err := h.service.ListAuctions()
		response.Handle(c, auctions, err)
	}
}

// GetBidsHandler handles GET requests for an auction's bid history
func (h *GinHandlers) GetBidsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bids, err := h.service.GetBids(c.Param("auction_id"))
		response.Handle(c, bids, err)
	}
}

// GetEventsHandler handles GET requests for an auction's event log
func (h *GinHandlers) GetEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recorded, err := h.events.ForAuction(c.Param("auction_id"))
		response.Handle(c, recorded, err)
	}
}
