package auction

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/types"
)

// RefundProcessor returns outbid funds in the background. Outbidding only
// marks the superseded bid refundable so a failing refund can never block a
// bid from being accepted; this loop retries refunds until they go through.
type RefundProcessor struct {
	gormDB       *gorm.DB
	db           *Database
	escrow       *escrow.Service
	events       *events.Service
	processDelay time.Duration
	batchSize    int
}

func NewRefundProcessor(gormDB *gorm.DB, escrowService *escrow.Service, eventService *events.Service, processDelay time.Duration) *RefundProcessor {
	return &RefundProcessor{
		gormDB:       gormDB,
		db:           NewDatabase(gormDB),
		escrow:       escrowService,
		events:       eventService,
		processDelay: processDelay,
		batchSize:    100,
	}
}

// Start begins the refund processing loop
func (p *RefundProcessor) Start(ctx context.Context) {
	logger := log.With().Str("component", "refund_processor").Logger()
	logger.Info().Dur("interval", p.processDelay).Msg("starting refund processor")

	ticker := time.NewTicker(p.processDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down refund processor")
			return
		case <-ticker.C:
			if err := p.ProcessRefundableBids(); err != nil {
				logger.Error().Err(err).Msg("failed to process refundable bids")
			}
		}
	}
}

// ProcessRefundableBids refunds every bid currently marked refundable. Each
// refund commits on its own; one failure does not hold up the rest.
func (p *RefundProcessor) ProcessRefundableBids() error {
	logger := log.With().Str("component", "refund_processor").Logger()

	bids, err := p.db.GetRefundableBids(p.batchSize)
	if err != nil {
		return err
	}
	if len(bids) == 0 {
		return nil
	}

	logger.Info().Int("refundable_count", len(bids)).Msg("processing refundable bids")

	for i := range bids {
		bid := &bids[i]
		err := p.gormDB.Transaction(func(tx *gorm.DB) error {
			if err := p.escrow.WithTx(tx).RefundFunds(bid.HoldID); err != nil {
				return err
			}
			bid.Status = types.BidStateRefunded
			if err := NewDatabase(tx).UpdateBid(bid); err != nil {
				return err
			}
			return p.events.Record(tx, bid.AuctionID, events.TypeFundsRefunded, FundsRefundedEvent{
				AuctionID: bid.AuctionID,
				Bidder:    bid.Bidder,
				AssetKind: bid.AssetKind,
				Amount:    bid.RawAmount,
			})
		})
		if err != nil {
			logger.Error().
				Err(err).
				Str("bid_id", bid.BidID).
				Str("auction_id", bid.AuctionID).
				Msg("failed to refund outbid bid")
			continue
		}

		logger.Info().
			Str("bid_id", bid.BidID).
			Str("auction_id", bid.AuctionID).
			Str("bidder", bid.Bidder).
			Msg("outbid funds refunded")
	}

	return nil
}
