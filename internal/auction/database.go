package auction

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAuction(auction *Auction) error {
	return d.db.Create(auction).Error
}

func (d *Database) GetAuction(auctionID string) (*Auction, error) {
	var auction Auction
	if err := d.db.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auction, nil
}

func (d *Database) UpdateAuction(auction *Auction) error {
	return d.db.Save(auction).Error
}

func (d *Database) ListAuctions() ([]Auction, error) {
	var auctions []Auction
	if err := d.db.Order("created_at DESC").Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) CreateBid(bid *Bid) error {
	return d.db.Create(bid).Error
}

func (d *Database) UpdateBid(bid *Bid) error {
	return d.db.Save(bid).Error
}

// GetLeadingBid returns the auction's current leading bid, or nil.
func (d *Database) GetLeadingBid(auctionID string) (*Bid, error) {
	var bid Bid
	if err := d.db.Where("auction_id = ? AND status = ?", auctionID, types.BidStateLeading).
		First(&bid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

func (d *Database) GetBidsByAuction(auctionID string) ([]Bid, error) {
	var bids []Bid
	if err := d.db.Where("auction_id = ?", auctionID).Order("id").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// GetRefundableBids returns outbid bids whose funds have not been returned,
// oldest first.
func (d *Database) GetRefundableBids(limit int) ([]Bid, error) {
	var bids []Bid
	query := d.db.Where("status = ?", types.BidStateOutbid).Order("id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}

// GetOutbidBidsForAuction returns an auction's refundable bids.
func (d *Database) GetOutbidBidsForAuction(auctionID string) ([]Bid, error) {
	var bids []Bid
	if err := d.db.Where("auction_id = ? AND status = ?", auctionID, types.BidStateOutbid).
		Order("id").Find(&bids).Error; err != nil {
		return nil, err
	}
	return bids, nil
}
