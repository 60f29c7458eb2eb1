package auction

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Auction is the per-auction state machine row. HighestBid carries the
// normalized accounting-unit value captured when the leading bid was
// admitted; it is never recomputed afterwards.
type Auction struct {
	gorm.Model       `json:"-"`
	AuctionID        string          `gorm:"uniqueIndex" json:"auction_id"`
	Seller           string          `json:"seller"`
	AssetContract    string          `json:"asset_contract"`
	AssetID          uint64          `json:"asset_id"`
	ReservePrice     decimal.Decimal `gorm:"type:string" json:"reserve_price"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	State            string          `json:"state"`
	HighestBidder    string          `json:"highest_bidder,omitempty"`
	HighestBid       decimal.Decimal `gorm:"type:string" json:"highest_bid"`
	HighestAssetKind string          `json:"highest_asset_kind,omitempty"`
	HighestRawAmount decimal.Decimal `gorm:"type:string" json:"highest_raw_amount"`
}

type Bid struct {
	gorm.Model      `json:"-"`
	BidID           string          `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID       string          `gorm:"index" json:"auction_id"`
	Bidder          string          `json:"bidder"`
	AssetKind       string          `json:"asset_kind"`
	RawAmount       decimal.Decimal `gorm:"type:string" json:"raw_amount"`
	NormalizedValue decimal.Decimal `gorm:"type:string" json:"normalized_value"`
	Status          string          `json:"status"`
	HoldID          string          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Snapshot is the read-interface view of an auction.
type Snapshot struct {
	AuctionID     string          `json:"auction_id"`
	Seller        string          `json:"seller"`
	AssetContract string          `json:"asset_contract"`
	AssetID       uint64          `json:"asset_id"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	State         string          `json:"state"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder string          `json:"highest_bidder,omitempty"`
}

// BidPlacedEvent is the payload recorded when a bid is accepted.
type BidPlacedEvent struct {
	AuctionID         string          `json:"auction_id"`
	Bidder            string          `json:"bidder"`
	AssetKind         string          `json:"asset_kind"`
	Amount            decimal.Decimal `json:"amount"`
	NormalizedHighest decimal.Decimal `json:"normalized_highest"`
}

// AuctionEndedEvent is the payload recorded when settlement runs.
type AuctionEndedEvent struct {
	AuctionID string          `json:"auction_id"`
	Winner    string          `json:"winner,omitempty"`
	AssetTo   string          `json:"asset_to"`
	FinalBid  decimal.Decimal `json:"final_bid"`
}

// FundsRefundedEvent is the payload recorded when an outbid hold is returned.
type FundsRefundedEvent struct {
	AuctionID string          `json:"auction_id"`
	Bidder    string          `json:"bidder"`
	AssetKind string          `json:"asset_kind"`
	Amount    decimal.Decimal `json:"amount"`
}
