package factory

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// CreateAuctionResult is returned by the creation interface.
type CreateAuctionResult struct {
	AuctionID      string          `json:"auction_id"`
	AuctionAddress string          `json:"auction_address"`
	AssetContract  string          `json:"asset_contract"`
	AssetID        uint64          `json:"asset_id"`
	Seller         string          `json:"seller"`
	ReservePrice   decimal.Decimal `json:"reserve_price"`
	EndTime        time.Time       `json:"end_time"`
}

// AuctionCreatedEvent is the payload recorded when an auction is created.
type AuctionCreatedEvent struct {
	AuctionID      string          `json:"auction_id"`
	AuctionAddress string          `json:"auction_address"`
	TokenID        uint64          `json:"token_id"`
	AssetContract  string          `json:"asset_contract"`
	Seller         string          `json:"seller"`
	ReservePrice   decimal.Decimal `json:"reserve_price"`
	EndTime        time.Time       `json:"end_time"`
}
