package escrow

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Hold statuses. A hold leaves HELD exactly once; the recorded transition is
// what makes double-release and double-refund structurally impossible.
const (
	StatusHeld     = "HELD"
	StatusReleased = "RELEASED"
	StatusRefunded = "REFUNDED"
)

// AssetEscrow tracks custody of the auctioned asset for one auction.
type AssetEscrow struct {
	gorm.Model `json:"-"`
	AuctionID  string `gorm:"uniqueIndex" json:"auction_id"`
	Contract   string `json:"contract"`
	TokenID    uint64 `json:"token_id"`
	Seller     string `json:"seller"`
	Status     string `json:"status"`
	ReleasedTo string `json:"released_to,omitempty"`
}

// FundsEscrow tracks one bid's funds while in custody.
type FundsEscrow struct {
	gorm.Model `json:"-"`
	HoldID     string          `gorm:"uniqueIndex" json:"hold_id"`
	AuctionID  string          `gorm:"index" json:"auction_id"`
	Bidder     string          `json:"bidder"`
	AssetKind  string          `json:"asset_kind"`
	Amount     decimal.Decimal `gorm:"type:string" json:"amount"`
	Status     string          `json:"status"`
	ReleasedTo string          `json:"released_to,omitempty"`
}
