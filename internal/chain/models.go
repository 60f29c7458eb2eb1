package chain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Account struct {
	gorm.Model    `json:"-"`
	Address       string          `gorm:"uniqueIndex" json:"address"`
	NativeBalance decimal.Decimal `gorm:"type:string" json:"native_balance"`
}

type TokenBalance struct {
	gorm.Model `json:"-"`
	Address    string          `gorm:"uniqueIndex:idx_token_holder" json:"address"`
	AssetKind  string          `gorm:"uniqueIndex:idx_token_holder" json:"asset_kind"`
	Balance    decimal.Decimal `gorm:"type:string" json:"balance"`
}

type TokenAllowance struct {
	gorm.Model `json:"-"`
	Owner      string          `gorm:"uniqueIndex:idx_allowance" json:"owner"`
	Spender    string          `gorm:"uniqueIndex:idx_allowance" json:"spender"`
	AssetKind  string          `gorm:"uniqueIndex:idx_allowance" json:"asset_kind"`
	Amount     decimal.Decimal `gorm:"type:string" json:"amount"`
}

type NFT struct {
	gorm.Model `json:"-"`
	Contract   string `gorm:"uniqueIndex:idx_nft" json:"contract"`
	TokenID    uint64 `gorm:"uniqueIndex:idx_nft" json:"token_id"`
	Owner      string `json:"owner"`
	Approved   string `json:"approved,omitempty"`
}
