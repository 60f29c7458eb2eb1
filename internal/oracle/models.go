package oracle

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceFeedBinding maps an asset kind to the feed source quoting it in the
// accounting unit. Registered once per asset kind before bids in that kind
// can be admitted; re-registration overwrites the binding.
type PriceFeedBinding struct {
	gorm.Model   `json:"-"`
	AssetKind    string `gorm:"uniqueIndex" json:"asset_kind"`
	Source       string `json:"source"`
	Decimals     int32  `json:"decimals"`
	ToleranceSec int64  `json:"staleness_tolerance_seconds"`
}

// FeedRound is a price reading posted by a feed source. Only the most recent
// round per source is consulted.
type FeedRound struct {
	gorm.Model `json:"-"`
	Source     string          `gorm:"index" json:"source"`
	Answer     decimal.Decimal `gorm:"type:string" json:"answer"`
	PostedAt   time.Time       `json:"posted_at"`
}
