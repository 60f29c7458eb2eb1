package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/nft-auction-api/internal/auction"
	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/factory"
	"github.com/ksred/nft-auction-api/internal/oracle"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates all schemas.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&chain.Account{},
		&chain.TokenBalance{},
		&chain.TokenAllowance{},
		&chain.NFT{},
		&oracle.PriceFeedBinding{},
		&oracle.FeedRound{},
		&escrow.AssetEscrow{},
		&escrow.FundsEscrow{},
		&auction.Auction{},
		&auction.Bid{},
		&factory.IdempotencyRecord{},
		&events.Event{},
	)
}
