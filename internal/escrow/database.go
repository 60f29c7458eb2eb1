package escrow

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAssetEscrow(record *AssetEscrow) error {
	return d.db.Create(record).Error
}

func (d *Database) GetAssetEscrow(auctionID string) (*AssetEscrow, error) {
	var record AssetEscrow
	if err := d.db.Where("auction_id = ?", auctionID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (d *Database) UpdateAssetEscrow(record *AssetEscrow) error {
	return d.db.Save(record).Error
}

func (d *Database) CreateFundsEscrow(record *FundsEscrow) error {
	return d.db.Create(record).Error
}

func (d *Database) GetFundsEscrow(holdID string) (*FundsEscrow, error) {
	var record FundsEscrow
	if err := d.db.Where("hold_id = ?", holdID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (d *Database) UpdateFundsEscrow(record *FundsEscrow) error {
	return d.db.Save(record).Error
}

func (d *Database) HeldFundsForAuction(auctionID string) ([]FundsEscrow, error) {
	var records []FundsEscrow
	if err := d.db.Where("auction_id = ? AND status = ?", auctionID, StatusHeld).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (d *Database) FundsForAuction(auctionID string) ([]FundsEscrow, error) {
	var records []FundsEscrow
	if err := d.db.Where("auction_id = ?", auctionID).Order("created_at").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
