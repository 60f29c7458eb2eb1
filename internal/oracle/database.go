package oracle

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

// UpsertBinding registers a feed binding, overwriting any existing binding
// for the same asset kind.
func (d *Database) UpsertBinding(binding *PriceFeedBinding) error {
	var existing PriceFeedBinding
	err := d.db.Where("asset_kind = ?", binding.AssetKind).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(binding).Error
	}
	if err != nil {
		return err
	}
	existing.Source = binding.Source
	existing.Decimals = binding.Decimals
	existing.ToleranceSec = binding.ToleranceSec
	return d.db.Save(&existing).Error
}

func (d *Database) GetBinding(assetKind string) (*PriceFeedBinding, error) {
	var binding PriceFeedBinding
	if err := d.db.Where("asset_kind = ?", assetKind).First(&binding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &binding, nil
}

func (d *Database) ListBindings() ([]PriceFeedBinding, error) {
	var bindings []PriceFeedBinding
	if err := d.db.Order("asset_kind").Find(&bindings).Error; err != nil {
		return nil, err
	}
	return bindings, nil
}

func (d *Database) CreateRound(round *FeedRound) error {
	return d.db.Create(round).Error
}

// LatestRound returns the most recent reading posted by a source, or nil if
// the source has never posted.
func (d *Database) LatestRound(source string) (*FeedRound, error) {
	var round FeedRound
	if err := d.db.Where("source = ?", source).Order("posted_at DESC, id DESC").First(&round).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &round, nil
}
