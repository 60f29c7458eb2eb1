// Package events records the durable notifications the auction engine emits:
// auction creation, accepted bids, settlement, and refunds. Consumers read
// them back per auction through the API.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	TypeAuctionCreated = "AuctionCreated"
	TypeBidPlaced      = "BidPlaced"
	TypeAuctionEnded   = "AuctionEnded"
	TypeFundsRefunded  = "FundsRefunded"
)

type Event struct {
	gorm.Model `json:"-"`
	EventID    string    `gorm:"uniqueIndex" json:"event_id"`
	AuctionID  string    `gorm:"index" json:"auction_id"`
	Type       string    `json:"type"`
	Payload    string    `json:"payload"`
	EmittedAt  time.Time `json:"emitted_at"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record stores an event with a JSON-encoded payload. Recording is part of
// the operation that emits it, so a failed operation emits nothing.
func (s *Service) Record(tx *gorm.DB, auctionID, eventType string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &Event{
		EventID:   uuid.New().String(),
		AuctionID: auctionID,
		Type:      eventType,
		Payload:   string(encoded),
		EmittedAt: time.Now(),
	}

	db := tx
	if db == nil {
		db = s.db
	}
	if err := db.Create(event).Error; err != nil {
		return err
	}

	log.Debug().
		Str("auction_id", auctionID).
		Str("event", eventType).
		RawJSON("payload", encoded).
		Msg("event recorded")
	return nil
}

// ForAuction returns an auction's events in emission order.
func (s *Service) ForAuction(auctionID string) ([]Event, error) {
	var recorded []Event
	if err := s.db.Where("auction_id = ?", auctionID).Order("id").Find(&recorded).Error; err != nil {
		return nil, err
	}
	return recorded, nil
}
