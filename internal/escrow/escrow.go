package escrow

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/types"
)

// VaultAddress is the ledger account holding everything in custody.
const VaultAddress = "escrow-vault"

// Service owns custody of auctioned assets and pending bid funds. It is the
// only component that moves either; every hold and release runs inside one
// database transaction together with the ledger movement, so a failed call
// leaves no partial state.
type Service struct {
	gormDB *gorm.DB
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{gormDB: gormDB}
}

// WithTx binds the service to an in-flight transaction so custody moves can
// join a caller's atomic operation. Inner Transaction calls become
// savepoints on the caller's transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{gormDB: tx}
}

// HoldAsset moves the auctioned asset into custody. The caller must be the
// verified current owner and must have approved the vault for the transfer.
func (s *Service) HoldAsset(auctionID, contract string, tokenID uint64, from string) error {
	logger := log.With().
		Str("auction_id", auctionID).
		Str("service", "escrow").
		Logger()

	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		ledger := chain.NewLedger(tx)

		owner, err := ledger.NFTOwner(contract, tokenID)
		if err != nil {
			return err
		}
		if owner != from {
			return fmt.Errorf("%w: %s is not the owner of %s/%d", types.ErrTransferRejected, from, contract, tokenID)
		}

		if err := ledger.TransferNFTFrom(contract, tokenID, VaultAddress, VaultAddress); err != nil {
			return err
		}

		return NewDatabase(tx).CreateAssetEscrow(&AssetEscrow{
			AuctionID: auctionID,
			Contract:  contract,
			TokenID:   tokenID,
			Seller:    from,
			Status:    StatusHeld,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to take asset into custody")
		return err
	}

	logger.Info().Str("contract", contract).Uint64("token_id", tokenID).Msg("asset taken into custody")
	return nil
}

// HoldFunds moves a bid's funds into custody and returns the hold id. For the
// native asset the attached value must equal the amount exactly; for token
// kinds the bidder must have pre-approved the vault for at least the amount.
func (s *Service) HoldFunds(auctionID, bidder, assetKind string, amount, attachedValue decimal.Decimal) (string, error) {
	holdID := uuid.New().String()

	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		ledger := chain.NewLedger(tx)

		if types.IsNative(assetKind) {
			if !attachedValue.Equal(amount) {
				return fmt.Errorf("%w: attached value %s does not match bid amount %s",
					types.ErrTransferRejected, attachedValue, amount)
			}
			if err := ledger.TransferNative(bidder, VaultAddress, amount); err != nil {
				return err
			}
		} else {
			if err := ledger.TransferTokenFrom(assetKind, bidder, VaultAddress, VaultAddress, amount); err != nil {
				return err
			}
		}

		return NewDatabase(tx).CreateFundsEscrow(&FundsEscrow{
			HoldID:    holdID,
			AuctionID: auctionID,
			Bidder:    bidder,
			AssetKind: assetKind,
			Amount:    amount,
			Status:    StatusHeld,
		})
	})
	if err != nil {
		return "", err
	}

	log.Info().
		Str("auction_id", auctionID).
		Str("hold_id", holdID).
		Str("bidder", bidder).
		Str("asset_kind", assetKind).
		Str("amount", amount.String()).
		Str("service", "escrow").
		Msg("bid funds taken into custody")
	return holdID, nil
}

// ReleaseAssetTo releases the escrowed asset to the recipient. A no-op after
// the first successful release for the auction.
func (s *Service) ReleaseAssetTo(auctionID, recipient string) error {
	return s.gormDB.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		record, err := db.GetAssetEscrow(auctionID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: no asset in custody for auction %s", types.ErrTransferRejected, auctionID)
		}
		if record.Status != StatusHeld {
			return nil
		}

		if err := chain.NewLedger(tx).TransferNFTFrom(record.Contract, record.TokenID, VaultAddress, recipient); err != nil {
			return err
		}

		record.Status = StatusReleased
		record.ReleasedTo = recipient
		return db.UpdateAssetEscrow(record)
	})
}

// ReleaseFundsTo releases a specific hold to the recipient, typically the
// winning bid's funds to the seller. A no-op if the hold already left HELD.
func (s *Service) ReleaseFundsTo(holdID, recipient string) error {
	return s.settleHold(holdID, recipient, StatusReleased)
}

// RefundFunds returns a held bid's funds to its bidder. A no-op if the hold
// already left HELD.
func (s *Service) RefundFunds(holdID string) error {
	return s.settleHold(holdID, "", StatusRefunded)
}

func (s *Service) settleHold(holdID, recipient, finalStatus string) error {
	return s.gormDB.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		record, err := db.GetFundsEscrow(holdID)
		if err != nil {
			return err
		}
		if record == nil {
			return fmt.Errorf("%w: unknown hold %s", types.ErrTransferRejected, holdID)
		}
		if record.Status != StatusHeld {
			return nil
		}

		to := recipient
		if finalStatus == StatusRefunded {
			to = record.Bidder
		}

		ledger := chain.NewLedger(tx)
		if types.IsNative(record.AssetKind) {
			err = ledger.TransferNative(VaultAddress, to, record.Amount)
		} else {
			err = ledger.TransferToken(record.AssetKind, VaultAddress, to, record.Amount)
		}
		if err != nil {
			return err
		}

		record.Status = finalStatus
		record.ReleasedTo = to
		if err := db.UpdateFundsEscrow(record); err != nil {
			return err
		}

		log.Info().
			Str("hold_id", holdID).
			Str("auction_id", record.AuctionID).
			Str("recipient", to).
			Str("status", finalStatus).
			Str("service", "escrow").
			Msg("escrowed funds released")
		return nil
	})
}

// Hold returns a funds hold by id, or nil.
func (s *Service) Hold(holdID string) (*FundsEscrow, error) {
	return NewDatabase(s.gormDB).GetFundsEscrow(holdID)
}

// AssetRecord returns the asset custody record for an auction, or nil.
func (s *Service) AssetRecord(auctionID string) (*AssetEscrow, error) {
	return NewDatabase(s.gormDB).GetAssetEscrow(auctionID)
}

// HeldFunds lists the holds still in custody for an auction.
func (s *Service) HeldFunds(auctionID string) ([]FundsEscrow, error) {
	return NewDatabase(s.gormDB).HeldFundsForAuction(auctionID)
}
