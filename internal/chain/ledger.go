package chain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/types"
)

// Ledger simulates the settlement substrate the auction engine runs against:
// native balances, fungible token balances with spending allowances, and
// non-fungible assets with owner approvals. It is the only place balances and
// asset ownership are mutated; the escrow service drives it inside its own
// transactions by wrapping the transactional handle in a new Ledger.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// SeedNative credits an account's native balance, creating the account if
// needed. Used by tests and the simulation client to fund participants.
func (l *Ledger) SeedNative(address string, amount decimal.Decimal) error {
	account, err := l.getOrCreateAccount(address)
	if err != nil {
		return err
	}
	account.NativeBalance = account.NativeBalance.Add(amount)
	return l.db.Save(account).Error
}

// MintToken credits a fungible token balance.
func (l *Ledger) MintToken(address, assetKind string, amount decimal.Decimal) error {
	balance, err := l.getOrCreateTokenBalance(address, assetKind)
	if err != nil {
		return err
	}
	balance.Balance = balance.Balance.Add(amount)
	return l.db.Save(balance).Error
}

// MintNFT creates a non-fungible asset owned by the given address.
func (l *Ledger) MintNFT(contract string, tokenID uint64, owner string) error {
	return l.db.Create(&NFT{Contract: contract, TokenID: tokenID, Owner: owner}).Error
}

func (l *Ledger) NativeBalance(address string) (decimal.Decimal, error) {
	var account Account
	if err := l.db.Where("address = ?", address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return account.NativeBalance, nil
}

func (l *Ledger) TokenBalanceOf(address, assetKind string) (decimal.Decimal, error) {
	var balance TokenBalance
	if err := l.db.Where("address = ? AND asset_kind = ?", address, assetKind).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return balance.Balance, nil
}

// TransferNative moves native funds between accounts. Fails with
// ErrTransferRejected when the sender's balance is insufficient.
func (l *Ledger) TransferNative(from, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount", types.ErrTransferRejected)
	}

	sender, err := l.getOrCreateAccount(from)
	if err != nil {
		return err
	}
	if sender.NativeBalance.LessThan(amount) {
		return fmt.Errorf("%w: insufficient native balance for %s", types.ErrTransferRejected, from)
	}

	recipient, err := l.getOrCreateAccount(to)
	if err != nil {
		return err
	}

	sender.NativeBalance = sender.NativeBalance.Sub(amount)
	recipient.NativeBalance = recipient.NativeBalance.Add(amount)

	if err := l.db.Save(sender).Error; err != nil {
		return err
	}
	return l.db.Save(recipient).Error
}

// ApproveToken grants a spender the right to pull up to amount of the
// owner's tokens. Overwrites any previous allowance for the same triple.
func (l *Ledger) ApproveToken(owner, spender, assetKind string, amount decimal.Decimal) error {
	var allowance TokenAllowance
	err := l.db.Where("owner = ? AND spender = ? AND asset_kind = ?", owner, spender, assetKind).
		First(&allowance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.db.Create(&TokenAllowance{
			Owner:     owner,
			Spender:   spender,
			AssetKind: assetKind,
			Amount:    amount,
		}).Error
	}
	if err != nil {
		return err
	}
	allowance.Amount = amount
	return l.db.Save(&allowance).Error
}

func (l *Ledger) TokenAllowanceOf(owner, spender, assetKind string) (decimal.Decimal, error) {
	var allowance TokenAllowance
	if err := l.db.Where("owner = ? AND spender = ? AND asset_kind = ?", owner, spender, assetKind).
		First(&allowance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return allowance.Amount, nil
}

// TransferToken moves tokens from the caller's own balance.
func (l *Ledger) TransferToken(assetKind, from, to string, amount decimal.Decimal) error {
	return l.moveToken(assetKind, from, to, amount)
}

// TransferTokenFrom moves tokens on behalf of the owner, consuming the
// spender's allowance. Fails with ErrTransferRejected when the allowance or
// the owner's balance does not cover the amount.
func (l *Ledger) TransferTokenFrom(assetKind, owner, spender, to string, amount decimal.Decimal) error {
	var allowance TokenAllowance
	err := l.db.Where("owner = ? AND spender = ? AND asset_kind = ?", owner, spender, assetKind).
		First(&allowance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && allowance.Amount.LessThan(amount)) {
		return fmt.Errorf("%w: insufficient allowance for spender %s", types.ErrTransferRejected, spender)
	}
	if err != nil {
		return err
	}

	if err := l.moveToken(assetKind, owner, to, amount); err != nil {
		return err
	}

	allowance.Amount = allowance.Amount.Sub(amount)
	return l.db.Save(&allowance).Error
}

func (l *Ledger) moveToken(assetKind, from, to string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: non-positive amount", types.ErrTransferRejected)
	}

	source, err := l.getOrCreateTokenBalance(from, assetKind)
	if err != nil {
		return err
	}
	if source.Balance.LessThan(amount) {
		return fmt.Errorf("%w: insufficient %s balance for %s", types.ErrTransferRejected, assetKind, from)
	}

	destination, err := l.getOrCreateTokenBalance(to, assetKind)
	if err != nil {
		return err
	}

	source.Balance = source.Balance.Sub(amount)
	destination.Balance = destination.Balance.Add(amount)

	if err := l.db.Save(source).Error; err != nil {
		return err
	}
	return l.db.Save(destination).Error
}

func (l *Ledger) NFTOwner(contract string, tokenID uint64) (string, error) {
	var nft NFT
	if err := l.db.Where("contract = ? AND token_id = ?", contract, tokenID).First(&nft).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: unknown asset %s/%d", types.ErrTransferRejected, contract, tokenID)
		}
		return "", err
	}
	return nft.Owner, nil
}

// ApproveNFT lets the asset owner authorize another account to transfer it.
func (l *Ledger) ApproveNFT(contract string, tokenID uint64, owner, approved string) error {
	var nft NFT
	if err := l.db.Where("contract = ? AND token_id = ?", contract, tokenID).First(&nft).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: unknown asset %s/%d", types.ErrTransferRejected, contract, tokenID)
		}
		return err
	}
	if nft.Owner != owner {
		return fmt.Errorf("%w: %s is not the owner of %s/%d", types.ErrTransferRejected, owner, contract, tokenID)
	}
	nft.Approved = approved
	return l.db.Save(&nft).Error
}

// TransferNFTFrom moves the asset to a new owner. The spender must be the
// current owner or the approved account; the approval is cleared on transfer.
func (l *Ledger) TransferNFTFrom(contract string, tokenID uint64, spender, to string) error {
	var nft NFT
	if err := l.db.Where("contract = ? AND token_id = ?", contract, tokenID).First(&nft).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: unknown asset %s/%d", types.ErrTransferRejected, contract, tokenID)
		}
		return err
	}
	if nft.Owner != spender && nft.Approved != spender {
		return fmt.Errorf("%w: %s is neither owner nor approved for %s/%d",
			types.ErrTransferRejected, spender, contract, tokenID)
	}
	nft.Owner = to
	nft.Approved = ""
	return l.db.Save(&nft).Error
}

func (l *Ledger) getOrCreateAccount(address string) (*Account, error) {
	var account Account
	err := l.db.Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = Account{Address: address, NativeBalance: decimal.Zero}
		if err := l.db.Create(&account).Error; err != nil {
			return nil, err
		}
		return &account, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (l *Ledger) getOrCreateTokenBalance(address, assetKind string) (*TokenBalance, error) {
	var balance TokenBalance
	err := l.db.Where("address = ? AND asset_kind = ?", address, assetKind).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		balance = TokenBalance{Address: address, AssetKind: assetKind, Balance: decimal.Zero}
		if err := l.db.Create(&balance).Error; err != nil {
			return nil, err
		}
		return &balance, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}
