package escrow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/types"
)

func newTestService(t *testing.T) (*Service, *chain.Ledger) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&chain.Account{}, &chain.TokenBalance{}, &chain.TokenAllowance{}, &chain.NFT{},
		&AssetEscrow{}, &FundsEscrow{},
	))

	return NewService(db), chain.NewLedger(db)
}

func TestHoldAsset(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.MintNFT("punk", 7, "seller"))
	require.NoError(t, ledger.ApproveNFT("punk", 7, "seller", VaultAddress))

	require.NoError(t, service.HoldAsset("auction-1", "punk", 7, "seller"))

	owner, err := ledger.NFTOwner("punk", 7)
	require.NoError(t, err)
	require.Equal(t, VaultAddress, owner)

	record, err := service.AssetRecord("auction-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, StatusHeld, record.Status)
	require.Equal(t, "seller", record.Seller)
}

func TestHoldAssetRejectsNonOwner(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.MintNFT("punk", 7, "seller"))
	require.NoError(t, ledger.ApproveNFT("punk", 7, "seller", VaultAddress))

	err := service.HoldAsset("auction-1", "punk", 7, "mallory")
	require.ErrorIs(t, err, types.ErrTransferRejected)

	// Custody never happened.
	owner, err := ledger.NFTOwner("punk", 7)
	require.NoError(t, err)
	require.Equal(t, "seller", owner)

	record, err := service.AssetRecord("auction-1")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestHoldAssetRequiresApproval(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.MintNFT("punk", 7, "seller"))

	err := service.HoldAsset("auction-1", "punk", 7, "seller")
	require.ErrorIs(t, err, types.ErrTransferRejected)
}

func TestHoldNativeFunds(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.SeedNative("bidder", decimal.NewFromInt(100)))

	// The attached value must match the bid amount exactly.
	_, err := service.HoldFunds("auction-1", "bidder", types.NativeAssetKind,
		decimal.NewFromInt(40), decimal.NewFromInt(39))
	require.ErrorIs(t, err, types.ErrTransferRejected)

	holdID, err := service.HoldFunds("auction-1", "bidder", types.NativeAssetKind,
		decimal.NewFromInt(40), decimal.NewFromInt(40))
	require.NoError(t, err)
	require.NotEmpty(t, holdID)

	bidderBalance, err := ledger.NativeBalance("bidder")
	require.NoError(t, err)
	require.True(t, bidderBalance.Equal(decimal.NewFromInt(60)))

	vaultBalance, err := ledger.NativeBalance(VaultAddress)
	require.NoError(t, err)
	require.True(t, vaultBalance.Equal(decimal.NewFromInt(40)))
}

func TestHoldTokenFundsRequiresAllowance(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.MintToken("bidder", "USDC", decimal.NewFromInt(100)))

	_, err := service.HoldFunds("auction-1", "bidder", "USDC",
		decimal.NewFromInt(40), decimal.Zero)
	require.ErrorIs(t, err, types.ErrTransferRejected)

	require.NoError(t, ledger.ApproveToken("bidder", VaultAddress, "USDC", decimal.NewFromInt(40)))

	holdID, err := service.HoldFunds("auction-1", "bidder", "USDC",
		decimal.NewFromInt(40), decimal.Zero)
	require.NoError(t, err)

	hold, err := service.Hold(holdID)
	require.NoError(t, err)
	require.Equal(t, StatusHeld, hold.Status)

	vaultBalance, err := ledger.TokenBalanceOf(VaultAddress, "USDC")
	require.NoError(t, err)
	require.True(t, vaultBalance.Equal(decimal.NewFromInt(40)))
}

func TestReleaseFundsIsIdempotent(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.SeedNative("bidder", decimal.NewFromInt(100)))
	holdID, err := service.HoldFunds("auction-1", "bidder", types.NativeAssetKind,
		decimal.NewFromInt(40), decimal.NewFromInt(40))
	require.NoError(t, err)

	require.NoError(t, service.ReleaseFundsTo(holdID, "seller"))
	// Releasing again, or refunding after release, must not move funds twice.
	require.NoError(t, service.ReleaseFundsTo(holdID, "seller"))
	require.NoError(t, service.RefundFunds(holdID))

	sellerBalance, err := ledger.NativeBalance("seller")
	require.NoError(t, err)
	require.True(t, sellerBalance.Equal(decimal.NewFromInt(40)))

	bidderBalance, err := ledger.NativeBalance("bidder")
	require.NoError(t, err)
	require.True(t, bidderBalance.Equal(decimal.NewFromInt(60)))

	hold, err := service.Hold(holdID)
	require.NoError(t, err)
	require.Equal(t, StatusReleased, hold.Status)
	require.Equal(t, "seller", hold.ReleasedTo)
}

func TestRefundFunds(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.MintToken("bidder", "USDC", decimal.NewFromInt(100)))
	require.NoError(t, ledger.ApproveToken("bidder", VaultAddress, "USDC", decimal.NewFromInt(100)))

	holdID, err := service.HoldFunds("auction-1", "bidder", "USDC",
		decimal.NewFromInt(25), decimal.Zero)
	require.NoError(t, err)

	require.NoError(t, service.RefundFunds(holdID))
	require.NoError(t, service.RefundFunds(holdID))

	bidderBalance, err := ledger.TokenBalanceOf("bidder", "USDC")
	require.NoError(t, err)
	require.True(t, bidderBalance.Equal(decimal.NewFromInt(100)))

	hold, err := service.Hold(holdID)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, hold.Status)
	require.Equal(t, "bidder", hold.ReleasedTo)
}

func TestReleaseAssetIsIdempotent(t *testing.T) {
	service, ledger := newTestService(t)

	require.NoError(t, ledger.MintNFT("punk", 7, "seller"))
	require.NoError(t, ledger.ApproveNFT("punk", 7, "seller", VaultAddress))
	require.NoError(t, service.HoldAsset("auction-1", "punk", 7, "seller"))

	require.NoError(t, service.ReleaseAssetTo("auction-1", "winner"))
	require.NoError(t, service.ReleaseAssetTo("auction-1", "someone-else"))

	owner, err := ledger.NFTOwner("punk", 7)
	require.NoError(t, err)
	require.Equal(t, "winner", owner)

	record, err := service.AssetRecord("auction-1")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, record.Status)
	require.Equal(t, "winner", record.ReleasedTo)
}
