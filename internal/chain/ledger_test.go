package chain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/nft-auction-api/internal/types"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Account{}, &TokenBalance{}, &TokenAllowance{}, &NFT{}))

	return NewLedger(db)
}

func TestNativeTransfers(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.SeedNative("alice", decimal.NewFromInt(100)))
	require.NoError(t, ledger.TransferNative("alice", "bob", decimal.NewFromInt(30)))

	aliceBalance, err := ledger.NativeBalance("alice")
	require.NoError(t, err)
	require.True(t, aliceBalance.Equal(decimal.NewFromInt(70)))

	bobBalance, err := ledger.NativeBalance("bob")
	require.NoError(t, err)
	require.True(t, bobBalance.Equal(decimal.NewFromInt(30)))

	// Overdrawing fails and leaves both balances untouched.
	err = ledger.TransferNative("alice", "bob", decimal.NewFromInt(1000))
	require.ErrorIs(t, err, types.ErrTransferRejected)

	aliceBalance, err = ledger.NativeBalance("alice")
	require.NoError(t, err)
	require.True(t, aliceBalance.Equal(decimal.NewFromInt(70)))
}

func TestTokenAllowances(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.MintToken("alice", "USDC", decimal.NewFromInt(500)))

	// No approval yet, delegated transfer must fail.
	err := ledger.TransferTokenFrom("USDC", "alice", "vault", "vault", decimal.NewFromInt(100))
	require.ErrorIs(t, err, types.ErrTransferRejected)

	require.NoError(t, ledger.ApproveToken("alice", "vault", "USDC", decimal.NewFromInt(200)))
	require.NoError(t, ledger.TransferTokenFrom("USDC", "alice", "vault", "vault", decimal.NewFromInt(150)))

	remaining, err := ledger.TokenAllowanceOf("alice", "vault", "USDC")
	require.NoError(t, err)
	require.True(t, remaining.Equal(decimal.NewFromInt(50)))

	aliceBalance, err := ledger.TokenBalanceOf("alice", "USDC")
	require.NoError(t, err)
	require.True(t, aliceBalance.Equal(decimal.NewFromInt(350)))

	vaultBalance, err := ledger.TokenBalanceOf("vault", "USDC")
	require.NoError(t, err)
	require.True(t, vaultBalance.Equal(decimal.NewFromInt(150)))

	// The remaining allowance no longer covers this amount.
	err = ledger.TransferTokenFrom("USDC", "alice", "vault", "vault", decimal.NewFromInt(100))
	require.ErrorIs(t, err, types.ErrTransferRejected)
}

func TestNFTCustody(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.MintNFT("punk", 1, "alice"))

	owner, err := ledger.NFTOwner("punk", 1)
	require.NoError(t, err)
	require.Equal(t, "alice", owner)

	// Only the owner can approve.
	err = ledger.ApproveNFT("punk", 1, "mallory", "vault")
	require.ErrorIs(t, err, types.ErrTransferRejected)

	// An unapproved spender cannot move the asset.
	err = ledger.TransferNFTFrom("punk", 1, "vault", "vault")
	require.ErrorIs(t, err, types.ErrTransferRejected)

	require.NoError(t, ledger.ApproveNFT("punk", 1, "alice", "vault"))
	require.NoError(t, ledger.TransferNFTFrom("punk", 1, "vault", "bob"))

	owner, err = ledger.NFTOwner("punk", 1)
	require.NoError(t, err)
	require.Equal(t, "bob", owner)

	// Approval is cleared by the transfer.
	err = ledger.TransferNFTFrom("punk", 1, "vault", "vault")
	require.ErrorIs(t, err, types.ErrTransferRejected)

	_, err = ledger.NFTOwner("punk", 99)
	require.ErrorIs(t, err, types.ErrTransferRejected)
}
