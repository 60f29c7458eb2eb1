package factory

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/nft-auction-api/internal/auction"
	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/oracle"
	"github.com/ksred/nft-auction-api/internal/types"
)

const testContract = "punk"

type testFixture struct {
	service *Service
	auction *auction.Service
	oracle  *oracle.Service
	events  *events.Service
	ledger  *chain.Ledger
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&chain.Account{}, &chain.TokenBalance{}, &chain.TokenAllowance{}, &chain.NFT{},
		&oracle.PriceFeedBinding{}, &oracle.FeedRound{},
		&escrow.AssetEscrow{}, &escrow.FundsEscrow{},
		&events.Event{},
		&auction.Auction{}, &auction.Bid{},
		&IdempotencyRecord{},
	))

	eventService := events.NewService(db)
	escrowService := escrow.NewService(db)
	oracleService := oracle.NewService(db, time.Hour)
	auctionService := auction.NewService(db, escrowService, oracleService, eventService)

	return &testFixture{
		service: NewService(db, escrowService, oracleService, auctionService, eventService),
		auction: auctionService,
		oracle:  oracleService,
		events:  eventService,
		ledger:  chain.NewLedger(db),
	}
}

func (f *testFixture) mintAndApprove(t *testing.T, seller string, tokenID uint64) {
	t.Helper()
	require.NoError(t, f.ledger.MintNFT(testContract, tokenID, seller))
	require.NoError(t, f.ledger.ApproveNFT(testContract, tokenID, seller, escrow.VaultAddress))
}

func TestCreateAuction(t *testing.T) {
	f := newTestFixture(t)
	f.mintAndApprove(t, "seller", 1)
	f.mintAndApprove(t, "seller", 2)

	first, err := f.service.CreateAuction("seller", time.Hour, decimal.NewFromInt(10),
		testContract, 1, "")
	require.NoError(t, err)
	require.NotEmpty(t, first.AuctionID)
	require.True(t, strings.HasPrefix(first.AuctionAddress, "/api/v1/auctions/"))

	second, err := f.service.CreateAuction("seller", time.Hour, decimal.NewFromInt(10),
		testContract, 2, "")
	require.NoError(t, err)
	require.NotEqual(t, first.AuctionID, second.AuctionID)

	// The asset moved into custody when the auction opened.
	owner, err := f.ledger.NFTOwner(testContract, 1)
	require.NoError(t, err)
	require.Equal(t, escrow.VaultAddress, owner)

	snapshot, err := f.auction.GetSnapshot(first.AuctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionStateActive, snapshot.State)
	require.Equal(t, "seller", snapshot.Seller)

	recorded, err := f.events.ForAuction(first.AuctionID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.Equal(t, events.TypeAuctionCreated, recorded[0].Type)
}

func TestCreateAuctionIdempotency(t *testing.T) {
	f := newTestFixture(t)
	f.mintAndApprove(t, "seller", 1)

	key := uuid.New().String()
	first, err := f.service.CreateAuction("seller", time.Hour, decimal.NewFromInt(10),
		testContract, 1, key)
	require.NoError(t, err)

	// A replay with the same key returns the existing auction without
	// touching the ledger again.
	replay, err := f.service.CreateAuction("seller", time.Hour, decimal.NewFromInt(10),
		testContract, 1, key)
	require.NoError(t, err)
	require.Equal(t, first.AuctionID, replay.AuctionID)

	auctions, err := f.auction.ListAuctions()
	require.NoError(t, err)
	require.Len(t, auctions, 1)
}

func TestCreateAuctionWithoutApproval(t *testing.T) {
	f := newTestFixture(t)
	require.NoError(t, f.ledger.MintNFT(testContract, 1, "seller"))

	_, err := f.service.CreateAuction("seller", time.Hour, decimal.NewFromInt(10),
		testContract, 1, "")
	require.ErrorIs(t, err, types.ErrAssetTransferRejected)

	// Nothing was persisted.
	owner, err := f.ledger.NFTOwner(testContract, 1)
	require.NoError(t, err)
	require.Equal(t, "seller", owner)

	auctions, err := f.auction.ListAuctions()
	require.NoError(t, err)
	require.Empty(t, auctions)
}

func TestCreateAuctionByNonOwner(t *testing.T) {
	f := newTestFixture(t)
	f.mintAndApprove(t, "seller", 1)

	_, err := f.service.CreateAuction("mallory", time.Hour, decimal.NewFromInt(10),
		testContract, 1, "")
	require.ErrorIs(t, err, types.ErrAssetTransferRejected)
}

func TestCreateAuctionRejectsNonPositiveDuration(t *testing.T) {
	f := newTestFixture(t)
	f.mintAndApprove(t, "seller", 1)

	_, err := f.service.CreateAuction("seller", 0, decimal.NewFromInt(10),
		testContract, 1, "")
	require.Error(t, err)
}

func TestAuctionLifecycleThroughFactory(t *testing.T) {
	f := newTestFixture(t)
	f.mintAndApprove(t, "seller", 1)

	require.NoError(t, f.service.SetPriceFeed([]string{"USDC"}, []string{"usdc-usd"}))
	require.NoError(t, f.oracle.PostRound("usdc-usd", decimal.NewFromInt(100000000)))

	require.NoError(t, f.ledger.MintToken("carol", "USDC", decimal.NewFromInt(100)))
	require.NoError(t, f.ledger.ApproveToken("carol", escrow.VaultAddress, "USDC", decimal.NewFromInt(100)))

	created, err := f.service.CreateAuction("seller", 50*time.Millisecond, decimal.NewFromInt(10),
		testContract, 1, "")
	require.NoError(t, err)

	_, err = f.auction.PlaceBid(created.AuctionID, "carol", "USDC",
		decimal.NewFromInt(25), decimal.Zero)
	require.NoError(t, err)

	// Settlement is refused while the auction is still running.
	_, err = f.service.EndAuction(created.AuctionID)
	require.ErrorIs(t, err, types.ErrAuctionNotYetEnded)

	time.Sleep(60 * time.Millisecond)

	snapshot, err := f.service.EndAuction(created.AuctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionStateSettled, snapshot.State)
	require.Equal(t, "carol", snapshot.HighestBidder)

	owner, err := f.ledger.NFTOwner(testContract, 1)
	require.NoError(t, err)
	require.Equal(t, "carol", owner)

	sellerBalance, err := f.ledger.TokenBalanceOf("seller", "USDC")
	require.NoError(t, err)
	require.True(t, sellerBalance.Equal(decimal.NewFromInt(25)))
}
