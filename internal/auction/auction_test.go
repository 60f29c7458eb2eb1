package auction

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/nft-auction-api/internal/chain"
	"github.com/ksred/nft-auction-api/internal/escrow"
	"github.com/ksred/nft-auction-api/internal/events"
	"github.com/ksred/nft-auction-api/internal/oracle"
	"github.com/ksred/nft-auction-api/internal/types"
)

const testContract = "punk"

type testFixture struct {
	gormDB  *gorm.DB
	service *Service
	escrow  *escrow.Service
	oracle  *oracle.Service
	events  *events.Service
	ledger  *chain.Ledger
}

// newTestFixture wires the full bidding stack over an in-memory database:
// native priced at 2000 per unit, USDC pegged at 1, both at 8 feed decimals.
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
		&Auction{}, &Bid{},
	))

	eventService := events.NewService(db)
	escrowService := escrow.NewService(db)
	oracleService := oracle.NewService(db, time.Hour)

	require.NoError(t, oracleService.RegisterFeeds(
		[]string{types.NativeAssetKind, "USDC"},
		[]string{"native-usd", "usdc-usd"},
	))
	require.NoError(t, oracleService.PostRound("native-usd", decimal.NewFromInt(200000000000)))
	require.NoError(t, oracleService.PostRound("usdc-usd", decimal.NewFromInt(100000000)))

	return &testFixture{
		gormDB:  db,
		service: NewService(db, escrowService, oracleService, eventService),
		escrow:  escrowService,
		oracle:  oracleService,
		events:  eventService,
		ledger:  chain.NewLedger(db),
	}
}

// openAuction escrows a fresh asset for the seller and opens an active
// auction around it.
func (f *testFixture) openAuction(t *testing.T, seller string, tokenID uint64, reservePrice decimal.Decimal, endsIn time.Duration) string {
	t.Helper()

	require.NoError(t, f.ledger.MintNFT(testContract, tokenID, seller))
	require.NoError(t, f.ledger.ApproveNFT(testContract, tokenID, seller, escrow.VaultAddress))

	auctionID := uuid.New().String()
	require.NoError(t, f.escrow.HoldAsset(auctionID, testContract, tokenID, seller))

	now := time.Now()
	require.NoError(t, f.service.db.CreateAuction(&Auction{
		AuctionID:     auctionID,
		Seller:        seller,
		AssetContract: testContract,
		AssetID:       tokenID,
		ReservePrice:  reservePrice,
		StartTime:     now,
		EndTime:       now.Add(endsIn),
		State:         types.AuctionStateActive,
		HighestBid:    decimal.Zero,
	}))
	return auctionID
}

// fundBidder gives a bidder native and USDC balances with the vault approved.
func (f *testFixture) fundBidder(t *testing.T, bidder string) {
	t.Helper()
	require.NoError(t, f.ledger.SeedNative(bidder, decimal.NewFromInt(1000)))
	require.NoError(t, f.ledger.MintToken(bidder, "USDC", decimal.NewFromInt(1000)))
	require.NoError(t, f.ledger.ApproveToken(bidder, escrow.VaultAddress, "USDC", decimal.NewFromInt(1000)))
}

func TestPlaceBidRanking(t *testing.T) {
	f := newTestFixture(t)
	f.fundBidder(t, "carol")
	f.fundBidder(t, "dave")
	auctionID := f.openAuction(t, "seller", 1, decimal.NewFromInt(10), time.Hour)

	// 0.0025 native normalizes to 5, below the reserve of 10.
	_, err := f.service.PlaceBid(auctionID, "carol", types.NativeAssetKind,
		decimal.RequireFromString("0.0025"), decimal.RequireFromString("0.0025"))
	require.ErrorIs(t, err, types.ErrBidTooLow)

	// The rejected bid left no trace in escrow or on the ledger.
	held, err := f.escrow.HeldFunds(auctionID)
	require.NoError(t, err)
	require.Empty(t, held)
	carolBalance, err := f.ledger.NativeBalance("carol")
	require.NoError(t, err)
	require.True(t, carolBalance.Equal(decimal.NewFromInt(1000)))

	// 12 USDC normalizes to 12 and takes the lead.
	first, err := f.service.PlaceBid(auctionID, "carol", "USDC",
		decimal.NewFromInt(12), decimal.Zero)
	require.NoError(t, err)
	require.True(t, first.NormalizedValue.Equal(decimal.NewFromInt(12)))
	require.Equal(t, types.BidStateLeading, first.Status)

	// 0.01 native normalizes to 20 and supersedes it.
	second, err := f.service.PlaceBid(auctionID, "dave", types.NativeAssetKind,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	require.True(t, second.NormalizedValue.Equal(decimal.NewFromInt(20)))

	bids, err := f.service.GetBids(auctionID)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	leading, err := f.service.db.GetLeadingBid(auctionID)
	require.NoError(t, err)
	require.Equal(t, "dave", leading.Bidder)

	outbid, err := f.service.db.GetOutbidBidsForAuction(auctionID)
	require.NoError(t, err)
	require.Len(t, outbid, 1)
	require.Equal(t, "carol", outbid[0].Bidder)

	// Matching the highest normalized value is not enough.
	_, err = f.service.PlaceBid(auctionID, "carol", "USDC",
		decimal.NewFromInt(20), decimal.Zero)
	require.ErrorIs(t, err, types.ErrBidTooLow)

	snapshot, err := f.service.GetSnapshot(auctionID)
	require.NoError(t, err)
	require.Equal(t, "dave", snapshot.HighestBidder)
	require.True(t, snapshot.HighestBid.Equal(decimal.NewFromInt(20)))
}

func TestPlaceBidOnUnknownAuction(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.PlaceBid(uuid.New().String(), "carol", "USDC",
		decimal.NewFromInt(12), decimal.Zero)
	require.ErrorIs(t, err, types.ErrAuctionNotFound)
}

func TestPlaceBidAfterEndTime(t *testing.T) {
	f := newTestFixture(t)
	f.fundBidder(t, "carol")
	auctionID := f.openAuction(t, "seller", 1, decimal.NewFromInt(10), time.Hour)

	f.service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := f.service.PlaceBid(auctionID, "carol", "USDC",
		decimal.NewFromInt(12), decimal.Zero)
	require.ErrorIs(t, err, types.ErrBiddingClosed)
}

func TestPlaceBidWithoutPriceFeed(t *testing.T) {
	f := newTestFixture(t)
	f.fundBidder(t, "carol")
	auctionID := f.openAuction(t, "seller", 1, decimal.NewFromInt(10), time.Hour)

	_, err := f.service.PlaceBid(auctionID, "carol", "DOGE",
		decimal.NewFromInt(1000), decimal.Zero)
	require.ErrorIs(t, err, types.ErrOracleUnavailable)

	held, err := f.escrow.HeldFunds(auctionID)
	require.NoError(t, err)
	require.Empty(t, held)
}

func TestEndAuctionBeforeEndTime(t *testing.T) {
	f := newTestFixture(t)
	auctionID := f.openAuction(t, "seller", 1, decimal.NewFromInt(10), time.Hour)

	_, err := f.service.EndAuction(auctionID)
	require.ErrorIs(t, err, types.ErrAuctionNotYetEnded)
}

func TestEndAuctionSettlement(t *testing.T) {
	f := newTestFixture(t)
	f.fundBidder(t, "carol")
	f.fundBidder(t, "dave")
	auctionID := f.openAuction(t, "seller", 1, decimal.NewFromInt(10), time.Hour)

	_, err := f.service.PlaceBid(auctionID, "carol", "USDC",
		decimal.NewFromInt(12), decimal.Zero)
	require.NoError(t, err)
	_, err = f.service.PlaceBid(auctionID, "dave", types.NativeAssetKind,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))
	require.NoError(t, err)

	f.service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	snapshot, err := f.service.EndAuction(auctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionStateSettled, snapshot.State)
	require.Equal(t, "dave", snapshot.HighestBidder)

	// The asset went to the winner, the winning funds to the seller.
	owner, err := f.ledger.NFTOwner(testContract, 1)
	require.NoError(t, err)
	require.Equal(t, "dave", owner)

	sellerBalance, err := f.ledger.NativeBalance("seller")
	require.NoError(t, err)
	require.True(t, sellerBalance.Equal(decimal.RequireFromString("0.01")))

	// The superseded bid was refunded during settlement.
	carolBalance, err := f.ledger.TokenBalanceOf("carol", "USDC")
	require.NoError(t, err)
	require.True(t, carolBalance.Equal(decimal.NewFromInt(1000)))

	bids, err := f.service.GetBids(auctionID)
	require.NoError(t, err)
	for _, bid := range bids {
		switch bid.Bidder {
		case "dave":
			require.Equal(t, types.BidStateWon, bid.Status)
		case "carol":
			require.Equal(t, types.BidStateRefunded, bid.Status)
		}
	}

	// Settlement runs exactly once.
	_, err = f.service.EndAuction(auctionID)
	require.ErrorIs(t, err, types.ErrAlreadySettled)

	recorded, err := f.events.ForAuction(auctionID)
	require.NoError(t, err)
	var endedCount int
	for _, event := range recorded {
		if event.Type == events.TypeAuctionEnded {
			endedCount++
		}
	}
	require.Equal(t, 1, endedCount)
}

func TestEndAuctionWithoutBids(t *testing.T) {
	f := newTestFixture(t)
	auctionID := f.openAuction(t, "seller", 1, decimal.NewFromInt(10), time.Hour)

	f.service.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	snapshot, err := f.service.EndAuction(auctionID)
	require.NoError(t, err)
	require.Equal(t, types.AuctionStateSettled, snapshot.State)
	require.Empty(t, snapshot.HighestBidder)

	// The asset returned to the seller.
	owner, err := f.ledger.NFTOwner(testContract, 1)
	require.NoError(t, err)
	require.Equal(t, "seller", owner)
}

func TestEndUnknownAuction(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.service.EndAuction(uuid.New().String())
	require.ErrorIs(t, err, types.ErrAuctionNotFound)
}
