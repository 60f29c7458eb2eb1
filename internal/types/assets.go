package types

// NativeAssetKind identifies the native settlement asset. Fungible token
// asset kinds are arbitrary token identifiers (e.g. "USDC").
const NativeAssetKind = "native"

// IsNative reports whether the asset kind is the native settlement asset.
func IsNative(assetKind string) bool {
	return assetKind == NativeAssetKind
}

// Auction states. Transitions are monotonic: auctions open as ACTIVE and
// settle into SETTLED exactly once. A failed creation persists nothing, so
// CREATED and CANCELLED never surface through the API.
const (
	AuctionStateCreated   = "CREATED"
	AuctionStateActive    = "ACTIVE"
	AuctionStateSettled   = "SETTLED"
	AuctionStateCancelled = "CANCELLED"
)

// Bid states. A bid is LEADING until outbid, then OUTBID (refundable) until
// the refund processor releases its funds. The final leading bid becomes WON.
const (
	BidStateLeading  = "LEADING"
	BidStateOutbid   = "OUTBID"
	BidStateRefunded = "REFUNDED"
	BidStateWon      = "WON"
)
