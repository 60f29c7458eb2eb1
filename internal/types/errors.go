package types

import "errors"

// Domain errors returned by the auction engine. Every failed operation aborts
// with one of these; callers see the matching machine-readable code in the
// API response and no partial state is ever left behind.
var (
	// Bidding
	ErrBidTooLow       = errors.New("bid price is not high enough")
	ErrBiddingClosed   = errors.New("auction is not accepting bids")
	ErrAuctionNotFound = errors.New("auction not found")

	// Settlement lifecycle
	ErrAuctionNotYetEnded = errors.New("auction has not yet ended")
	ErrAlreadySettled     = errors.New("auction already settled")

	// Custody
	ErrAssetTransferRejected = errors.New("asset transfer rejected")
	ErrTransferRejected      = errors.New("transfer rejected")

	// Price normalization
	ErrOracleUnavailable  = errors.New("no price feed registered for asset kind")
	ErrStalePrice         = errors.New("price feed reading is stale")
	ErrArithmeticOverflow = errors.New("value conversion overflow")

	// Oracle binding
	ErrLengthMismatch = errors.New("asset kinds and feed sources length mismatch")
)
