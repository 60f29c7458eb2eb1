package chain

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ksred/nft-auction-api/pkg/response"
)

// GinHandlers contains HTTP handlers for ledger administration: seeding
// balances and assets, and granting approvals. These stand in for wallets
// acting directly against the settlement substrate.
type GinHandlers struct {
	ledger *Ledger
}

func NewGinHandlers(ledger *Ledger) *GinHandlers {
	return &GinHandlers{ledger: ledger}
}

type seedNativeRequest struct {
	Address string          `json:"address" binding:"required"`
	Amount  decimal.Decimal `json:"amount" binding:"required"`
}

type mintTokenRequest struct {
	Address   string          `json:"address" binding:"required"`
	AssetKind string          `json:"asset_kind" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

type mintNFTRequest struct {
	Contract string `json:"contract" binding:"required"`
	TokenID  uint64 `json:"token_id"`
	Owner    string `json:"owner" binding:"required"`
}

type approveNFTRequest struct {
	Contract string `json:"contract" binding:"required"`
	TokenID  uint64 `json:"token_id"`
	Approved string `json:"approved" binding:"required"`
}

type approveTokenRequest struct {
	Spender   string          `json:"spender" binding:"required"`
	AssetKind string          `json:"asset_kind" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

// SeedNativeHandler handles POST requests to credit a native balance
func (h *GinHandlers) SeedNativeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request seedNativeRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		err := h.ledger.SeedNative(request.Address, request.Amount)
		response.Handle(c, gin.H{"address": request.Address}, err)
	}
}

// MintTokenHandler handles POST requests to credit a token balance
func (h *GinHandlers) MintTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request mintTokenRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		err := h.ledger.MintToken(request.Address, request.AssetKind, request.Amount)
		response.Handle(c, gin.H{"address": request.Address, "asset_kind": request.AssetKind}, err)
	}
}

// MintNFTHandler handles POST requests to create a non-fungible asset
func (h *GinHandlers) MintNFTHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request mintNFTRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		err := h.ledger.MintNFT(request.Contract, request.TokenID, request.Owner)
		response.Handle(c, gin.H{"contract": request.Contract, "token_id": request.TokenID}, err)
	}
}

// ApproveNFTHandler handles POST requests for an owner to approve a spender
// for their asset. The owner is the authenticated client.
func (h *GinHandlers) ApproveNFTHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing owner identity")
			return
		}

		var request approveNFTRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		err := h.ledger.ApproveNFT(request.Contract, request.TokenID, owner, request.Approved)
		response.Handle(c, gin.H{"contract": request.Contract, "token_id": request.TokenID}, err)
	}
}

// ApproveTokenHandler handles POST requests for an owner to grant a token
// allowance. The owner is the authenticated client.
func (h *GinHandlers) ApproveTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetString("clientID")
		if owner == "" {
			response.Unauthorized(c, "Missing owner identity")
			return
		}

		var request approveTokenRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		err := h.ledger.ApproveToken(owner, request.Spender, request.AssetKind, request.Amount)
		response.Handle(c, gin.H{"spender": request.Spender, "asset_kind": request.AssetKind}, err)
	}
}

// GetAccountHandler handles GET requests for an account's balances
func (h *GinHandlers) GetAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		native, err := h.ledger.NativeBalance(address)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"address": address, "native_balance": native})
	}
}

// GetNFTHandler handles GET requests for an asset's current owner
func (h *GinHandlers) GetNFTHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := h.ledger.NFTOwner(c.Param("contract"), parseTokenID(c.Param("token_id")))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"owner": owner})
	}
}
