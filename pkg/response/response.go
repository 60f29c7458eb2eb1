package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/nft-auction-api/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
)

// Domain error codes
const (
	ErrCodeBidTooLow             = "BID_TOO_LOW"
	ErrCodeBiddingClosed         = "BIDDING_CLOSED"
	ErrCodeAuctionNotYetEnded    = "AUCTION_NOT_YET_ENDED"
	ErrCodeAlreadySettled        = "ALREADY_SETTLED"
	ErrCodeAssetTransferRejected = "ASSET_TRANSFER_REJECTED"
	ErrCodeTransferRejected      = "TRANSFER_REJECTED"
	ErrCodeOracleUnavailable     = "ORACLE_UNAVAILABLE"
	ErrCodeStalePrice            = "STALE_PRICE"
	ErrCodeArithmeticOverflow    = "ARITHMETIC_OVERFLOW"
	ErrCodeLengthMismatch        = "LENGTH_MISMATCH"
)

// domainErrors maps engine sentinel errors to the machine-readable code and
// HTTP status callers observe.
var domainErrors = []struct {
	err    error
	code   string
	status int
}{
	{types.ErrBidTooLow, ErrCodeBidTooLow, http.StatusUnprocessableEntity},
	{types.ErrBiddingClosed, ErrCodeBiddingClosed, http.StatusConflict},
	{types.ErrAuctionNotFound, ErrCodeNotFound, http.StatusNotFound},
	{types.ErrAuctionNotYetEnded, ErrCodeAuctionNotYetEnded, http.StatusConflict},
	{types.ErrAlreadySettled, ErrCodeAlreadySettled, http.StatusConflict},
	{types.ErrAssetTransferRejected, ErrCodeAssetTransferRejected, http.StatusUnprocessableEntity},
	{types.ErrTransferRejected, ErrCodeTransferRejected, http.StatusUnprocessableEntity},
	{types.ErrOracleUnavailable, ErrCodeOracleUnavailable, http.StatusServiceUnavailable},
	{types.ErrStalePrice, ErrCodeStalePrice, http.StatusServiceUnavailable},
	{types.ErrArithmeticOverflow, ErrCodeArithmeticOverflow, http.StatusUnprocessableEntity},
	{types.ErrLengthMismatch, ErrCodeLengthMismatch, http.StatusBadRequest},
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	for _, mapping := range domainErrors {
		if errors.Is(err, mapping.err) {
			c.JSON(mapping.status, Response{
				Success: false,
				Error: &Error{
					Code:    mapping.code,
					Message: err.Error(),
				},
			})
			return
		}
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeNotFound,
			Message: message,
		},
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeBadRequest,
			Message: message,
		},
	})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeUnauthorized,
			Message: message,
		},
	})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeForbidden,
			Message: message,
		},
	})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeInternalError,
			Message: message,
		},
	})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error: &Error{
			Code:    ErrCodeDuplicateResource,
			Message: message,
		},
	})
}
