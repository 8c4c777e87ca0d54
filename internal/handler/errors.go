package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/internal/domain"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/middleware"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
	"go.uber.org/zap"
)

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		response.Unauthorized(c, "invalid webhook signature")
	case errors.Is(err, domain.ErrAmountMismatch):
		response.Error(c, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH", err.Error(), "")
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrInsufficientSeats):
		response.Conflict(c, "INSUFFICIENT_SEATS", err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded):
		response.Conflict(c, "CAPACITY_EXCEEDED", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Conflict(c, "BOOKING_RESOLVED", err.Error())
	case errors.Is(err, domain.ErrTransactionConflict):
		c.Header("Retry-After", "1")
		response.ServiceUnavailable(c, "TRANSACTION_CONFLICT", "Concurrent update, retry the request")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		c.Header("Retry-After", "5")
		response.ServiceUnavailable(c, "GATEWAY_UNAVAILABLE", "Payment gateway unavailable")
	default:
		logger.Get().Error("unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error", "")
	}
}

// currentUser returns the caller identity or writes 401
func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "X-User-ID header is required")
		return "", false
	}
	return userID, true
}
