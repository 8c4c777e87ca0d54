package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/showtime-ledger/pkg/response"
)

const (
	// UserIDHeader carries the caller identity set by the upstream gateway
	UserIDHeader = "X-User-ID"
	// ContextKeyUserID is the gin context key for the caller identity
	ContextKeyUserID = "user_id"
)

// UserID copies X-User-ID into the gin context. Requests without it are
// rejected when required is true.
func UserID(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			if required {
				response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "X-User-ID header is required")
				return
			}
			c.Next()
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// GetUserID extracts the caller identity from gin context
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
