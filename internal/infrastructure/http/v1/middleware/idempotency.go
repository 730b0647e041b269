package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/infrastructure/http/v1/handlers"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

// IdempotencyKey captures the X-Idempotency-Key header of POST requests.
// The ledger stores the key on the movement it creates, so a retried
// request returns the movement recorded the first time.
func IdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			_ = c.Error(apperror.NewValidation("idempotency key too long").
				WithDetail("max_length", maxIdempotencyKeyLen))
			c.Abort()
			return
		}

		c.Set(handlers.ContextKeyIdempotency, key)
		c.Header(HeaderIdempotencyKey, key)
		c.Next()
	}
}
