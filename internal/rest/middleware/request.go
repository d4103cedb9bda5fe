package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/types"
)

const headerRequestID = "X-Request-Id"

// RequestIDMiddleware attaches a request ID to the context for log
// correlation, generating one if the caller didn't supply one.
func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(headerRequestID)
	if requestID == "" {
		requestID = types.GenerateUUID()
	}

	ctx := types.WithRequestID(c.Request.Context(), requestID)
	c.Request = c.Request.WithContext(ctx)
	c.Header(headerRequestID, requestID)

	c.Next()
}
