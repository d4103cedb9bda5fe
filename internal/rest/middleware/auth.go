package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tokenmint/ledger/internal/config"
	"github.com/tokenmint/ledger/internal/types"
)

const headerAuthorization = "Authorization"

// BearerAuthMiddleware authenticates the purchase, cancel, balance, and
// cron-trigger endpoints against a single shared secret (spec.md §6 leaves
// the auth scheme to the transport; DESIGN.md's Open Question decision picks
// a bearer token, the simplest option consistent with "pick one and
// document").
func BearerAuthMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(headerAuthorization)
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization header"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != cfg.Auth.BearerToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserClaimMiddleware extracts the authenticated user_id and email claims
// carried as request headers (set by the UI collaborator's own auth layer,
// out of this core's scope per spec.md §1) and attaches them to the request
// context. Handlers use both to provision the User row on first
// authenticated interaction (spec.md §3).
func UserClaimMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if userID := c.GetHeader("X-User-Id"); userID != "" {
			ctx = types.WithUserID(ctx, userID)
		}
		if email := c.GetHeader("X-User-Email"); email != "" {
			ctx = types.WithUserEmail(ctx, email)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
