package v1

import (
	"github.com/gin-gonic/gin"
	ierr "github.com/tokenmint/ledger/internal/errors"
)

// abort records err on the gin context and lets middleware.ErrorHandler
// translate it into the uniform {error: string} response (spec.md §7).
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
}

// respondError is used by handlers that need to reply inline rather than
// relying on the error middleware (e.g. outside its chain in tests).
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ierr.ErrorResponse{Error: message})
}
