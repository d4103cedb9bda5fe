package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/tokenmint/ledger/internal/errors"
)

// ErrorHandler translates the last error attached to the gin context into
// the uniform {error: string} response shape (spec.md §7).
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, display := classify(err)

		resp := ierr.ErrorResponse{Error: display}
		var richErr *ierr.Error
		if ierr.As(err, &richErr) && ierr.Is(richErr, ierr.ErrInsufficientTokens) {
			requested, available := richErr.Details()
			resp.Requested = &requested
			resp.Available = &available
		}

		c.JSON(status, resp)
	}
}

// classify maps a ledger error to an HTTP status and a client-safe message,
// following spec.md §7's error-kind table. Internal failures never leak
// stack traces or raw payloads.
func classify(err error) (int, string) {
	switch {
	case ierr.Is(err, ierr.ErrBadSignature):
		return http.StatusBadRequest, "bad signature"
	case ierr.Is(err, ierr.ErrDuplicateEvent), ierr.Is(err, ierr.ErrAlreadyCredited):
		return http.StatusOK, "already processed"
	case ierr.Is(err, ierr.ErrUnresolvedUser):
		return http.StatusOK, "no action taken"
	case ierr.Is(err, ierr.ErrInsufficientTokens):
		return http.StatusBadRequest, "insufficient token balance"
	case ierr.Is(err, ierr.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case ierr.Is(err, ierr.ErrNotFound):
		return http.StatusNotFound, "not found"
	case ierr.Is(err, ierr.ErrCatalogMissing):
		return http.StatusInternalServerError, "catalog entry missing"
	case ierr.Is(err, ierr.ErrTransientStorage), ierr.Is(err, ierr.ErrTransientExternal):
		return http.StatusInternalServerError, "temporary failure, please retry"
	default:
		return http.StatusInternalServerError, "an unexpected error occurred"
	}
}
