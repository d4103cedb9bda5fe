package errors

import (
	"fmt"

	cockroacherrors "github.com/cockroachdb/errors"
)

// Sentinel errors used to classify failures across the ledger. Handlers and
// REST middleware test against these with errors.Is / errors.As rather than
// matching on Code strings.
var (
	ErrBadSignature       = cockroacherrors.New("webhook signature verification failed")
	ErrDuplicateEvent     = cockroacherrors.New("event already processed")
	ErrAlreadyCredited    = cockroacherrors.New("credit already applied for this invoice")
	ErrUnresolvedUser     = cockroacherrors.New("could not resolve user for event")
	ErrInsufficientTokens = cockroacherrors.New("insufficient token balance")
	ErrTransientStorage   = cockroacherrors.New("transient storage failure")
	ErrTransientExternal  = cockroacherrors.New("transient external call failure")
	ErrCatalogMissing     = cockroacherrors.New("catalog entry missing for plan")
	ErrNotFound           = cockroacherrors.New("resource not found")
	ErrValidation         = cockroacherrors.New("validation error")
	ErrFatal              = cockroacherrors.New("fatal configuration error")
)

// Code is a machine-readable classification surfaced in logs and, through the
// REST error middleware, mapped to an HTTP status.
type Code string

const (
	CodeBadSignature       Code = "bad_signature"
	CodeDuplicateEvent     Code = "duplicate_event"
	CodeUnresolvedUser     Code = "unresolved_user"
	CodeInsufficientTokens Code = "insufficient_tokens"
	CodeTransientStorage   Code = "transient_storage"
	CodeTransientExternal  Code = "transient_external"
	CodeCatalogMissing     Code = "catalog_missing"
	CodeNotFound           Code = "not_found"
	CodeValidation         Code = "validation"
	CodeInternal           Code = "internal"
)

// Error is a rich, ledger-specific error carrying a Code, a human-readable
// message, an optional hint, and the sentinel it should be classified as.
type Error struct {
	code      Code
	message   string
	hint      string
	mark      error
	cause     error
	requested int64
	available int64
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is the sentinel this error was Mark()-ed with.
func (e *Error) Is(target error) bool {
	if e.mark == nil {
		return false
	}
	return cockroacherrors.Is(e.mark, target)
}

// New starts building a rich error.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap builds a rich error around an underlying cause.
func Wrap(cause error, code Code, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{code: code, message: message, cause: cause}
}

// WithHint attaches an operator-facing remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.hint = hint
	return e
}

// Hint returns the attached hint, if any.
func (e *Error) Hint() string { return e.hint }

// WithDetails attaches the requested/available token counts an
// InsufficientTokens error reports to its caller (spec.md §7).
func (e *Error) WithDetails(requested, available int64) *Error {
	e.requested = requested
	e.available = available
	return e
}

// Details returns the requested/available token counts attached by
// WithDetails.
func (e *Error) Details() (requested, available int64) {
	return e.requested, e.available
}

// Mark associates this error with a sentinel for errors.Is matching.
func (e *Error) Mark(sentinel error) *Error {
	e.mark = sentinel
	return e
}

// GetCode returns the machine-readable classification.
func (e *Error) GetCode() Code { return e.code }

// As reports whether err is (or wraps) a *Error and, if so, assigns it to target.
func As(err error, target **Error) bool {
	return cockroacherrors.As(err, target)
}

// Is is a convenience re-export of cockroachdb/errors.Is for callers that
// don't want to import that package directly.
func Is(err, target error) bool {
	return cockroacherrors.Is(err, target)
}
