package reminder

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CategoryValidation    = "validation"
	CategoryAuthorization = "authorization"
	CategoryNotFound      = "not_found"
	CategoryUnexpected    = "unexpected"
)

var ErrNotFound = errors.New("reminder dependency not found")

// TriggerError is a request-level failure of the reminder trigger. Channel
// delivery failures never become a TriggerError; they live in the report.
type TriggerError struct {
	Category      string // "validation", "authorization", "not_found", "unexpected"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *TriggerError) Error() string {
	return e.InternalError
}

func (e *TriggerError) Unwrap() error {
	return e.OriginalErr
}

func ValidationError(msg string) *TriggerError {
	return &TriggerError{
		Category:      CategoryValidation,
		StatusCode:    http.StatusBadRequest,
		PublicError:   msg,
		InternalError: msg,
	}
}

func AuthorizationError(origin string) *TriggerError {
	return &TriggerError{
		Category:      CategoryAuthorization,
		StatusCode:    http.StatusUnauthorized,
		PublicError:   "Origin not allowed",
		InternalError: fmt.Sprintf("origin %q is not in the allowed set", origin),
	}
}

// NotFoundError hides which dependency was missing from the caller.
func NotFoundError(what string, orderID int64) *TriggerError {
	return &TriggerError{
		Category:      CategoryNotFound,
		StatusCode:    http.StatusNotFound,
		PublicError:   "Order not found",
		InternalError: fmt.Sprintf("%s not found for order #%d", what, orderID),
		OriginalErr:   ErrNotFound,
	}
}

func UnexpectedError(err error) *TriggerError {
	return &TriggerError{
		Category:      CategoryUnexpected,
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Internal server error",
		InternalError: err.Error(),
		OriginalErr:   err,
	}
}
