package order

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrStateConflict     = errors.New("order state changed concurrently")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrForbidden         = errors.New("order belongs to another user")
	ErrInvalidInput      = errors.New("invalid input")
)

const (
	CodeInvalidInput      = "invalid_input"
	CodeForbidden         = "forbidden"
	CodeOrderNotFound     = "order_not_found"
	CodeIllegalTransition = "illegal_transition"
	CodeStateConflict     = "state_conflict"
	CodeStoreFailure      = "store_failure"
)

// LifecycleError is what every lifecycle operation returns on failure. Code
// and Message are safe to show to the caller; Err keeps the cause for logs.
type LifecycleError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *LifecycleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

func invalidInput(message string) *LifecycleError {
	return &LifecycleError{Code: CodeInvalidInput, Message: message, StatusCode: http.StatusBadRequest, Err: ErrInvalidInput}
}

func forbidden() *LifecycleError {
	return &LifecycleError{Code: CodeForbidden, Message: "you do not own this order", StatusCode: http.StatusForbidden, Err: ErrForbidden}
}

func notFound(orderID int64) *LifecycleError {
	return &LifecycleError{
		Code:       CodeOrderNotFound,
		Message:    fmt.Sprintf("order %d not found", orderID),
		StatusCode: http.StatusNotFound,
		Err:        ErrOrderNotFound,
	}
}

func illegalTransition(from, to string) *LifecycleError {
	return &LifecycleError{
		Code:       CodeIllegalTransition,
		Message:    fmt.Sprintf("cannot move order from %s to %s", from, to),
		StatusCode: http.StatusConflict,
		Err:        ErrIllegalTransition,
	}
}

func stateConflict(current string) *LifecycleError {
	return &LifecycleError{
		Code:       CodeStateConflict,
		Message:    fmt.Sprintf("order was updated by another request and is now %s, please refresh and retry", current),
		StatusCode: http.StatusConflict,
		Err:        ErrStateConflict,
	}
}

func storeFailure(err error) *LifecycleError {
	return &LifecycleError{
		Code:       CodeStoreFailure,
		Message:    "could not save the order, please try again",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// AsLifecycleError converts any error into a LifecycleError, treating
// unknown errors as store failures.
func AsLifecycleError(err error) *LifecycleError {
	var le *LifecycleError
	if errors.As(err, &le) {
		return le
	}
	return storeFailure(err)
}
