package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced in API responses.
const (
	CodeValidationError         = "VALIDATION_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeConflict                = "CONFLICT"
	CodeInsufficientStock       = "INSUFFICIENT_STOCK"
	CodeReservationExceedsStock = "RESERVATION_EXCEEDS_STOCK"
	CodeConcurrencyExhausted    = "CONCURRENCY_EXHAUSTED"
	CodeInternalError           = "INTERNAL_ERROR"
	CodeServiceUnavailable      = "SERVICE_UNAVAILABLE"
	CodeTimeout                 = "TIMEOUT"
)

// AppError carries an error code, a caller-facing message and the HTTP
// status the facade should respond with.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails replaces the detail map.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail entry.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap attaches the underlying cause.
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates an AppError with an explicit code and status.
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation reports malformed caller input.
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields reports malformed input with per-field details.
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrNotFound reports a missing resource.
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID reports a missing resource identified by id.
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrConflict reports a state conflict such as a duplicate creation.
func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrInsufficientStock reports a removal or reservation exceeding the
// available quantity. Business-rule failure: retrying cannot help.
func ErrInsufficientStock(message string) *AppError {
	return NewAppError(CodeInsufficientStock, message, http.StatusUnprocessableEntity)
}

// ErrReservationExceedsStock reports an adjustment below the reserved
// quantity.
func ErrReservationExceedsStock(message string) *AppError {
	return NewAppError(CodeReservationExceedsStock, message, http.StatusUnprocessableEntity)
}

// ErrConcurrencyExhausted reports that optimistic-concurrency retries ran
// out. Distinct from CodeInsufficientStock so callers know the whole
// operation is safe to retry.
func ErrConcurrencyExhausted(resource string) *AppError {
	return NewAppError(CodeConcurrencyExhausted,
		fmt.Sprintf("concurrent updates to %s exceeded the retry budget", resource),
		http.StatusConflict)
}

// ErrInternal reports an unexpected server-side failure.
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrServiceUnavailable reports a temporarily unreachable dependency.
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

// ErrTimeout reports an operation abandoned at its deadline.
func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout)
}

// IsAppError reports whether err is (or wraps) an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts an AppError from err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError returns err as an AppError, wrapping unknown errors as internal.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}
