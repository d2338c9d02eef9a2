package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and repositories use these constants instead
// of hardcoded strings so the HTTP mapping stays in one place.
const (
	// Auth (401)
	ErrCodeAuthSecretMissing ErrorCode = "auth_secret_missing"
	ErrCodeAuthSecretInvalid ErrorCode = "auth_secret_invalid"

	// Server-side configuration (500). Distinct from auth failures: the
	// caller presented a secret but the expected one cannot be resolved.
	ErrCodeConfigSecretUnavailable ErrorCode = "config_secret_unavailable"

	// Validation (400)
	ErrCodeValidationInvalidContentType ErrorCode = "validation_invalid_content_type"
	ErrCodeValidationInvalidJSON        ErrorCode = "validation_invalid_json"
	ErrCodeValidationPaymentIDMissing   ErrorCode = "validation_payment_id_missing"

	// Not Found
	ErrCodeNotFoundTransaction ErrorCode = "not_found_transaction"
	// The legacy gateway contract reports a missing pricing range as a 400,
	// not a 404; HTTPStatus special-cases it.
	ErrCodeNotFoundPricingRange ErrorCode = "not_found_pricing_range"

	// Conflict (409)
	ErrCodeConflictPaymentIDSet ErrorCode = "conflict_payment_id_already_set"

	// Persistence (500) — terminal settlement failures surfaced to the
	// gateway so it redelivers.
	ErrCodePersistenceLotCreate    ErrorCode = "persistence_lot_create_failed"
	ErrCodePersistenceStatusUpdate ErrorCode = "persistence_status_update_failed"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case c == ErrCodeNotFoundPricingRange:
		return http.StatusBadRequest // legacy contract: 400
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "config_"),
		strings.HasPrefix(s, "persistence_"),
		strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain and repository
// errors are expressed as AppError to enable consistent HTTP translation and
// error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
