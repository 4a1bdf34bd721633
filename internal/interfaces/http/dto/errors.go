package dto

import (
	"net/http"

	"github.com/firmledger/backend/internal/domain/shared"
)

// Ledger error codes. Domain codes are passed through unchanged.
const (
	ErrCodeValidation            = shared.CodeValidationFailed
	ErrCodeInvalidInput          = shared.CodeInvalidInput
	ErrCodeNotFound              = shared.CodeNotFound
	ErrCodeAlreadyExists         = shared.CodeAlreadyExists
	ErrCodeConcurrencyConflict   = shared.CodeConcurrencyConflict
	ErrCodeDuplicateTrigger      = shared.CodeDuplicateTrigger
	ErrCodeImmutabilityViolation = shared.CodeImmutabilityViolation
	ErrCodeLineageInconsistency  = shared.CodeLineageInconsistency
	ErrCodeInvalidState          = shared.CodeInvalidState
)

// Transport error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTokenExpired    = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid    = "INVALID_TOKEN"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound: http.StatusNotFound,

	// Every write that would rewrite ledger history is a conflict
	ErrCodeAlreadyExists:         http.StatusConflict,
	ErrCodeConcurrencyConflict:   http.StatusConflict,
	ErrCodeDuplicateTrigger:      http.StatusConflict,
	ErrCodeImmutabilityViolation: http.StatusConflict,
	ErrCodeLineageInconsistency:  http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
