package dto

import "net/http"

// General error codes
const (
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeInvalidJSON  = "INVALID_JSON"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeTooLarge     = "REQUEST_TOO_LARGE"
)

// errorCodeHTTPStatus maps domain error codes to HTTP status codes.
// The codes here are the ones the billing domain actually raises; anything
// unmapped falls back to 500 so a missing entry is loud rather than silent.
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	"ALREADY_EXISTS":       http.StatusConflict,
	"CONCURRENCY_CONFLICT": http.StatusConflict,
	"INVALID_STATE":        http.StatusConflict,

	// Reconciliation conflicts: the installment is taken, the group was
	// already reviewed. Retrying the same request cannot succeed.
	"INSTALLMENT_ALREADY_CLAIMED": http.StatusConflict,
	"ALREADY_REVIEWED":            http.StatusConflict,

	// Input problems on intake and review
	"INVALID_INPUT":             http.StatusBadRequest,
	"INVALID_INSTALLMENT":       http.StatusBadRequest,
	"INVALID_AMOUNT":            http.StatusBadRequest,
	"AMOUNT_MISMATCH":           http.StatusBadRequest,
	"INVALID_METHOD":            http.StatusBadRequest,
	"INVALID_STATUS":            http.StatusBadRequest,
	"INVALID_DNI":               http.StatusBadRequest,
	"INVALID_NAME":              http.StatusBadRequest,
	"INVALID_INSTALLMENTS":      http.StatusBadRequest,
	"INVALID_SCHOOL":            http.StatusBadRequest,
	"INVALID_PRODUCT":           http.StatusBadRequest,
	"INVALID_STUDENT":           http.StatusBadRequest,
	"INVALID_TRANSACTION_REF":   http.StatusBadRequest,
	"INVALID_GROUP":             http.StatusBadRequest,
	"REJECTION_REASON_REQUIRED": http.StatusBadRequest,
	"NOTES_REQUIRED":            http.StatusBadRequest,

	// Receipt file problems on upload
	"INVALID_RECEIPT":      http.StatusBadRequest,
	"INVALID_RECEIPT_TYPE": http.StatusBadRequest,
	"RECEIPT_TOO_LARGE":    http.StatusRequestEntityTooLarge,

	"STUDENT_NOT_FOUND": http.StatusNotFound,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Returns 500 Internal Server Error if the error code is not mapped.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
