// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them for programmatic error handling, messages are for humans.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAppDisabled         = "app_disabled"
	ErrCodeQuotaExceeded       = "quota_exceeded"
	ErrCodeInsufficientBalance = "insufficient_balance"
	ErrCodeExpired             = "expired"
)
