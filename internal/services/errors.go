// Package services implements the ledger operations engine and the query
// aggregator. This file centralizes the service-level error taxonomy so that
// it can be consistently returned by service methods and checked by callers.
//
// Taxonomy (translation into HTTP status codes happens at the handler layer):
//   - validation errors: malformed input, surfaced verbatim;
//   - not-found errors: missing app/template/entry, surfaced with the entity;
//   - conflict errors: quota exceeded, insufficient balance, expired
//     template/entry; these carry the numeric context needed to explain
//     the rejection;
//   - everything else is infrastructure and fatal to the current call.
package services

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrAmountNotPositive is returned when a grant or consume amount is <= 0.
	ErrAmountNotPositive = errors.New("amount must be positive")

	// ErrMissingIdempotencyKey is returned when a mutating call carries no
	// idempotency key.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrMissingOwner is returned when merchant or app id is blank.
	ErrMissingOwner = errors.New("merchant id and app id are required")

	// ErrMissingPlayer is returned when the player id is blank.
	ErrMissingPlayer = errors.New("player id is required")

	// ErrMissingItem is returned when the item id is blank.
	ErrMissingItem = errors.New("item id is required")
)

// Not-found errors.
var (
	// ErrAppNotFound indicates the owning application does not exist.
	ErrAppNotFound = errors.New("app not found")

	// ErrTemplateNotFound indicates the item template does not exist for
	// this owner.
	ErrTemplateNotFound = errors.New("item template not found")

	// ErrEntryNotFound indicates the explicitly targeted inventory entry
	// does not exist for (owner, player, item).
	ErrEntryNotFound = errors.New("inventory entry not found")

	// ErrNoItemHeld indicates the player holds none of the requested item.
	ErrNoItemHeld = errors.New("player has none of this item")
)

// Conflict errors.
var (
	// ErrAppDisabled indicates the owning application is disabled.
	ErrAppDisabled = errors.New("app is disabled")

	// ErrTemplateInactive indicates the template's active flag is off.
	ErrTemplateInactive = errors.New("item template is inactive")

	// ErrTemplateExpired indicates the template's lifecycle state is expired.
	ErrTemplateExpired = errors.New("item template has expired")

	// ErrTemplateDeleted indicates the template is deleted or pending delete.
	ErrTemplateDeleted = errors.New("item template is deleted")

	// ErrEntryExpired indicates the targeted inventory entry's expiry has
	// passed.
	ErrEntryExpired = errors.New("inventory entry has expired")
)

// Quota scopes for QuotaExceededError.
const (
	QuotaDaily    = "daily"
	QuotaLifetime = "lifetime"
)

// QuotaExceededError reports a grant rejected by a quota policy, carrying
// the already-granted sum, the requested amount, and the configured limit.
type QuotaExceededError struct {
	Scope     string
	Granted   int64
	Requested int64
	Limit     int64
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s limit exceeded: granted %d, requested %d, limit %d",
		e.Scope, e.Granted, e.Requested, e.Limit)
}

// InsufficientBalanceError reports a consume larger than the targeted
// entry's remaining amount.
type InsufficientBalanceError struct {
	Have int64
	Want int64
}

// Error implements the error interface.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, want %d", e.Have, e.Want)
}

// IsConflict reports whether err belongs to the conflict class of the
// taxonomy.
func IsConflict(err error) bool {
	var q *QuotaExceededError
	var b *InsufficientBalanceError
	return errors.Is(err, ErrAppDisabled) ||
		errors.Is(err, ErrTemplateInactive) ||
		errors.Is(err, ErrTemplateExpired) ||
		errors.Is(err, ErrTemplateDeleted) ||
		errors.Is(err, ErrEntryExpired) ||
		errors.As(err, &q) ||
		errors.As(err, &b)
}

// IsNotFound reports whether err belongs to the not-found class.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrNoItemHeld)
}

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrAmountNotPositive) ||
		errors.Is(err, ErrMissingIdempotencyKey) ||
		errors.Is(err, ErrMissingOwner) ||
		errors.Is(err, ErrMissingPlayer) ||
		errors.Is(err, ErrMissingItem)
}
