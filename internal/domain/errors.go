package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of these
// so callers can map it with errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Domain errors
var (
	// Show errors
	ErrShowNotFound      = fmt.Errorf("show %w", ErrNotFound)
	ErrInvalidShowID     = fmt.Errorf("%w: invalid show id", ErrInvalidRequest)
	ErrInvalidTheater    = fmt.Errorf("%w: theater is required", ErrInvalidRequest)
	ErrInvalidShowTime   = fmt.Errorf("%w: show time is required", ErrInvalidRequest)
	ErrInvalidBasePrice  = fmt.Errorf("%w: base price cannot be negative", ErrInvalidRequest)
	ErrInvalidTotalSeats = fmt.Errorf("%w: total seats must be greater than zero", ErrInvalidRequest)
	ErrEmptyUpdate       = fmt.Errorf("%w: no fields to update", ErrInvalidRequest)
	ErrResizeBelowHeld   = fmt.Errorf("%w: total seats below booked and locked seats", ErrCapacityExceeded)
	ErrLedgerInvariant   = errors.New("seat ledger invariant violated")

	// Booking errors
	ErrBookingNotFound   = fmt.Errorf("booking %w", ErrNotFound)
	ErrInvalidBookingID  = fmt.Errorf("%w: invalid booking id", ErrInvalidRequest)
	ErrInvalidUserID     = fmt.Errorf("%w: invalid user id", ErrInvalidRequest)
	ErrInvalidSeats      = fmt.Errorf("%w: seats must be greater than zero", ErrInvalidRequest)
	ErrInsufficientSeats = fmt.Errorf("%w: insufficient seats available", ErrCapacityExceeded)
	ErrBookingResolved   = fmt.Errorf("%w: booking is no longer pending", ErrInvalidTransition)
	ErrLockActive        = fmt.Errorf("%w: seat lock has not expired", ErrInvalidTransition)

	// Payment errors
	ErrAmountMismatch  = fmt.Errorf("%w: paid amount does not match booking", ErrInvalidRequest)
	ErrMalformedEvent  = fmt.Errorf("%w: malformed gateway event", ErrInvalidRequest)
	ErrGatewayOrder    = fmt.Errorf("%w: payment order could not be created", ErrUpstreamUnavailable)
	ErrGatewayNotFound = fmt.Errorf("gateway order %w", ErrNotFound)
	ErrOrderPaid       = fmt.Errorf("%w: gateway order already paid", ErrInvalidTransition)
	// ErrReservationInterrupted means the hold was resolved while its order
	// was being opened. The order is cancelled and the caller may reserve again.
	ErrReservationInterrupted = fmt.Errorf("%w: reservation interrupted, retry", ErrUpstreamUnavailable)
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCapacityExceeded) || errors.Is(err, ErrInvalidTransition)
}

// IsRetryableError reports errors a caller may retry unchanged
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrTransactionConflict) || errors.Is(err, ErrUpstreamUnavailable)
}
