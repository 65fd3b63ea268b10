package apperrors

import "errors"

var (
	ErrFlightNotFound          = errors.New("flight not found")
	ErrBookingNotFound         = errors.New("booking not found")
	ErrSeatUnavailable         = errors.New("seat unavailable")
	ErrSeatNotLocked           = errors.New("seat not locked")
	ErrLockExpiredOrMissing    = errors.New("seat lock expired or missing")
	ErrPaymentFailed           = errors.New("payment failed")
	ErrForbidden               = errors.New("forbidden")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrAlreadyCancelled        = errors.New("booking already cancelled")
	ErrInvalidStatusTransition = errors.New("invalid booking status transition")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvariantViolation      = errors.New("seat inventory invariant violated")
	ErrDuplicatePNR            = errors.New("pnr already exists")
	ErrPNRExhausted            = errors.New("could not allocate unique pnr")
	ErrInternalServerError     = errors.New("internal server error")
)
