package domain

import "errors"

// Errors
var (
	ErrInvalidGroup       = errors.New("invalid blood group")
	ErrInvalidComponent   = errors.New("invalid blood component")
	ErrInvalidOrganType   = errors.New("invalid organ type")
	ErrInvalidBatch       = errors.New("invalid batch")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrUnknownReservation = errors.New("unknown or already resolved reservation")
	ErrIneligibleDonor    = errors.New("donor is not eligible for donation")

	ErrRequestNotFound    = errors.New("request not found")
	ErrStockLineNotFound  = errors.New("stock line not found")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrDonorNotFound      = errors.New("donor not found")
	ErrInvalidTransition  = errors.New("cannot transition from current status")
	ErrRequestNotActive   = errors.New("request is not active")
	ErrAlertNotActive     = errors.New("alert is not active")
	ErrUnknownDonorMatch  = errors.New("donor match not found")
	ErrDuplicateResponse  = errors.New("donor response already recorded")
	ErrInvalidRequirement = errors.New("invalid requirement line")
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrConcurrentModification reports a versioned save losing to another
	// writer of the same document, e.g. the API and sweeper processes
	// touching one stock line.
	ErrConcurrentModification = errors.New("concurrent modification")
)
