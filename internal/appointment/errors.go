package appointment

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap exactly one of these so callers can
// branch with errors.Is on either level.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrTransactionAborted = errors.New("booking transaction failed")
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	ErrAppointmentNotReservable = fmt.Errorf("%w: appointment is not temporarily reserved", ErrConflict)
	ErrSlotUnavailable          = fmt.Errorf("%w: slot is no longer available", ErrConflict)
	ErrInvalidStatusTransition  = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrPaymentNotPending        = fmt.Errorf("%w: payment is not pending", ErrConflict)
	ErrHoldExpired              = fmt.Errorf("%w: temporary reservation has expired", ErrConflict)

	ErrUnknownSessionType = fmt.Errorf("%w: unknown session type", ErrValidation)
	ErrInvalidReason      = fmt.Errorf("%w: invalid cancellation reason", ErrValidation)
	ErrNotAParty          = fmt.Errorf("%w: user is not a party to the appointment", ErrValidation)
	ErrInvalidPayment     = fmt.Errorf("%w: invalid payment terms", ErrValidation)
	ErrStartInPast        = fmt.Errorf("%w: start time is in the past", ErrValidation)
	ErrInvalidParty       = fmt.Errorf("%w: client and host must be distinct users", ErrValidation)
)

// IsDomainError reports whether err is one of the package's expected
// outcomes rather than a storage failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAppointmentNotFound)
}
