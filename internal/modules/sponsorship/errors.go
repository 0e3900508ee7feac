package sponsorship

import (
	"errors"

	"parnass/internal/domain"
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrValidation         = errors.New("validation error")
	ErrTypeDisabled       = errors.New("sponsorship type disabled")
	ErrCancelWindowClosed = errors.New("cancellation window closed")
	ErrRequestInFlight    = errors.New("request with this idempotency key is in flight")

	ErrNotFound          = domain.ErrNotFound
	ErrStaleState        = domain.ErrStaleState
	ErrSlotUnavailable   = domain.ErrSlotUnavailable
	ErrInvalidTransition = domain.ErrInvalidTransition
)
