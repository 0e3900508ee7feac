package settlement

import (
	"errors"

	"parnass/internal/domain"
)

var (
	ErrSettlementFailure = errors.New("payment processor failure")
	ErrNothingToSettle   = errors.New("nothing to settle")
	ErrAlreadyPaid       = errors.New("reservation already paid")
	ErrUnknownOutcome    = errors.New("unknown settlement outcome")
	ErrProviderDisabled  = errors.New("payment provider not configured")
	ErrAmountMismatch    = errors.New("paid amount does not match settlement")

	ErrNotFound          = domain.ErrNotFound
	ErrStaleState        = domain.ErrStaleState
	ErrInvalidTransition = domain.ErrInvalidTransition
)
