package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementCreated   SettlementStatus = "created"
	SettlementSucceeded SettlementStatus = "succeeded"
	SettlementFailed    SettlementStatus = "failed"
)

// SettlementOutcome is what a payment processor reports back for a reservation.
type SettlementOutcome string

const (
	OutcomeSucceeded SettlementOutcome = "succeeded"
	OutcomeFailed    SettlementOutcome = "failed"
)

func ParseSettlementOutcome(s string) (SettlementOutcome, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(OutcomeSucceeded):
		return OutcomeSucceeded, true
	case string(OutcomeFailed):
		return OutcomeFailed, true
	}
	return "", false
}

// Settlement records one payment session opened for a reservation.
type Settlement struct {
	ID            string            `json:"id"`
	ReservationID string            `json:"reservationId"`
	TenantID      string            `json:"tenantId"`
	Provider      string            `json:"provider"`
	SessionID     string            `json:"sessionId"`
	CheckoutURL   string            `json:"checkoutUrl,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Status        SettlementStatus  `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	RawPayload    []byte            `json:"-"`
	SettledAt     *time.Time        `json:"settledAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
