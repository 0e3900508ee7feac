package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"parnass/internal/domain"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedPayload = errors.New("malformed notification payload")
)

// SessionRequest describes the payment a donor must complete for a reservation.
type SessionRequest struct {
	SettlementID  string
	ReservationID string
	TenantID      string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	SponsorName   string
	Email         string
}

// Session is the provider handle returned to the donor.
type Session struct {
	Provider    string
	SessionID   string
	CheckoutURL string
	Token       string
}

// Processor opens payment sessions with an external provider.
type Processor interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

// Notification is a provider callback reduced to what reconciliation needs.
// Outcome is empty for notifications that do not settle anything (e.g. pending).
// Amount is set when the provider reports the captured amount.
type Notification struct {
	ReservationID string
	SettlementID  string
	Outcome       domain.SettlementOutcome
	Amount        decimal.NullDecimal
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MinorUnits converts an amount into the smallest currency unit.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// Manual is used by communities that collect payments offline. The session
// carries no checkout URL; the treasurer reports the outcome through the
// settlement webhook.
type Manual struct{}

func (Manual) Name() string { return "manual" }

func (Manual) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	return &Session{Provider: "manual", SessionID: req.SettlementID}, nil
}
