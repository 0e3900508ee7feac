package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"parnass/internal/domain"
)

const (
	metaReservationID = "reservation_id"
	metaSettlementID  = "settlement_id"
	metaTenantID      = "tenant_id"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Stripe opens Checkout Sessions and verifies Stripe webhook deliveries.
type Stripe struct {
	api *client.API
	cfg StripeConfig
}

func NewStripe(cfg StripeConfig) *Stripe {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &Stripe{api: api, cfg: cfg}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ReservationID),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(MinorUnits(req.Amount, req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.AddMetadata(metaReservationID, req.ReservationID)
	params.AddMetadata(metaSettlementID, req.SettlementID)
	params.AddMetadata(metaTenantID, req.TenantID)

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &Session{Provider: s.Name(), SessionID: cs.ID, CheckoutURL: cs.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps checkout session
// events onto settlement outcomes.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var outcome domain.SettlementOutcome
	switch string(event.Type) {
	case "checkout.session.completed":
		outcome = domain.OutcomeSucceeded
	case "checkout.session.async_payment_succeeded":
		outcome = domain.OutcomeSucceeded
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		outcome = domain.OutcomeFailed
	default:
		return &Notification{}, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	// completed with a delayed payment method: wait for the async event
	if string(event.Type) == "checkout.session.completed" && cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		outcome = ""
	}

	n := &Notification{Outcome: outcome}
	if cs.Metadata != nil {
		n.ReservationID = cs.Metadata[metaReservationID]
		n.SettlementID = cs.Metadata[metaSettlementID]
	}
	if n.ReservationID == "" {
		n.ReservationID = cs.ClientReferenceID
	}
	if n.ReservationID == "" {
		return nil, fmt.Errorf("%w: missing reservation reference", ErrMalformedPayload)
	}
	return n, nil
}
