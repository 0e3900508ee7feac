package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"parnass/internal/domain"
)

// Midtrans opens Snap transactions. The order id is the settlement id.
type Midtrans struct {
	client    snap.Client
	serverKey string
}

func NewMidtrans(serverKey string, production bool) *Midtrans {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	m := &Midtrans{serverKey: serverKey}
	m.client.New(serverKey, env)
	return m
}

func (m *Midtrans) Name() string { return "midtrans" }

func (m *Midtrans) CreateSession(_ context.Context, req SessionRequest) (*Session, error) {
	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  req.SettlementID,
			GrossAmt: req.Amount.Round(0).IntPart(),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.SponsorName,
			Email: req.Email,
		},
	}

	resp, err := m.client.CreateTransaction(sr)
	if err != nil {
		return nil, fmt.Errorf("midtrans snap transaction: %v", err.Error())
	}
	return &Session{
		Provider:    m.Name(),
		SessionID:   req.SettlementID,
		CheckoutURL: resp.RedirectURL,
		Token:       resp.Token,
	}, nil
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// ParseNotification verifies the notification signature
// (SHA512 of order_id + status_code + gross_amount + server key) and maps the
// transaction status. The returned notification carries the settlement id and
// the gross amount.
func (m *Midtrans) ParseNotification(payload []byte) (*Notification, error) {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if n.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order_id", ErrMalformedPayload)
	}

	expected := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(n.SignatureKey)), []byte(expected)) != 1 {
		return nil, ErrInvalidSignature
	}

	out := &Notification{SettlementID: n.OrderID}
	if n.GrossAmount != "" {
		amount, err := decimal.NewFromString(n.GrossAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: gross_amount %q", ErrMalformedPayload, n.GrossAmount)
		}
		out.Amount = decimal.NewNullDecimal(amount)
	}
	switch n.TransactionStatus {
	case "settlement":
		out.Outcome = domain.OutcomeSucceeded
	case "capture":
		if n.FraudStatus == "" || n.FraudStatus == "accept" {
			out.Outcome = domain.OutcomeSucceeded
		}
	case "deny", "cancel", "expire", "failure":
		out.Outcome = domain.OutcomeFailed
	}
	return out, nil
}

func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}
