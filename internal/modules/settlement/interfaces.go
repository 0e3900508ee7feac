package settlement

import (
	"context"
	"time"

	"parnass/internal/domain"
	"parnass/internal/gateway"
)

// ReservationStore is the slice of the reservation repository settlement needs.
// An empty tenantID in GetByID matches any tenant.
type ReservationStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error)
	CompareAndSetStatus(ctx context.Context, tenantID, id string, from, to domain.ReservationStatus) error
	MarkPaid(ctx context.Context, tenantID, id string, from, to domain.ReservationStatus) error
}

type SettlementStore interface {
	Create(ctx context.Context, s *domain.Settlement) error
	GetByID(ctx context.Context, id string) (*domain.Settlement, error)
	RecordOutcome(ctx context.Context, settlementID string, status domain.SettlementStatus, rawPayload []byte, at time.Time) (bool, error)
	LatestOpen(ctx context.Context, reservationID string) (*domain.Settlement, error)
	CountOpen(ctx context.Context, reservationID string) (int64, error)
}

type SettingsProvider interface {
	Get(ctx context.Context, tenantID string) (*domain.TenantSponsorshipSettings, error)
}

// StripeVerifier authenticates a Stripe webhook and reduces it to a notification.
type StripeVerifier interface {
	ParseWebhook(payload []byte, signature string) (*gateway.Notification, error)
}

// MidtransVerifier authenticates a Midtrans HTTP notification.
type MidtransVerifier interface {
	ParseNotification(payload []byte) (*gateway.Notification, error)
}
