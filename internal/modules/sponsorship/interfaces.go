package sponsorship

import (
	"context"
	"time"

	"parnass/internal/domain"
)

// ReservationStore persists reservations. CreateIfAvailable is the atomic
// check-and-insert; status writes are compare-and-swap on the prior status.
type ReservationStore interface {
	CreateIfAvailable(ctx context.Context, r *domain.Reservation) error
	FindActiveBySlot(ctx context.Context, key domain.SlotKey) ([]domain.Reservation, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error)
	CompareAndSetStatus(ctx context.Context, tenantID, id string, from, to domain.ReservationStatus) error
	ListInRange(ctx context.Context, tenantID string, statuses []domain.ReservationStatus, ranges []domain.BucketRange) ([]domain.Reservation, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}

// SettingsProvider returns the current settings of a tenant, or ErrNotFound.
type SettingsProvider interface {
	Get(ctx context.Context, tenantID string) (*domain.TenantSponsorshipSettings, error)
}

// IdempotencyStore suppresses duplicate booking creation across client retries.
type IdempotencyStore interface {
	Begin(ctx context.Context, scope, key string, ttl time.Duration) (reservationID string, started bool, err error)
	Complete(ctx context.Context, scope, key, reservationID string) error
	Abort(ctx context.Context, scope, key string) error
}
