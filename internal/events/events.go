package events

import (
	"context"
	"errors"
	"time"

	"parnass/internal/domain"
)

// Topic names for reservation events
const (
	TopicReserved      = "sponsorship.reserved"
	TopicStatusChanged = "sponsorship.status_changed"
	TopicPaid          = "sponsorship.paid"
)

// ReservationEvent is published whenever a reservation is created, changes
// status or gets paid. Notification delivery consumes it downstream.
type ReservationEvent struct {
	EventType      string    `json:"eventType"`
	ReservationID  string    `json:"reservationId"`
	TenantID       string    `json:"tenantId"`
	Type           string    `json:"type"`
	Bucket         string    `json:"bucket"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	IsPaid         bool      `json:"isPaid"`
	SponsorName    string    `json:"sponsorName"`
	IsAnonymous    bool      `json:"isAnonymous"`
	Email          string    `json:"email"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	Timestamp      time.Time `json:"timestamp"`
}

// Key returns the message key for partitioning; events of one reservation stay ordered.
func (e *ReservationEvent) Key() string {
	return e.ReservationID
}

func NewReservationEvent(eventType string, r *domain.Reservation, previous domain.ReservationStatus, at time.Time) ReservationEvent {
	return ReservationEvent{
		EventType:      eventType,
		ReservationID:  r.ID,
		TenantID:       r.TenantID,
		Type:           string(r.Type),
		Bucket:         r.Bucket,
		Status:         string(r.Status),
		PreviousStatus: string(previous),
		IsPaid:         r.IsPaid,
		SponsorName:    r.SponsorName,
		IsAnonymous:    r.IsAnonymous,
		Email:          r.Email,
		Amount:         r.Amount.StringFixed(2),
		Currency:       r.Currency,
		Timestamp:      at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev ReservationEvent) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, ReservationEvent) error { return nil }
func (Noop) Close() error                                    { return nil }

// Fanout publishes every event to all publishers and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev ReservationEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
