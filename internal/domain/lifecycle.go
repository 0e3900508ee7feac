package domain

import "fmt"

// LifecycleEvent drives a reservation from one status to another.
type LifecycleEvent string

const (
	EventApprove       LifecycleEvent = "approve"
	EventReject        LifecycleEvent = "reject"
	EventCancel        LifecycleEvent = "cancel"
	EventExpire        LifecycleEvent = "expire"
	EventPaymentFailed LifecycleEvent = "payment_failed"
)

var transitions = map[ReservationStatus]map[LifecycleEvent]ReservationStatus{
	ReservationPending: {
		EventApprove:       ReservationApproved,
		EventReject:        ReservationRejected,
		EventPaymentFailed: ReservationRejected,
		EventExpire:        ReservationExpired,
	},
	ReservationApproved: {
		EventCancel: ReservationCancelled,
		EventExpire: ReservationExpired,
	},
}

// Transition returns the status reached from `from` on `ev`.
func Transition(from ReservationStatus, ev LifecycleEvent) (ReservationStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// EventForTarget maps an administrator-requested status to its lifecycle event.
func EventForTarget(target ReservationStatus) (LifecycleEvent, bool) {
	switch target {
	case ReservationApproved:
		return EventApprove, true
	case ReservationRejected:
		return EventReject, true
	case ReservationCancelled:
		return EventCancel, true
	}
	return "", false
}

// SettledStatus is the status a reservation moves to once its payment succeeds.
// Pending reservations are auto-approved only when the tenant does not review them.
func SettledStatus(from ReservationStatus, requireApproval bool) (ReservationStatus, error) {
	switch from {
	case ReservationPending:
		if requireApproval {
			return ReservationPending, nil
		}
		return ReservationApproved, nil
	case ReservationApproved:
		return ReservationApproved, nil
	}
	return "", fmt.Errorf("%w: payment on %s", ErrInvalidTransition, from)
}

// Expirable reports whether the sweep may expire a reservation once its bucket has elapsed.
func Expirable(r *Reservation) bool {
	switch r.Status {
	case ReservationPending:
		return true
	case ReservationApproved:
		return !r.IsPaid
	}
	return false
}
