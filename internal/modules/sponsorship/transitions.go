package sponsorship

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"parnass/internal/domain"
	"parnass/internal/events"
	"parnass/internal/pkg/logger"
)

// UpdateStatus applies an administrator decision. When ExpectedStatus is set
// it is the asserted prior status and a mismatch fails with ErrStaleState.
// Without it, a reservation already in the target status is returned unchanged.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id string, req UpdateStatusRequest) (*domain.Reservation, error) {
	target, ok := domain.ParseReservationStatus(req.Status)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}
	event, ok := domain.EventForTarget(target)
	if !ok {
		return nil, fmt.Errorf("%w: status %s cannot be set by an administrator", ErrValidation, target)
	}

	current, err := s.reservations.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	from := current.Status
	if req.ExpectedStatus != "" {
		expected, ok := domain.ParseReservationStatus(req.ExpectedStatus)
		if !ok {
			return nil, fmt.Errorf("%w: unknown expectedStatus %q", ErrValidation, req.ExpectedStatus)
		}
		from = expected
	} else if current.Status == target {
		return current, nil
	}

	to, err := domain.Transition(from, event)
	if err != nil {
		return nil, err
	}
	if event == domain.EventCancel && !s.now().Before(current.BucketStart) {
		return nil, ErrCancelWindowClosed
	}

	if err := s.reservations.CompareAndSetStatus(ctx, tenantID, id, from, to); err != nil {
		return nil, err
	}

	updated, err := s.reservations.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	s.metrics.transitions.Inc(ctx, attribute.String("status.to", string(to)))
	logger.WithContext(ctx, s.log).Info("reservation status changed",
		zap.String("reservation_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.publish(ctx, events.TopicStatusChanged, updated, from)
	return updated, nil
}
