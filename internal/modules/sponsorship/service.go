package sponsorship

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"parnass/internal/calendar"
	"parnass/internal/domain"
	"parnass/internal/events"
	"parnass/internal/pkg/logger"
	"parnass/internal/pkg/telemetry"
)

const defaultIdempotencyTTL = 24 * time.Hour

type metrics struct {
	created     *telemetry.Counter
	conflicts   *telemetry.Counter
	transitions *telemetry.Counter
	expired     *telemetry.Counter
}

func newMetrics() *metrics {
	return &metrics{
		created: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "parnass_reservations_created_total",
			Description: "Reservations created",
		}),
		conflicts: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "parnass_reservation_conflicts_total",
			Description: "Booking requests rejected because the slot is held",
		}),
		transitions: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "parnass_reservation_transitions_total",
			Description: "Administrator status transitions",
		}),
		expired: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "parnass_reservations_expired_total",
			Description: "Reservations expired by the sweep",
		}),
	}
}

type Service struct {
	reservations   ReservationStore
	settings       SettingsProvider
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
	publisher      events.Publisher
	calendar       calendar.Converter
	log            *zap.Logger
	metrics        *metrics
	now            func() time.Time
}

func NewService(
	reservations ReservationStore,
	settings SettingsProvider,
	idempotency IdempotencyStore,
	publisher events.Publisher,
	conv calendar.Converter,
	log *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if conv == nil {
		conv = calendar.Gregorian{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		reservations:   reservations,
		settings:       settings,
		idempotency:    idempotency,
		idempotencyTTL: defaultIdempotencyTTL,
		publisher:      publisher,
		calendar:       conv,
		log:            log,
		metrics:        newMetrics(),
		now:            time.Now,
	}
}

// SetIdempotencyTTL changes how long a client key keeps replaying its reservation.
func (s *Service) SetIdempotencyTTL(ttl time.Duration) {
	if ttl > 0 {
		s.idempotencyTTL = ttl
	}
}

// resolve loads the tenant settings and maps (type, date) onto its slot.
func (s *Service) resolve(ctx context.Context, tenantID, rawType, rawDate string) (*domain.TenantSponsorshipSettings, Slot, error) {
	t, ok := domain.ParseSponsorshipType(rawType)
	if !ok {
		return nil, Slot{}, fmt.Errorf("%w: unknown sponsorship type %q", ErrValidation, rawType)
	}

	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return nil, Slot{}, err
	}
	if !settings.Enabled(t) {
		return nil, Slot{}, ErrTypeDisabled
	}

	civil, err := ParseSponsorDate(rawDate, settings.Location())
	if err != nil {
		return nil, Slot{}, err
	}
	slot, err := DeriveSlot(tenantID, t, civil)
	if err != nil {
		return nil, Slot{}, err
	}
	return settings, slot, nil
}

// CheckAvailability reports whether a new booking for (type, date) would be accepted.
func (s *Service) CheckAvailability(ctx context.Context, tenantID string, req AvailabilityRequest) (*AvailabilityResponse, error) {
	settings, slot, err := s.resolve(ctx, tenantID, req.Type, req.Date)
	if err != nil {
		return nil, err
	}
	if settings.AllowMultipleSponsors {
		return &AvailabilityResponse{Available: true}, nil
	}

	held, err := s.reservations.FindActiveBySlot(ctx, slot.Key)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 {
		return &AvailabilityResponse{Available: false, ConflictID: held[0].ID}, nil
	}
	return &AvailabilityResponse{Available: true}, nil
}

// CreateReservation books a slot as Pending. With a non-empty idempotencyKey a
// retried request returns the reservation created by the first one; replayed
// reports whether that happened.
func (s *Service) CreateReservation(ctx context.Context, tenantID, idempotencyKey string, req CreateReservationRequest) (res *domain.Reservation, replayed bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "sponsorship.CreateReservation",
		attribute.String("tenant.id", tenantID),
		attribute.String("sponsorship.type", req.Type),
	)
	defer func() { telemetry.EndSpan(span, err) }()
	log := logger.WithContext(ctx, s.log)

	dedication, err := dedicationFrom(req.Dedication)
	if err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(req.SponsorName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" {
		return nil, false, fmt.Errorf("%w: sponsorName and email are required", ErrValidation)
	}

	settings, slot, err := s.resolve(ctx, tenantID, req.Type, req.Date)
	if err != nil {
		return nil, false, err
	}

	useKey := idempotencyKey != "" && s.idempotency != nil
	if useKey {
		existingID, started, err := s.idempotency.Begin(ctx, tenantID, idempotencyKey, s.idempotencyTTL)
		if err != nil {
			return nil, false, fmt.Errorf("idempotency begin: %w", err)
		}
		if !started {
			if existingID == "" {
				return nil, false, ErrRequestInFlight
			}
			existing, err := s.reservations.GetByID(ctx, tenantID, existingID)
			if err != nil {
				return nil, false, err
			}
			return existing, true, nil
		}
	}

	now := s.now().UTC()
	r := &domain.Reservation{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Type:          slot.Key.Type,
		SponsorDate:   slot.SponsorDate,
		Bucket:        slot.Key.Bucket,
		BucketStart:   slot.Start,
		BucketEnd:     slot.End,
		SponsorName:   name,
		IsAnonymous:   req.IsAnonymous,
		Dedication:    dedication,
		Message:       strings.TrimSpace(req.Message),
		Email:         email,
		Phone:         strings.TrimSpace(req.Phone),
		Amount:        settings.Price(slot.Key.Type),
		Currency:      settings.Currency,
		Status:        domain.ReservationPending,
		SlotExclusive: !settings.AllowMultipleSponsors,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.reservations.CreateIfAvailable(ctx, r); err != nil {
		if useKey {
			if aerr := s.idempotency.Abort(ctx, tenantID, idempotencyKey); aerr != nil {
				log.Warn("idempotency abort failed", zap.Error(aerr))
			}
		}
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.conflicts.Inc(ctx, attribute.String("sponsorship.type", string(slot.Key.Type)))
		}
		return nil, false, err
	}

	if useKey {
		if err := s.idempotency.Complete(ctx, tenantID, idempotencyKey, r.ID); err != nil {
			log.Warn("idempotency complete failed", zap.String("reservation_id", r.ID), zap.Error(err))
		}
	}

	s.metrics.created.Inc(ctx, attribute.String("sponsorship.type", string(r.Type)))
	log.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("tenant_id", tenantID),
		zap.String("slot", slot.Key.String()),
	)
	s.publish(ctx, events.TopicReserved, r, "")
	return r, false, nil
}

func (s *Service) GetReservation(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	return s.reservations.GetByID(ctx, tenantID, id)
}

func (s *Service) publish(ctx context.Context, topic string, r *domain.Reservation, previous domain.ReservationStatus) {
	ev := events.NewReservationEvent(topic, r, previous, s.now())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.WithContext(ctx, s.log).Warn("publish reservation event failed",
			zap.String("event", topic),
			zap.String("reservation_id", r.ID),
			zap.Error(err),
		)
	}
}

func dedicationFrom(in *DedicationInput) (*domain.Dedication, error) {
	if in == nil {
		return nil, nil
	}
	kind := domain.DedicationKind(in.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown dedication kind %q", ErrValidation, in.Kind)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: dedication name is required", ErrValidation)
	}
	return &domain.Dedication{
		Kind:       kind,
		Name:       name,
		HebrewName: strings.TrimSpace(in.HebrewName),
	}, nil
}
