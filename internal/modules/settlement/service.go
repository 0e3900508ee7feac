package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"parnass/internal/domain"
	"parnass/internal/events"
	"parnass/internal/gateway"
	"parnass/internal/pkg/logger"
	"parnass/internal/pkg/telemetry"
)

type metrics struct {
	sessions *telemetry.Counter
	outcomes *telemetry.Counter
}

func newMetrics() *metrics {
	return &metrics{
		sessions: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "parnass_settlement_sessions_total",
			Description: "Payment sessions opened with the processor",
		}),
		outcomes: telemetry.MustCounter(telemetry.MetricOpts{
			Name:        "parnass_settlement_outcomes_total",
			Description: "Settlement outcomes reconciled against reservations",
		}),
	}
}

// Service opens payment sessions and folds processor outcomes back into
// reservation state.
type Service struct {
	reservations ReservationStore
	settlements  SettlementStore
	settings     SettingsProvider
	processor    gateway.Processor
	stripe       StripeVerifier
	midtrans     MidtransVerifier
	publisher    events.Publisher
	log          *zap.Logger
	metrics      *metrics
	now          func() time.Time
}

func NewService(
	reservations ReservationStore,
	settlements SettlementStore,
	settings SettingsProvider,
	processor gateway.Processor,
	publisher events.Publisher,
	log *zap.Logger,
) *Service {
	if processor == nil {
		processor = gateway.Manual{}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		reservations: reservations,
		settlements:  settlements,
		settings:     settings,
		processor:    processor,
		publisher:    publisher,
		log:          log,
		metrics:      newMetrics(),
		now:          time.Now,
	}
}

// SetProcessor replaces the processor that opens payment sessions.
func (s *Service) SetProcessor(p gateway.Processor) {
	if p != nil {
		s.processor = p
	}
}

// SetStripe enables the Stripe webhook.
func (s *Service) SetStripe(v StripeVerifier) { s.stripe = v }

// SetMidtrans enables the Midtrans notification endpoint.
func (s *Service) SetMidtrans(v MidtransVerifier) { s.midtrans = v }

// BeginSettlement opens a payment session for an unpaid, active reservation.
// The processor is called before anything is written, outside any transaction.
func (s *Service) BeginSettlement(ctx context.Context, tenantID, reservationID string) (handle *PaymentHandle, err error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.BeginSettlement",
		attribute.String("tenant.id", tenantID),
		attribute.String("reservation.id", reservationID),
		attribute.String("processor", s.processor.Name()),
	)
	defer func() { telemetry.EndSpan(span, err) }()
	log := logger.WithContext(ctx, s.log)

	r, err := s.reservations.GetByID(ctx, tenantID, reservationID)
	if err != nil {
		return nil, err
	}
	if r.IsPaid {
		return nil, ErrAlreadyPaid
	}
	if r.Status.IsFinal() {
		return nil, fmt.Errorf("%w: reservation is %s", ErrNothingToSettle, r.Status)
	}
	if !r.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount is %s", ErrNothingToSettle, r.Amount.StringFixed(2))
	}

	settlementID := uuid.NewString()
	sess, err := s.processor.CreateSession(ctx, gateway.SessionRequest{
		SettlementID:  settlementID,
		ReservationID: r.ID,
		TenantID:      r.TenantID,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Description:   fmt.Sprintf("%s sponsorship %s", r.Type, r.Bucket),
		SponsorName:   r.SponsorName,
		Email:         r.Email,
	})
	if err != nil {
		log.Error("create payment session failed",
			zap.String("reservation_id", r.ID),
			zap.String("processor", s.processor.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrSettlementFailure, err)
	}

	row := &domain.Settlement{
		ID:            settlementID,
		ReservationID: r.ID,
		TenantID:      r.TenantID,
		Provider:      sess.Provider,
		SessionID:     sess.SessionID,
		CheckoutURL:   sess.CheckoutURL,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Status:        domain.SettlementCreated,
		Metadata: map[string]string{
			"type":   string(r.Type),
			"bucket": r.Bucket,
		},
	}
	if err := s.settlements.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("save settlement: %w", err)
	}

	s.metrics.sessions.Inc(ctx, attribute.String("processor", sess.Provider))
	log.Info("payment session opened",
		zap.String("reservation_id", r.ID),
		zap.String("settlement_id", settlementID),
		zap.String("processor", sess.Provider),
	)

	return &PaymentHandle{
		SettlementID:  settlementID,
		ReservationID: r.ID,
		Provider:      sess.Provider,
		SessionID:     sess.SessionID,
		CheckoutURL:   sess.CheckoutURL,
		Token:         sess.Token,
		Amount:        r.Amount.StringFixed(2),
		Currency:      r.Currency,
	}, nil
}

// Reconcile applies a processor outcome to a reservation. settlementID names
// the payment session the outcome belongs to; when empty the newest open
// session is assumed. It is idempotent: replays and outcomes for paid or closed
// reservations leave the reservation unchanged and report changed=false.
func (s *Service) Reconcile(ctx context.Context, reservationID, settlementID string, outcome domain.SettlementOutcome, raw []byte) (res *domain.Reservation, changed bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "settlement.Reconcile",
		attribute.String("reservation.id", reservationID),
		attribute.String("settlement.id", settlementID),
		attribute.String("settlement.outcome", string(outcome)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if outcome != domain.OutcomeSucceeded && outcome != domain.OutcomeFailed {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}

	r, err := s.reservations.GetByID(ctx, "", reservationID)
	if err != nil {
		return nil, false, err
	}
	row, err := s.session(ctx, r.ID, settlementID)
	if err != nil {
		return nil, false, err
	}
	if row != nil {
		if err := s.recordOutcome(ctx, row.ID, outcome, raw); err != nil {
			return nil, false, err
		}
	}

	if outcome == domain.OutcomeSucceeded {
		res, changed, err = s.settle(ctx, r)
	} else {
		res, changed, err = s.fail(ctx, r)
	}
	if err != nil {
		return nil, false, err
	}

	s.metrics.outcomes.Inc(ctx,
		attribute.String("settlement.outcome", string(outcome)),
		attribute.Bool("changed", changed),
	)
	return res, changed, nil
}

// session resolves the settlement an outcome belongs to. A nil settlement
// means the reservation never opened a session, or all of them are closed.
func (s *Service) session(ctx context.Context, reservationID, settlementID string) (*domain.Settlement, error) {
	if settlementID == "" {
		row, err := s.settlements.LatestOpen(ctx, reservationID)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return row, err
	}
	row, err := s.settlements.GetByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if row.ReservationID != reservationID {
		return nil, fmt.Errorf("%w: settlement %s does not belong to reservation %s", ErrNotFound, settlementID, reservationID)
	}
	return row, nil
}

func (s *Service) settle(ctx context.Context, r *domain.Reservation) (*domain.Reservation, bool, error) {
	log := logger.WithContext(ctx, s.log).With(zap.String("reservation_id", r.ID))
	if r.IsPaid {
		log.Info("payment already recorded")
		return r, false, nil
	}
	if r.Status.IsFinal() {
		log.Warn("payment succeeded for a closed reservation", zap.String("status", string(r.Status)))
		return r, false, nil
	}

	settings, err := s.settings.Get(ctx, r.TenantID)
	if err != nil {
		return nil, false, err
	}
	to, err := domain.SettledStatus(r.Status, settings.RequireApproval)
	if err != nil {
		return nil, false, err
	}

	if err := s.reservations.MarkPaid(ctx, r.TenantID, r.ID, r.Status, to); err != nil {
		if !errors.Is(err, ErrStaleState) {
			return nil, false, err
		}
		cur, gerr := s.reservations.GetByID(ctx, r.TenantID, r.ID)
		if gerr != nil {
			return nil, false, gerr
		}
		if cur.IsPaid || cur.Status.IsFinal() {
			return cur, false, nil
		}
		return nil, false, err
	}

	updated, err := s.reservations.GetByID(ctx, r.TenantID, r.ID)
	if err != nil {
		return nil, false, err
	}
	log.Info("reservation paid", zap.String("from", string(r.Status)), zap.String("to", string(to)))
	s.publish(ctx, events.TopicPaid, updated, r.Status)
	return updated, true, nil
}

func (s *Service) fail(ctx context.Context, r *domain.Reservation) (*domain.Reservation, bool, error) {
	if r.IsPaid || r.Status != domain.ReservationPending {
		return r, false, nil
	}
	// the donor may still pay on a newer session
	open, err := s.settlements.CountOpen(ctx, r.ID)
	if err != nil {
		return nil, false, err
	}
	if open > 0 {
		logger.WithContext(ctx, s.log).Info("payment session failed, another session is still open",
			zap.String("reservation_id", r.ID),
			zap.Int64("open_sessions", open),
		)
		return r, false, nil
	}
	to, err := domain.Transition(r.Status, domain.EventPaymentFailed)
	if err != nil {
		return nil, false, err
	}

	if err := s.reservations.CompareAndSetStatus(ctx, r.TenantID, r.ID, r.Status, to); err != nil {
		if !errors.Is(err, ErrStaleState) {
			return nil, false, err
		}
		cur, gerr := s.reservations.GetByID(ctx, r.TenantID, r.ID)
		if gerr != nil {
			return nil, false, gerr
		}
		if cur.IsPaid || cur.Status != domain.ReservationPending {
			return cur, false, nil
		}
		return nil, false, err
	}

	updated, err := s.reservations.GetByID(ctx, r.TenantID, r.ID)
	if err != nil {
		return nil, false, err
	}
	logger.WithContext(ctx, s.log).Info("reservation rejected after failed payment",
		zap.String("reservation_id", r.ID),
	)
	s.publish(ctx, events.TopicStatusChanged, updated, r.Status)
	return updated, true, nil
}

func (s *Service) recordOutcome(ctx context.Context, settlementID string, outcome domain.SettlementOutcome, raw []byte) error {
	status := domain.SettlementFailed
	if outcome == domain.OutcomeSucceeded {
		status = domain.SettlementSucceeded
	}
	if _, err := s.settlements.RecordOutcome(ctx, settlementID, status, raw, s.now()); err != nil {
		return fmt.Errorf("record settlement outcome: %w", err)
	}
	return nil
}

// HandleWebhook reconciles a generic processor callback.
func (s *Service) HandleWebhook(ctx context.Context, req WebhookRequest, raw []byte) (*domain.Reservation, bool, error) {
	outcome, ok := domain.ParseSettlementOutcome(req.Outcome)
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownOutcome, req.Outcome)
	}
	return s.Reconcile(ctx, req.ReservationID, req.SettlementID, outcome, raw)
}

// HandleStripe verifies and reconciles a Stripe webhook. Events that do not
// settle anything return a nil reservation.
func (s *Service) HandleStripe(ctx context.Context, payload []byte, signature string) (*domain.Reservation, bool, error) {
	if s.stripe == nil {
		return nil, false, ErrProviderDisabled
	}
	n, err := s.stripe.ParseWebhook(payload, signature)
	if err != nil {
		return nil, false, err
	}
	if n.Outcome == "" {
		return nil, false, nil
	}
	return s.Reconcile(ctx, n.ReservationID, n.SettlementID, n.Outcome, payload)
}

// HandleMidtrans verifies and reconciles a Midtrans notification. The order id
// is the settlement id, which leads back to the reservation. A success whose
// gross amount differs from the session amount is refused.
func (s *Service) HandleMidtrans(ctx context.Context, payload []byte) (*domain.Reservation, bool, error) {
	if s.midtrans == nil {
		return nil, false, ErrProviderDisabled
	}
	n, err := s.midtrans.ParseNotification(payload)
	if err != nil {
		return nil, false, err
	}
	if n.Outcome == "" {
		return nil, false, nil
	}
	row, err := s.settlements.GetByID(ctx, n.SettlementID)
	if err != nil {
		return nil, false, err
	}
	if n.Outcome == domain.OutcomeSucceeded && n.Amount.Valid {
		// snap transactions are opened for whole units
		if expected := row.Amount.Round(0); !n.Amount.Decimal.Equal(expected) {
			logger.WithContext(ctx, s.log).Warn("midtrans amount does not match settlement",
				zap.String("settlement_id", row.ID),
				zap.String("expected", expected.String()),
				zap.String("reported", n.Amount.Decimal.String()),
			)
			return nil, false, fmt.Errorf("%w: expected %s, got %s", ErrAmountMismatch, expected, n.Amount.Decimal)
		}
	}
	return s.Reconcile(ctx, row.ReservationID, row.ID, n.Outcome, payload)
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
