package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"parnass/internal/domain"
)

const slotExclusiveIndex = "idx_reservations_slot_exclusive"

type reservationModel struct {
	ID                   string          `gorm:"column:id;primaryKey;type:varchar(36)"`
	TenantID             string          `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_reservations_slot,priority:1"`
	SponsorshipType      string          `gorm:"column:sponsorship_type;type:varchar(16);not null;index:idx_reservations_slot,priority:2"`
	Bucket               string          `gorm:"column:bucket;type:varchar(10);not null;index:idx_reservations_slot,priority:3"`
	SponsorDate          string          `gorm:"column:sponsor_date;type:varchar(10);not null"`
	BucketStart          time.Time       `gorm:"column:bucket_start;not null"`
	BucketEnd            time.Time       `gorm:"column:bucket_end;not null;index"`
	SponsorName          string          `gorm:"column:sponsor_name;type:varchar(200);not null"`
	IsAnonymous          bool            `gorm:"column:is_anonymous;not null"`
	DedicationKind       *string         `gorm:"column:dedication_kind;type:varchar(32)"`
	DedicationName       *string         `gorm:"column:dedication_name;type:varchar(200)"`
	DedicationHebrewName *string         `gorm:"column:dedication_hebrew_name;type:varchar(200)"`
	Message              *string         `gorm:"column:message;type:text"`
	Email                string          `gorm:"column:email;type:varchar(254);not null"`
	Phone                *string         `gorm:"column:phone;type:varchar(32)"`
	Amount               decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency             string          `gorm:"column:currency;type:varchar(3);not null"`
	IsPaid               bool            `gorm:"column:is_paid;not null"`
	Status               string          `gorm:"column:status;type:varchar(16);not null;index"`
	SlotExclusive        bool            `gorm:"column:slot_exclusive;not null"`
	CreatedAt            time.Time       `gorm:"column:created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at"`
}

func (reservationModel) TableName() string { return "reservations" }

func toDomainReservation(m reservationModel) *domain.Reservation {
	r := &domain.Reservation{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Type:          domain.SponsorshipType(m.SponsorshipType),
		SponsorDate:   m.SponsorDate,
		Bucket:        m.Bucket,
		BucketStart:   m.BucketStart.UTC(),
		BucketEnd:     m.BucketEnd.UTC(),
		SponsorName:   m.SponsorName,
		IsAnonymous:   m.IsAnonymous,
		Message:       deref(m.Message),
		Email:         m.Email,
		Phone:         deref(m.Phone),
		Amount:        m.Amount,
		Currency:      m.Currency,
		IsPaid:        m.IsPaid,
		Status:        domain.ReservationStatus(m.Status),
		SlotExclusive: m.SlotExclusive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.DedicationKind != nil {
		r.Dedication = &domain.Dedication{
			Kind:       domain.DedicationKind(*m.DedicationKind),
			Name:       deref(m.DedicationName),
			HebrewName: deref(m.DedicationHebrewName),
		}
	}
	return r
}

func toReservationModel(r *domain.Reservation) reservationModel {
	m := reservationModel{
		ID:              r.ID,
		TenantID:        r.TenantID,
		SponsorshipType: string(r.Type),
		Bucket:          r.Bucket,
		SponsorDate:     r.SponsorDate,
		BucketStart:     r.BucketStart.UTC(),
		BucketEnd:       r.BucketEnd.UTC(),
		SponsorName:     r.SponsorName,
		IsAnonymous:     r.IsAnonymous,
		Message:         ptr(r.Message),
		Email:           r.Email,
		Phone:           ptr(r.Phone),
		Amount:          r.Amount,
		Currency:        r.Currency,
		IsPaid:          r.IsPaid,
		Status:          string(r.Status),
		SlotExclusive:   r.SlotExclusive,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if d := r.Dedication; d != nil {
		kind := string(d.Kind)
		m.DedicationKind = &kind
		m.DedicationName = ptr(d.Name)
		m.DedicationHebrewName = ptr(d.HebrewName)
	}
	return m
}

func activeStatusValues() []string {
	out := make([]string, 0, len(domain.ActiveStatuses))
	for _, s := range domain.ActiveStatuses {
		out = append(out, string(s))
	}
	return out
}

type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// CreateIfAvailable inserts r unless an exclusive slot is already held by an
// active reservation, in which case it returns *domain.SlotConflict. Check and
// insert run in one transaction; on PostgreSQL same-slot creators are serialized
// by a transaction-scoped advisory lock, and the partial unique index catches
// anything that slips past.
func (r *ReservationRepository) CreateIfAvailable(ctx context.Context, res *domain.Reservation) error {
	key := res.SlotKey()
	m := toReservationModel(res)

	var conflictID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !res.SlotExclusive {
			return tx.Create(&m).Error
		}

		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key.String()).Error; err != nil {
				return err
			}
		}

		var held reservationModel
		q := tx.Where("tenant_id = ? AND sponsorship_type = ? AND bucket = ? AND status IN ?",
			key.TenantID, string(key.Type), key.Bucket, activeStatusValues()).
			Order("created_at ASC").
			Limit(1).
			Find(&held)
		if q.Error != nil {
			return q.Error
		}
		if q.RowsAffected > 0 {
			conflictID = held.ID
			return domain.ErrSlotUnavailable
		}

		return tx.Create(&m).Error
	})

	switch {
	case err == nil:
		*res = *toDomainReservation(m)
		return nil
	case errors.Is(err, domain.ErrSlotUnavailable):
		return &domain.SlotConflict{Key: key, ConflictID: conflictID}
	case isUniqueViolation(err):
		held, ferr := r.FindActiveBySlot(ctx, key)
		if ferr != nil {
			return fmt.Errorf("lookup slot holder: %w", ferr)
		}
		id := ""
		if len(held) > 0 {
			id = held[0].ID
		}
		return &domain.SlotConflict{Key: key, ConflictID: id}
	default:
		return err
	}
}

func (r *ReservationRepository) FindActiveBySlot(ctx context.Context, key domain.SlotKey) ([]domain.Reservation, error) {
	var rows []reservationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sponsorship_type = ? AND bucket = ? AND status IN ?",
			key.TenantID, string(key.Type), key.Bucket, activeStatusValues()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainReservations(rows), nil
}

// GetByID loads a reservation. An empty tenantID matches any tenant.
func (r *ReservationRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Reservation, error) {
	var m reservationModel
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainReservation(m), nil
}

// CompareAndSetStatus moves a reservation from `from` to `to` only if it is still in `from`.
func (r *ReservationRepository) CompareAndSetStatus(ctx context.Context, tenantID, id string, from, to domain.ReservationStatus) error {
	res := r.db.WithContext(ctx).
		Model(&reservationModel{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, string(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrStale(ctx, tenantID, id)
	}
	return nil
}

// MarkPaid sets is_paid and moves the status from `from` to `to` in one
// compare-and-swap. It never applies twice: rows already paid do not match.
func (r *ReservationRepository) MarkPaid(ctx context.Context, tenantID, id string, from, to domain.ReservationStatus) error {
	res := r.db.WithContext(ctx).
		Model(&reservationModel{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND is_paid = ?", id, tenantID, string(from), false).
		Updates(map[string]interface{}{
			"is_paid":    true,
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missOrStale(ctx, tenantID, id)
	}
	return nil
}

func (r *ReservationRepository) missOrStale(ctx context.Context, tenantID, id string) error {
	var n int64
	if err := r.db.WithContext(ctx).Model(&reservationModel{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrStaleState
}

// ListInRange returns the tenant's reservations in the given statuses whose
// bucket falls within any of the ranges, oldest first.
func (r *ReservationRepository) ListInRange(ctx context.Context, tenantID string, statuses []domain.ReservationStatus, ranges []domain.BucketRange) ([]domain.Reservation, error) {
	if len(ranges) == 0 || len(statuses) == 0 {
		return []domain.Reservation{}, nil
	}

	st := make([]string, 0, len(statuses))
	for _, s := range statuses {
		st = append(st, string(s))
	}

	clauses := make([]string, 0, len(ranges))
	args := make([]interface{}, 0, len(ranges)*3)
	for _, br := range ranges {
		clauses = append(clauses, "(sponsorship_type = ? AND bucket BETWEEN ? AND ?)")
		args = append(args, string(br.Type), br.From, br.To)
	}

	var rows []reservationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, st).
		Where("("+strings.Join(clauses, " OR ")+")", args...).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainReservations(rows), nil
}

// ListExpirable returns active reservations whose bucket ended at or before now
// and that are not both approved and paid.
func (r *ReservationRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	var rows []reservationModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND bucket_end <= ?", activeStatusValues(), now.UTC()).
		Where("NOT (status = ? AND is_paid = ?)", string(domain.ReservationApproved), true).
		Order("bucket_end ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainReservations(rows), nil
}

func toDomainReservations(rows []reservationModel) []domain.Reservation {
	out := make([]domain.Reservation, 0, len(rows))
	for _, m := range rows {
		out = append(out, *toDomainReservation(m))
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
