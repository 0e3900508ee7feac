package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"parnass/internal/domain"
)

type settlementModel struct {
	ID            string            `gorm:"column:id;primaryKey;type:varchar(36)"`
	ReservationID string            `gorm:"column:reservation_id;type:varchar(36);not null;index"`
	TenantID      string            `gorm:"column:tenant_id;type:varchar(64);not null"`
	Provider      string            `gorm:"column:provider;type:varchar(20);not null"`
	SessionID     string            `gorm:"column:session_id;type:varchar(255);index"`
	CheckoutURL   string            `gorm:"column:checkout_url;type:text"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      string            `gorm:"column:currency;type:varchar(3);not null"`
	Status        string            `gorm:"column:status;type:varchar(20);not null;index"`
	Metadata      datatypes.JSONMap `gorm:"column:metadata"`
	RawPayload    datatypes.JSON    `gorm:"column:raw_payload"`
	SettledAt     *time.Time        `gorm:"column:settled_at"`
	CreatedAt     time.Time         `gorm:"column:created_at"`
	UpdatedAt     time.Time         `gorm:"column:updated_at"`
}

func (settlementModel) TableName() string { return "settlements" }

func toDomainSettlement(m settlementModel) *domain.Settlement {
	s := &domain.Settlement{
		ID:            m.ID,
		ReservationID: m.ReservationID,
		TenantID:      m.TenantID,
		Provider:      m.Provider,
		SessionID:     m.SessionID,
		CheckoutURL:   m.CheckoutURL,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        domain.SettlementStatus(m.Status),
		RawPayload:    []byte(m.RawPayload),
		SettledAt:     m.SettledAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		s.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			if str, ok := v.(string); ok {
				s.Metadata[k] = str
			}
		}
	}
	return s
}

func toSettlementModel(s *domain.Settlement) settlementModel {
	m := settlementModel{
		ID:            s.ID,
		ReservationID: s.ReservationID,
		TenantID:      s.TenantID,
		Provider:      s.Provider,
		SessionID:     s.SessionID,
		CheckoutURL:   s.CheckoutURL,
		Amount:        s.Amount,
		Currency:      s.Currency,
		Status:        string(s.Status),
		SettledAt:     s.SettledAt,
		CreatedAt:     s.CreatedAt,
	}
	if len(s.Metadata) > 0 {
		m.Metadata = datatypes.JSONMap{}
		for k, v := range s.Metadata {
			m.Metadata[k] = v
		}
	}
	if len(s.RawPayload) > 0 {
		m.RawPayload = datatypes.JSON(s.RawPayload)
	}
	return m
}

type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(ctx context.Context, s *domain.Settlement) error {
	m := toSettlementModel(s)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return err
	}
	*s = *toDomainSettlement(m)
	return nil
}

func (r *SettlementRepository) GetByID(ctx context.Context, id string) (*domain.Settlement, error) {
	var m settlementModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainSettlement(m), nil
}

// RecordOutcome closes an open settlement with the provider outcome.
// Settlements already closed are left alone so replays keep the first
// recorded outcome.
func (r *SettlementRepository) RecordOutcome(ctx context.Context, settlementID string, status domain.SettlementStatus, rawPayload []byte, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     string(status),
		"settled_at": at.UTC(),
	}
	if len(rawPayload) > 0 {
		updates["raw_payload"] = datatypes.JSON(rawPayload)
	}
	res := r.db.WithContext(ctx).Model(&settlementModel{}).
		Where("id = ? AND status = ?", settlementID, string(domain.SettlementCreated)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LatestOpen returns the newest settlement of the reservation that still
// awaits an outcome.
func (r *SettlementRepository) LatestOpen(ctx context.Context, reservationID string) (*domain.Settlement, error) {
	var m settlementModel
	err := r.db.WithContext(ctx).
		Where("reservation_id = ? AND status = ?", reservationID, string(domain.SettlementCreated)).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainSettlement(m), nil
}

func (r *SettlementRepository) CountOpen(ctx context.Context, reservationID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&settlementModel{}).
		Where("reservation_id = ? AND status = ?", reservationID, string(domain.SettlementCreated)).
		Count(&n).Error
	return n, err
}
