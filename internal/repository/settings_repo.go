package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parnass/internal/domain"
)

type tenantSettingsModel struct {
	TenantID              string          `gorm:"column:tenant_id;primaryKey;type:varchar(64)"`
	DailyEnabled          bool            `gorm:"column:daily_enabled;not null"`
	MonthlyEnabled        bool            `gorm:"column:monthly_enabled;not null"`
	YearlyEnabled         bool            `gorm:"column:yearly_enabled;not null"`
	DailyPrice            decimal.Decimal `gorm:"column:daily_price;type:numeric(12,2);not null"`
	MonthlyPrice          decimal.Decimal `gorm:"column:monthly_price;type:numeric(12,2);not null"`
	YearlyPrice           decimal.Decimal `gorm:"column:yearly_price;type:numeric(12,2);not null"`
	Currency              string          `gorm:"column:currency;type:varchar(3);not null"`
	RequireApproval       bool            `gorm:"column:require_approval;not null"`
	AllowMultipleSponsors bool            `gorm:"column:allow_multiple_sponsors;not null"`
	Timezone              string          `gorm:"column:timezone;type:varchar(64)"`
	CreatedAt             time.Time       `gorm:"column:created_at"`
	UpdatedAt             time.Time       `gorm:"column:updated_at"`
}

func (tenantSettingsModel) TableName() string { return "tenant_sponsorship_settings" }

func toDomainSettings(m tenantSettingsModel) *domain.TenantSponsorshipSettings {
	return &domain.TenantSponsorshipSettings{
		TenantID:              m.TenantID,
		DailyEnabled:          m.DailyEnabled,
		MonthlyEnabled:        m.MonthlyEnabled,
		YearlyEnabled:         m.YearlyEnabled,
		DailyPrice:            m.DailyPrice,
		MonthlyPrice:          m.MonthlyPrice,
		YearlyPrice:           m.YearlyPrice,
		Currency:              m.Currency,
		RequireApproval:       m.RequireApproval,
		AllowMultipleSponsors: m.AllowMultipleSponsors,
		Timezone:              m.Timezone,
		UpdatedAt:             m.UpdatedAt,
	}
}

func toSettingsModel(s *domain.TenantSponsorshipSettings) tenantSettingsModel {
	return tenantSettingsModel{
		TenantID:              s.TenantID,
		DailyEnabled:          s.DailyEnabled,
		MonthlyEnabled:        s.MonthlyEnabled,
		YearlyEnabled:         s.YearlyEnabled,
		DailyPrice:            s.DailyPrice,
		MonthlyPrice:          s.MonthlyPrice,
		YearlyPrice:           s.YearlyPrice,
		Currency:              s.Currency,
		RequireApproval:       s.RequireApproval,
		AllowMultipleSponsors: s.AllowMultipleSponsors,
		Timezone:              s.Timezone,
	}
}

// SettingsRepository is the database-backed settings provider. Every call
// reads the current row.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, tenantID string) (*domain.TenantSponsorshipSettings, error) {
	var m tenantSettingsModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return toDomainSettings(m), nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, s *domain.TenantSponsorshipSettings) error {
	m := toSettingsModel(s)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"daily_enabled", "monthly_enabled", "yearly_enabled",
			"daily_price", "monthly_price", "yearly_price",
			"currency", "require_approval", "allow_multiple_sponsors",
			"timezone", "updated_at",
		}),
	}).Create(&m).Error
}
