package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type idempotencyKeyModel struct {
	Scope         string    `gorm:"column:scope;primaryKey;type:varchar(64)"`
	Key           string    `gorm:"column:idempotency_key;primaryKey;type:varchar(128)"`
	ReservationID string    `gorm:"column:reservation_id;type:varchar(36)"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (idempotencyKeyModel) TableName() string { return "idempotency_keys" }

// IdempotencyRepository remembers which reservation a client key produced.
type IdempotencyRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, now: time.Now}
}

// Begin claims (scope, key). When the key is already claimed it returns the
// stored reservation id, which is empty while the first request is in flight.
func (r *IdempotencyRepository) Begin(ctx context.Context, scope, key string, ttl time.Duration) (string, bool, error) {
	now := r.now().UTC()
	var (
		reservationID string
		started       bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scope = ? AND idempotency_key = ? AND expires_at <= ?", scope, key, now).
			Delete(&idempotencyKeyModel{}).Error; err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&idempotencyKeyModel{
			Scope:     scope,
			Key:       key,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			started = true
			return nil
		}

		var m idempotencyKeyModel
		if err := tx.Where("scope = ? AND idempotency_key = ?", scope, key).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		reservationID = m.ReservationID
		return nil
	})
	return reservationID, started, err
}

func (r *IdempotencyRepository) Complete(ctx context.Context, scope, key, reservationID string) error {
	return r.db.WithContext(ctx).
		Model(&idempotencyKeyModel{}).
		Where("scope = ? AND idempotency_key = ?", scope, key).
		Update("reservation_id", reservationID).Error
}

// Abort releases a claim whose request failed so the client can retry.
func (r *IdempotencyRepository) Abort(ctx context.Context, scope, key string) error {
	return r.db.WithContext(ctx).
		Where("scope = ? AND idempotency_key = ? AND reservation_id = ?", scope, key, "").
		Delete(&idempotencyKeyModel{}).Error
}

// PurgeExpired deletes keys past their expiry.
func (r *IdempotencyRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.now().UTC()).
		Delete(&idempotencyKeyModel{})
	return res.RowsAffected, res.Error
}
