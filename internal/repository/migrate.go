package repository

import (
	"fmt"

	"gorm.io/gorm"
)

// AutoMigrate creates the schema, including the partial unique index that
// enforces one active exclusive reservation per slot.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&tenantSettingsModel{},
		&reservationModel{},
		&settlementModel{},
		&idempotencyKeyModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON reservations (tenant_id, sponsorship_type, bucket) WHERE slot_exclusive = true AND status IN ('Pending', 'Approved')`,
		slotExclusiveIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s: %w", slotExclusiveIndex, err)
	}
	return nil
}
