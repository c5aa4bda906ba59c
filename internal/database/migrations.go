package database

import (
	"fmt"

	"gorm.io/gorm"
)

// MigrateSchema creates or updates the tables.
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&PropertyRecord{}, &UnitRecord{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Region facets match on location text
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_properties_location ON properties(location)`).Error; err != nil {
		return fmt.Errorf("failed to create location index: %w", err)
	}
	return nil
}
