package database

import (
	"fmt"

	"forex-trading-bot-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open creates a new database connection and performs auto-migration.
// TranslateError is enabled so unique-constraint violations surface as
// gorm.ErrDuplicatedKey, which the ledger and alert services rely on for
// write-time uniqueness enforcement.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// sqlite allows one writer; a single pooled connection avoids
	// "database is locked" errors under concurrent evaluation.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema for all financial entities.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Account{},
		&models.Order{},
		&models.Trade{},
		&models.Transaction{},
		&models.Alert{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// At most one active alert per (user, pair). The partial index enforces
	// the rule at write time; a second insert fails with a unique-constraint
	// violation instead of relying on a racy pre-check.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_active_pair
		ON alerts(user_id, base_currency, quote_currency) WHERE active = true AND deleted_at IS NULL`).Error
	if err != nil {
		return fmt.Errorf("failed to create active-alert index: %w", err)
	}

	return nil
}
