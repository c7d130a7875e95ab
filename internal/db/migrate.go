package db

import (
	"fmt"

	"github.com/wealthvault/backend/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Asset{},
		&models.PortfolioHolding{},
		&models.Nominee{},
		&models.DeadManSwitch{},
		&models.ScheduledMessage{},
		&models.NetWorthSnapshot{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dead_man_switches_active
		ON dead_man_switches (id)
		WHERE is_active = true
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create active switch index: %w", errIndex)
	}
	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_scheduled_messages_failed_retry
		ON scheduled_messages (retry_count)
		WHERE status = 'failed'
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create failed message index: %w", errIndex)
	}
	return nil
}
