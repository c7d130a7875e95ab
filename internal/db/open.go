package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "wealthvault.db"

// Open connects to PostgreSQL or SQLite depending on the DSN.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	var dialector gorm.Dialector
	switch DialectForDSN(dsn) {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(BuildSQLiteDSN(dsn))
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return conn, nil
}

// Close releases the underlying connection pool.
func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("db: get sql db: %w", err)
	}
	return sqlDB.Close()
}
