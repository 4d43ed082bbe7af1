package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReadOnlyDB serves the reconciler's periodic whole-store symbol scans. The
// database user for this connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection. It runs no
// migrations. When no replica DSN is configured it falls back to MainDB so a
// single-database deployment keeps working.
func InitReadOnlyDB() error {
	config := GetConfig()

	if config.DatabaseURLReadOnly == "" {
		if MainDB == nil {
			return fmt.Errorf("InitReadOnlyDB called before InitMainDB with no replica DSN")
		}
		ReadOnlyDB = MainDB
		logrus.Info("[database] no read-only DSN configured, reusing MainDB")
		return nil
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to ReadOnlyDB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	ReadOnlyDB = db
	logrus.Info("[database] ReadOnlyDB connection established")

	return nil
}
