package database

import (
	"fmt"
	"os"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	pkgLogger "github.com/plantops/valve-ledger-api/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the PostgreSQL database
func Connect(databaseURL string) (*gorm.DB, error) {
	logLevel := logger.Warn
	if os.Getenv("ENVIRONMENT") == "production" {
		logLevel = logger.Error
	}

	gormLogger := pkgLogger.NewGormLogger(
		logLevel,
		200*time.Millisecond,
	)

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         gormLogger,
		PrepareStmt:    true,
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Models lists every table the API owns, in dependency order
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Ledger{},
		&models.Valve{},
		&models.ValveAttachment{},
		&models.ApprovalLog{},
		&models.Setting{},
		&models.ValvePhoto{},
		&models.MaintenanceRecord{},
		&models.Notification{},
		&models.RefreshToken{},
		&models.AuditLog{},
	}
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	pkgLogger.Info("Database migrations completed")
	return nil
}

// Close releases the connection pool
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		pkgLogger.Error("Error getting database instance", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		pkgLogger.Error("Error closing database connection", "error", err)
	}
}
