package repository

import (
	"context"
	"testing"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// a single connection keeps the in-memory database alive across queries
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(
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
	)
	require.NoError(t, err)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "x", Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedValve(t *testing.T, db *gorm.DB, tag, status string, creatorID uint, ledgerID *uint) *models.Valve {
	t.Helper()
	valve := &models.Valve{Tag: tag, Name: "调节阀 " + tag, Status: status, CreatedBy: creatorID, LedgerID: ledgerID}
	require.NoError(t, NewValveRepository(db).Create(context.Background(), valve))
	return valve
}
