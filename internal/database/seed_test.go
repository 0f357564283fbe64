package database

import (
	"context"
	"testing"

	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSeed_IsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, Migrate(db))

	ctx := context.Background()
	repos := repository.NewRepositories(db)
	settings := services.NewSettingService(repos.Setting, cache.NewMemoryCache(), services.NewAuditService(db),
		services.DefaultSettings(true, "654321"))

	for i := 0; i < 2; i++ {
		require.NoError(t, Seed(ctx, repos, settings, true))
	}

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	admin, err := repos.User.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin123")))

	leader, err := repos.User.FindByUsername(ctx, "leader")
	require.NoError(t, err)
	assert.Equal(t, models.RoleLeader, leader.Role)

	assert.True(t, settings.AutoApproval(ctx))
	assert.Equal(t, "654321", settings.DefaultPassword(ctx))
}
