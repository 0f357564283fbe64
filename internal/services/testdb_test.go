package services

import (
	"context"
	"testing"

	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/config"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	repos  *repository.Repositories
	svc    *Services
	admin  statemachine.Actor
	leader statemachine.Actor
	alice  statemachine.Actor
	bob    statemachine.Actor
	ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
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
	))

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:          "test-secret",
		JWTExpirationHours: 1,
		DefaultPassword:    "123456",
	}
	repos := repository.NewRepositories(db)
	env := &testEnv{
		db:    db,
		repos: repos,
		svc:   NewServices(repos, nil, store, cache.NewMemoryCache(), cfg),
		ctx:   context.Background(),
	}
	env.admin = env.user(t, "admin", models.RoleAdmin)
	env.leader = env.user(t, "leader", models.RoleLeader)
	env.alice = env.user(t, "alice", models.RoleEmployee)
	env.bob = env.user(t, "bob", models.RoleEmployee)
	return env
}

func (e *testEnv) user(t *testing.T, username, role string) statemachine.Actor {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Role: role}
	require.NoError(t, e.db.Create(u).Error)
	return statemachine.Actor{ID: u.ID, Role: u.Role}
}

func (e *testEnv) setAutoApproval(t *testing.T, on bool) {
	t.Helper()
	value := "false"
	if on {
		value = "true"
	}
	require.NoError(t, e.svc.Setting.Update(e.ctx, e.admin.ID, map[string]string{models.SettingAutoApproval: value}))
}

func (e *testEnv) createValve(t *testing.T, actor statemachine.Actor, tag string, submit bool, ledgerID *uint) *models.Valve {
	t.Helper()
	v, err := e.svc.Valve.Create(e.ctx, actor, ValveInput{
		Fields:   map[string]string{"tag": tag, "name": "调节阀 " + tag},
		LedgerID: ledgerID,
		Submit:   submit,
	})
	require.NoError(t, err)
	return v
}

func (e *testEnv) ledgerStatus(t *testing.T, id uint) string {
	t.Helper()
	ledger, err := e.repos.Ledger.FindByID(e.ctx, id)
	require.NoError(t, err)
	return ledger.Status
}
