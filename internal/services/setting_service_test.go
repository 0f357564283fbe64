package services

import (
	"errors"
	"testing"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingService_DefaultsAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	settings := env.svc.Setting

	assert.False(t, settings.AutoApproval(env.ctx))
	assert.Equal(t, "123456", settings.DefaultPassword(env.ctx))
	assert.Equal(t, 20, settings.PageSize(env.ctx))

	require.NoError(t, settings.Update(env.ctx, env.admin.ID, map[string]string{
		models.SettingAutoApproval: "on",
		models.SettingPageSize:     " 50 ",
	}))

	assert.True(t, settings.AutoApproval(env.ctx), "cached value is invalidated on update")
	assert.Equal(t, 50, settings.PageSize(env.ctx))
	assert.Equal(t, "true", settings.All(env.ctx)[models.SettingAutoApproval])
}

func TestSettingService_UpdateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		values map[string]string
	}{
		{"bad bool", map[string]string{models.SettingAutoApproval: "maybe"}},
		{"page size zero", map[string]string{models.SettingPageSize: "0"}},
		{"page size text", map[string]string{models.SettingPageSize: "many"}},
		{"short password", map[string]string{models.SettingDefaultPassword: "123"}},
		{"blank name", map[string]string{models.SettingSystemName: "  "}},
		{"unknown key", map[string]string{"theme": "dark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.svc.Setting.Update(env.ctx, env.admin.ID, tt.values)
			assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
		})
	}

	assert.False(t, env.svc.Setting.AutoApproval(env.ctx))
}

func TestSettingService_EnsureDefaultsKeepsExisting(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.repos.Setting.Upsert(env.ctx, models.SettingPageSize, "30"))

	require.NoError(t, env.svc.Setting.EnsureDefaults(env.ctx))

	stored, err := env.repos.Setting.Get(env.ctx, models.SettingPageSize)
	require.NoError(t, err)
	assert.Equal(t, "30", stored.Value)
	name, err := env.repos.Setting.Get(env.ctx, models.SettingSystemName)
	require.NoError(t, err)
	assert.NotEmpty(t, name.Value)
}
