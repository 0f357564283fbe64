package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/valves")
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.StorageDriver)
	assert.Equal(t, "dev-secret-change-in-production", cfg.JWTSecret)
	assert.False(t, cfg.AutoApprovalDefault)
	assert.Zero(t, cfg.StaleDraftDays, "stale draft cleanup is opt-in")
}

func TestLoad_ParsesTypedValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/valves")
	t.Setenv("AUTO_APPROVAL_DEFAULT", "true")
	t.Setenv("WORKER_COUNT", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AutoApprovalDefault)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_S3NeedsBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/valves")
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionNeedsJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/valves")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}
