package services

import (
	"testing"
	"time"

	"github.com/plantops/valve-ledger-api/internal/jobs"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobService_RunNowReconcilesLedgers(t *testing.T) {
	env := newTestEnv(t)
	worker := jobs.NewWorker(1)
	svc := NewJobService(worker, env.svc.Ledger, env.svc.Valve, env.svc.Auth, env.svc.Notification, 90)

	now := time.Now()
	stale := &models.Ledger{Name: "一期", CreatedBy: env.alice.ID, Status: models.ValveStatusApproved, ApprovedAt: &now}
	require.NoError(t, env.db.Create(stale).Error)

	require.NoError(t, svc.RunNow(JobLedgerReconcile))
	worker.Shutdown()

	var reloaded models.Ledger
	require.NoError(t, env.db.First(&reloaded, stale.ID).Error)
	assert.Equal(t, models.ValveStatusDraft, reloaded.Status, "an empty ledger is a draft")
	assert.Nil(t, reloaded.ApprovedAt)
	assert.Equal(t, int64(1), svc.GetStatus().CompletedJobs)
}

func TestJobService_RunNowRejectsUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	worker := jobs.NewWorker(1)
	t.Cleanup(worker.Shutdown)
	svc := NewJobService(worker, env.svc.Ledger, env.svc.Valve, env.svc.Auth, env.svc.Notification, 90)

	assert.ErrorIs(t, svc.RunNow("rebuild_everything"), ErrInvalidInput)
}

func TestJobService_HousekeepingPurgesOldReadNotifications(t *testing.T) {
	env := newTestEnv(t)
	svc := NewJobService(nil, env.svc.Ledger, env.svc.Valve, env.svc.Auth, env.svc.Notification, 90)

	old := time.Now().Add(-40 * 24 * time.Hour)
	recent := time.Now()
	require.NoError(t, env.db.Create(&models.Notification{UserID: env.alice.ID, Title: "a", Message: "old", ReadAt: &old}).Error)
	require.NoError(t, env.db.Create(&models.Notification{UserID: env.alice.ID, Title: "b", Message: "recent", ReadAt: &recent}).Error)
	require.NoError(t, env.db.Create(&models.Notification{UserID: env.alice.ID, Title: "c", Message: "unread"}).Error)

	require.NoError(t, svc.Housekeeping(env.ctx))

	var left int64
	require.NoError(t, env.db.Model(&models.Notification{}).Count(&left).Error)
	assert.Equal(t, int64(2), left)
}
