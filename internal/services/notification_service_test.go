package services

import (
	"testing"

	"github.com/plantops/valve-ledger-api/internal/jobs"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_DispatchNotifiesReviewersAndCreator(t *testing.T) {
	env := newTestEnv(t)
	worker := jobs.NewWorker(1)
	svc := NewNotificationService(env.repos.Notification, env.repos.User, worker)

	svc.Dispatch([]ValveEvent{
		{Action: models.ActionSubmit, ValveID: 7, ValveTag: "FV-101", CreatorID: env.alice.ID, ActorID: env.alice.ID},
		{Action: models.ActionReject, ValveID: 7, ValveTag: "FV-101", CreatorID: env.alice.ID, ActorID: env.leader.ID, Comment: "缺少型号"},
		{Action: models.ActionApprove, ValveID: 8, ValveTag: "FV-102", CreatorID: env.leader.ID, ActorID: env.leader.ID},
	})
	worker.Shutdown()

	for _, reviewer := range []uint{env.admin.ID, env.leader.ID} {
		items, total, err := svc.FindByUser(env.ctx, reviewer, repository.NewListQuery())
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, models.NotificationTypeValveSubmitted, *items[0].NotificationType)
	}

	items, _, err := svc.FindByUser(env.ctx, env.alice.ID, repository.NewListQuery())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.NotificationTypeValveRejected, *items[0].NotificationType)
	assert.Contains(t, items[0].Message, "缺少型号")
	require.NotNil(t, items[0].ValveID)
	assert.Equal(t, uint(7), *items[0].ValveID)

	_, total, err := svc.FindByUser(env.ctx, env.bob.ID, repository.NewListQuery())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestNotificationService_ReadAndDeleteAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t)
	svc := env.svc.Notification
	require.NoError(t, svc.NotifyUser(env.ctx, env.alice.ID, "导入完成", "导入 3 条", models.NotificationTypeImportFinished))
	require.NoError(t, svc.NotifyUser(env.ctx, env.alice.ID, "导入完成", "导入 5 条", models.NotificationTypeImportFinished))

	items, _, err := svc.FindByUser(env.ctx, env.alice.ID, repository.NewListQuery())
	require.NoError(t, err)
	require.Len(t, items, 2)
	first := items[0].ID

	_, err = svc.MarkAsRead(env.ctx, env.bob.ID, first)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(env.ctx, env.bob.ID, first), ErrNotFound)

	read, err := svc.MarkAsRead(env.ctx, env.alice.ID, first)
	require.NoError(t, err)
	assert.True(t, read.IsRead())

	unread, err := svc.CountUnread(env.ctx, env.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	query := repository.NewListQuery()
	query.Filters["status"] = "read"
	_, total, err := svc.FindByUser(env.ctx, env.alice.ID, query)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	require.NoError(t, svc.MarkAllAsRead(env.ctx, env.alice.ID))
	unread, err = svc.CountUnread(env.ctx, env.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	require.NoError(t, svc.Delete(env.ctx, env.alice.ID, first))
	_, total, err = svc.FindByUser(env.ctx, env.alice.ID, repository.NewListQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
