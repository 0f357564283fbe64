package services

import (
	"testing"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardService_CountsAndCache(t *testing.T) {
	env := newTestEnv(t)
	env.createValve(t, env.alice, "DB-1", true, nil)
	env.createValve(t, env.alice, "DB-2", false, nil)

	dash, err := env.svc.Dashboard.Get(env.ctx, env.leader)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dash.Valves.Total)
	assert.Equal(t, int64(1), dash.PendingApproval)
	assert.Equal(t, int64(1), dash.Transitions[models.ActionSubmit])

	mine, err := env.svc.Dashboard.Get(env.ctx, env.bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), mine.Valves.Total)
	assert.Zero(t, mine.PendingApproval)

	// counts are cached, unread notifications are not
	env.createValve(t, env.alice, "DB-3", true, nil)
	require.NoError(t, env.svc.Notification.NotifyUser(env.ctx, env.leader.ID, "t", "m", models.NotificationTypeImportFinished))

	dash, err = env.svc.Dashboard.Get(env.ctx, env.leader)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.PendingApproval)
	assert.Equal(t, int64(1), dash.UnreadCount)
}

func TestNotificationService_NotifiesOnTransitions(t *testing.T) {
	env := newTestEnv(t)
	v := env.createValve(t, env.alice, "NT-1", true, nil)

	err := env.svc.Notification.notify(env.ctx, ValveEvent{
		Action: models.ActionSubmit, ValveID: v.ID, ValveTag: v.Tag, CreatorID: env.alice.ID, ActorID: env.alice.ID,
	})
	require.NoError(t, err)

	for _, reviewer := range []uint{env.admin.ID, env.leader.ID} {
		n, err := env.svc.Notification.CountUnread(env.ctx, reviewer)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}

	err = env.svc.Notification.notify(env.ctx, ValveEvent{
		Action: models.ActionReject, ValveID: v.ID, ValveTag: v.Tag, CreatorID: env.alice.ID, ActorID: env.leader.ID, Comment: "缺铭牌",
	})
	require.NoError(t, err)

	list, total, err := env.svc.Notification.FindByUser(env.ctx, env.alice.ID, repository.NewListQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Contains(t, list[0].Message, "缺铭牌")

	_, err = env.svc.Notification.MarkAsRead(env.ctx, env.bob.ID, list[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	read, err := env.svc.Notification.MarkAsRead(env.ctx, env.alice.ID, list[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead())
}
