package statemachine

import (
	"context"
	"testing"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValveFSM_SubmitWithoutAutoApproval(t *testing.T) {
	valve := &models.Valve{Status: models.ValveStatusDraft, CreatedBy: 7}

	action, err := NewValveFSM(valve).Submit(context.Background(), 7, false, time.Now())

	require.NoError(t, err)
	assert.Equal(t, models.ActionSubmit, action)
	assert.Equal(t, models.ValveStatusPending, valve.Status)
	assert.Nil(t, valve.ApprovedBy)
}

func TestValveFSM_SubmitWithAutoApproval(t *testing.T) {
	valve := &models.Valve{Status: models.ValveStatusDraft, CreatedBy: 7}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	action, err := NewValveFSM(valve).Submit(context.Background(), 7, true, now)

	require.NoError(t, err)
	assert.Equal(t, models.ActionApprove, action)
	assert.Equal(t, models.ValveStatusApproved, valve.Status)
	require.NotNil(t, valve.ApprovedBy)
	assert.Equal(t, uint(7), *valve.ApprovedBy)
	assert.Equal(t, now, *valve.ApprovedAt)
}

func TestValveFSM_SubmitRequiresDraft(t *testing.T) {
	for _, status := range []string{models.ValveStatusPending, models.ValveStatusApproved, models.ValveStatusRejected} {
		valve := &models.Valve{Status: status}
		_, err := NewValveFSM(valve).Submit(context.Background(), 1, false, time.Now())
		assert.Error(t, err, status)
		assert.Equal(t, status, valve.Status)
	}
}

func TestValveFSM_ApproveAndReject(t *testing.T) {
	ctx := context.Background()

	approved := &models.Valve{Status: models.ValveStatusPending}
	require.NoError(t, NewValveFSM(approved).Approve(ctx, 3, time.Now()))
	assert.Equal(t, models.ValveStatusApproved, approved.Status)
	assert.Equal(t, uint(3), *approved.ApprovedBy)

	rejected := &models.Valve{Status: models.ValveStatusPending}
	require.NoError(t, NewValveFSM(rejected).Reject(ctx))
	assert.Equal(t, models.ValveStatusRejected, rejected.Status)

	draft := &models.Valve{Status: models.ValveStatusDraft}
	assert.Error(t, NewValveFSM(draft).Approve(ctx, 3, time.Now()))
	assert.Error(t, NewValveFSM(draft).Reject(ctx))
}

func TestValveFSM_EditResetsToDraft(t *testing.T) {
	approver := uint(2)
	now := time.Now()
	valve := &models.Valve{Status: models.ValveStatusApproved, ApprovedBy: &approver, ApprovedAt: &now}

	require.NoError(t, NewValveFSM(valve).Edit(context.Background()))

	assert.Equal(t, models.ValveStatusDraft, valve.Status)
	assert.Nil(t, valve.ApprovedBy)
	assert.Nil(t, valve.ApprovedAt)
}

func TestValveFSM_EditDraftIsNoop(t *testing.T) {
	valve := &models.Valve{Status: models.ValveStatusDraft}
	require.NoError(t, NewValveFSM(valve).Edit(context.Background()))
	assert.Equal(t, models.ValveStatusDraft, valve.Status)
}

func TestValveFSM_EditPendingFails(t *testing.T) {
	valve := &models.Valve{Status: models.ValveStatusPending}
	assert.Error(t, NewValveFSM(valve).Edit(context.Background()))
	assert.Equal(t, models.ValveStatusPending, valve.Status)
}
