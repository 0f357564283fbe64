package services

import (
	"errors"
	"testing"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLedger(t *testing.T, env *testEnv, name string) uint {
	t.Helper()
	l, err := env.svc.Ledger.Create(env.ctx, env.alice, LedgerInput{Name: name})
	require.NoError(t, err)
	return l.Ledger.ID
}

func TestLedgerService_AggregateFollowsChildren(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "一联合装置")
	assert.Equal(t, models.ValveStatusDraft, env.ledgerStatus(t, id))

	first, err := env.svc.Ledger.AddValve(env.ctx, env.alice, id, ValveInput{Fields: map[string]string{"tag": "LV-1"}})
	require.NoError(t, err)
	_, err = env.svc.Ledger.AddValve(env.ctx, env.alice, id, ValveInput{Fields: map[string]string{"tag": "LV-2"}})
	require.NoError(t, err)

	result, err := env.svc.Ledger.Submit(env.ctx, env.alice, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, models.ValveStatusPending, env.ledgerStatus(t, id))

	_, err = env.svc.Ledger.Approve(env.ctx, env.leader, id, "")
	require.NoError(t, err)
	ledger, err := env.svc.Ledger.Get(env.ctx, env.bob, id)
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusApproved, ledger.Ledger.Status)
	assert.NotNil(t, ledger.Ledger.ApprovedAt)
	assert.Equal(t, int64(2), ledger.Counts.Approved)

	// editing one child pulls the ledger back to draft
	_, err = env.svc.Valve.Update(env.ctx, env.alice, first.ID, ValveInput{Fields: map[string]string{"remark": "更换"}})
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusDraft, env.ledgerStatus(t, id))
}

func TestLedgerService_RejectedWinsOverApproved(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "二联合")
	a := env.createValve(t, env.alice, "LV-10", true, &id)
	b := env.createValve(t, env.alice, "LV-11", true, &id)

	_, err := env.svc.Valve.Approve(env.ctx, env.leader, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusPending, env.ledgerStatus(t, id))

	_, err = env.svc.Valve.Reject(env.ctx, env.leader, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusRejected, env.ledgerStatus(t, id))
}

func TestLedgerService_DeleteRefusedWhilePending(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "储运")
	v := env.createValve(t, env.alice, "LV-20", true, &id)

	err := env.svc.Ledger.Delete(env.ctx, env.alice, id)
	assert.ErrorIs(t, err, ErrLedgerHasPending)

	_, err = env.svc.Ledger.BatchSave(env.ctx, env.alice, id, []LedgerValveItem{{Data: map[string]string{"tag": "LV-21"}}})
	assert.ErrorIs(t, err, ErrLedgerHasPending)

	_, err = env.svc.Ledger.Reject(env.ctx, env.leader, id, "退回")
	require.NoError(t, err)

	err = env.svc.Ledger.Delete(env.ctx, env.bob, id)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.svc.Ledger.Delete(env.ctx, env.alice, id))

	_, err = env.repos.Ledger.FindByID(env.ctx, id)
	assert.True(t, repository.IsNotFound(err))
	_, err = env.repos.Valve.FindByID(env.ctx, v.ID)
	assert.True(t, repository.IsNotFound(err))

	logs, err := env.repos.ApprovalLog.FindByValve(env.ctx, v.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestLedgerService_SubmitNothing(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "空台账")

	_, err := env.svc.Ledger.Submit(env.ctx, env.alice, id, nil)
	assert.ErrorIs(t, err, ErrNothingToSubmit)
}

func TestLedgerService_BatchSave(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "公用工程")
	env.createValve(t, env.bob, "LV-EXIST", false, nil)
	existing, err := env.svc.Ledger.AddValve(env.ctx, env.alice, id, ValveInput{Fields: map[string]string{"tag": "LV-30"}})
	require.NoError(t, err)

	result, err := env.svc.Ledger.BatchSave(env.ctx, env.alice, id, []LedgerValveItem{
		{ID: &existing.ID, Data: map[string]string{"name": "主汽阀"}, Attachments: []models.AttachmentInput{{Type: "定位器", Model: "SVI II"}}},
		{Data: map[string]string{"tag": "LV-31"}},
		{Data: map[string]string{"tag": "LV-31"}},
		{Data: map[string]string{"tag": "LV-EXIST"}},
		{Data: map[string]string{"tag": "LV-32", "colour": "red"}},
	})
	require.NoError(t, err)
	assert.Len(t, result.SavedIDs, 2)
	require.Len(t, result.Errors, 3)
	assert.Equal(t, 2, result.Errors[0].Index)
	assert.Equal(t, 3, result.Errors[1].Index)
	assert.Equal(t, ErrDuplicate.Error(), result.Errors[1].Error)
	assert.Equal(t, 4, result.Errors[2].Index)

	saved, err := env.repos.Valve.FindByID(env.ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "主汽阀", saved.Name)
	assert.Equal(t, "LV-30", saved.Tag)
	require.Len(t, saved.Attachments, 1)
	assert.Equal(t, "定位器", saved.Attachments[0].Type)

	_, err = env.svc.Ledger.BatchSave(env.ctx, env.bob, id, []LedgerValveItem{{Data: map[string]string{"tag": "LV-33"}}})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLedgerService_BatchDeleteValves(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "热电")
	other := newLedger(t, env, "水处理")
	a := env.createValve(t, env.alice, "LV-40", false, &id)
	b := env.createValve(t, env.alice, "LV-41", false, &other)

	result, err := env.svc.Ledger.BatchDeleteValves(env.ctx, env.alice, id, []uint{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, b.ID, result.Skipped[0].ID)
}

func TestLedgerService_BatchRowsRespectCreator(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "催化")
	leaders := env.createValve(t, env.leader, "LV-P1", false, &id)
	own := env.createValve(t, env.alice, "LV-P2", false, &id)

	saved, err := env.svc.Ledger.BatchSave(env.ctx, env.alice, id, []LedgerValveItem{
		{ID: &leaders.ID, Data: map[string]string{"name": "alice edit"}},
		{ID: &own.ID, Data: map[string]string{"name": "自己的"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{own.ID}, saved.SavedIDs)
	require.Len(t, saved.Errors, 1)
	assert.Equal(t, 0, saved.Errors[0].Index)
	assert.Equal(t, statemachine.MsgNoPermissionEdit, saved.Errors[0].Error)

	untouched, err := env.repos.Valve.FindByID(env.ctx, leaders.ID)
	require.NoError(t, err)
	assert.Equal(t, "调节阀 LV-P1", untouched.Name)

	deleted, err := env.svc.Ledger.BatchDeleteValves(env.ctx, env.alice, id, []uint{leaders.ID, own.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted.Processed)
	require.Len(t, deleted.Skipped, 1)
	assert.Equal(t, leaders.ID, deleted.Skipped[0].ID)
	assert.Equal(t, statemachine.MsgNoPermissionDelete, deleted.Skipped[0].Reason)

	_, err = env.repos.Valve.FindByID(env.ctx, leaders.ID)
	assert.NoError(t, err)
}

func TestLedgerService_DeleteKeepsApprovedAndForeignDrafts(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "加氢")
	approved := env.createValve(t, env.alice, "LV-A1", true, &id)
	_, err := env.svc.Valve.Approve(env.ctx, env.leader, approved.ID, "")
	require.NoError(t, err)
	foreign := env.createValve(t, env.leader, "LV-A2", false, &id)
	draft := env.createValve(t, env.alice, "LV-A3", false, &id)

	err = env.svc.Ledger.Delete(env.ctx, env.alice, id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.repos.Ledger.FindByID(env.ctx, id)
	require.NoError(t, err, "refused delete leaves the ledger in place")

	require.NoError(t, env.svc.Ledger.Delete(env.ctx, env.leader, id))

	kept, err := env.repos.Valve.FindByID(env.ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusApproved, kept.Status)
	assert.Nil(t, kept.LedgerID)

	for _, gone := range []uint{foreign.ID, draft.ID} {
		_, err = env.repos.Valve.FindByID(env.ctx, gone)
		assert.True(t, repository.IsNotFound(err))
	}
}

func TestLedgerService_ReconcileAll(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "空分")
	env.createValve(t, env.alice, "LV-50", true, &id)
	require.NoError(t, env.db.Model(&models.Ledger{}).Where("id = ?", id).Update("status", models.ValveStatusApproved).Error)

	changed, err := env.svc.Ledger.ReconcileAll(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.ValveStatusPending, env.ledgerStatus(t, id))

	changed, err = env.svc.Ledger.ReconcileAll(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestLedgerService_ReconcileAllSkipsFailedLedgers(t *testing.T) {
	env := newTestEnv(t)
	id := newLedger(t, env, "硫磺回收")
	env.createValve(t, env.alice, "LV-60", true, &id)
	require.NoError(t, env.db.Model(&models.Ledger{}).Where("id = ?", id).Update("status", models.ValveStatusApproved).Error)

	const hook = "test:fail_ledger_update"
	require.NoError(t, env.db.Callback().Update().Before("gorm:update").Register(hook, func(db *gorm.DB) {
		if db.Statement.Table == (models.Ledger{}).TableName() {
			db.AddError(errors.New("disk full"))
		}
	}))

	changed, err := env.svc.Ledger.ReconcileAll(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, changed, "rolled back ledgers are not counted")
	assert.Equal(t, models.ValveStatusApproved, env.ledgerStatus(t, id))

	require.NoError(t, env.db.Callback().Update().Remove(hook))
	changed, err = env.svc.Ledger.ReconcileAll(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.ValveStatusPending, env.ledgerStatus(t, id))
}
