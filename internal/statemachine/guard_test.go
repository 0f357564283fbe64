package statemachine

import (
	"testing"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	const creatorID = 10
	creator := Actor{ID: creatorID, Role: models.RoleEmployee}
	stranger := Actor{ID: 11, Role: models.RoleEmployee}
	leader := Actor{ID: 20, Role: models.RoleLeader}
	admin := Actor{ID: 30, Role: models.RoleAdmin}

	tests := []struct {
		name    string
		status  string
		actor   Actor
		action  string
		allowed bool
		reason  DenyReason
	}{
		{"creator submits draft", models.ValveStatusDraft, creator, models.ActionSubmit, true, DenyNone},
		{"leader cannot submit someone else's draft", models.ValveStatusDraft, leader, models.ActionSubmit, false, DenyPermission},
		{"creator cannot resubmit pending", models.ValveStatusPending, creator, models.ActionSubmit, false, DenyState},
		{"creator cannot submit rejected without edit", models.ValveStatusRejected, creator, models.ActionSubmit, false, DenyState},

		{"leader approves pending", models.ValveStatusPending, leader, models.ActionApprove, true, DenyNone},
		{"admin rejects pending", models.ValveStatusPending, admin, models.ActionReject, true, DenyNone},
		{"creator cannot approve own record", models.ValveStatusPending, creator, models.ActionApprove, false, DenyPermission},
		{"leader cannot approve draft", models.ValveStatusDraft, leader, models.ActionApprove, false, DenyState},
		{"leader cannot reject approved", models.ValveStatusApproved, leader, models.ActionReject, false, DenyState},

		{"creator edits draft", models.ValveStatusDraft, creator, models.ActionEdit, true, DenyNone},
		{"creator edits rejected", models.ValveStatusRejected, creator, models.ActionEdit, true, DenyNone},
		{"creator edits approved", models.ValveStatusApproved, creator, models.ActionEdit, true, DenyNone},
		{"leader edits another user's approved", models.ValveStatusApproved, leader, models.ActionEdit, true, DenyNone},
		{"stranger cannot edit draft", models.ValveStatusDraft, stranger, models.ActionEdit, false, DenyPermission},
		{"nobody edits pending", models.ValveStatusPending, admin, models.ActionEdit, false, DenyState},

		{"creator deletes draft", models.ValveStatusDraft, creator, models.ActionDelete, true, DenyNone},
		{"admin deletes rejected", models.ValveStatusRejected, admin, models.ActionDelete, true, DenyNone},
		{"stranger cannot delete draft", models.ValveStatusDraft, stranger, models.ActionDelete, false, DenyPermission},
		{"creator cannot delete pending", models.ValveStatusPending, creator, models.ActionDelete, false, DenyState},
		{"admin cannot delete pending", models.ValveStatusPending, admin, models.ActionDelete, false, DenyState},
		{"admin cannot delete approved", models.ValveStatusApproved, admin, models.ActionDelete, false, DenyState},

		{"unknown action", models.ValveStatusDraft, admin, "archive", false, DenyState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valve := &models.Valve{Status: tt.status, CreatedBy: creatorID}
			d := CanTransition(valve, tt.actor, tt.action)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if !tt.allowed {
				assert.NotEmpty(t, d.Message)
			}
		})
	}
}

func TestCanView(t *testing.T) {
	valve := &models.Valve{Status: models.ValveStatusDraft, CreatedBy: 1}

	assert.True(t, CanView(valve, Actor{ID: 1, Role: models.RoleEmployee}))
	assert.True(t, CanView(valve, Actor{ID: 2, Role: models.RoleLeader}))
	assert.False(t, CanView(valve, Actor{ID: 2, Role: models.RoleEmployee}))

	valve.Status = models.ValveStatusApproved
	assert.True(t, CanView(valve, Actor{ID: 2, Role: models.RoleEmployee}))
}

func TestCanManageLedger(t *testing.T) {
	ledger := &models.Ledger{CreatedBy: 1, Status: models.ValveStatusDraft}

	assert.True(t, CanManageLedger(ledger, Actor{ID: 1, Role: models.RoleEmployee}))
	assert.True(t, CanManageLedger(ledger, Actor{ID: 5, Role: models.RoleAdmin}))
	assert.False(t, CanManageLedger(ledger, Actor{ID: 5, Role: models.RoleEmployee}))
	assert.False(t, CanViewLedger(ledger, Actor{ID: 5, Role: models.RoleEmployee}))

	ledger.Status = models.ValveStatusApproved
	assert.True(t, CanViewLedger(ledger, Actor{ID: 5, Role: models.RoleEmployee}))
}
