package statemachine

import (
	"github.com/plantops/valve-ledger-api/internal/models"
)

// Actor is the user requesting a transition
type Actor struct {
	ID   uint
	Role string
}

// IsPrivileged reports whether the actor may approve or reject
func (a Actor) IsPrivileged() bool {
	return models.IsPrivilegedRole(a.Role)
}

// DenyReason tells callers why a transition was refused
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyPermission
	DenyState
)

// Decision is the outcome of CanTransition
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Message string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func denyPermission(msg string) Decision {
	return Decision{Reason: DenyPermission, Message: msg}
}

func denyState(msg string) Decision {
	return Decision{Reason: DenyState, Message: msg}
}

// Denial messages shown to users
const (
	MsgNoPermissionEdit   = "无权编辑"
	MsgNoPermissionDelete = "无权删除"
	MsgNoPermissionSubmit = "只能提交自己创建的台账"
	MsgNeedLeader         = "需要领导权限"
	MsgStateEdit          = "当前状态无法编辑"
	MsgStateDelete        = "当前状态无法删除"
	MsgStateSubmit        = "只有草稿状态的台账可以提交"
	MsgStateReview        = "只有待审批状态的台账可以审批"
	MsgUnknownAction      = "不支持的操作"
)

// CanTransition decides whether actor may perform action on valve.
// Permission is checked before state so an outsider never learns the state.
func CanTransition(valve *models.Valve, actor Actor, action string) Decision {
	owner := valve.IsOwnedBy(actor.ID)

	switch action {
	case models.ActionSubmit:
		if !owner {
			return denyPermission(MsgNoPermissionSubmit)
		}
		if !valve.MaySubmit() {
			return denyState(MsgStateSubmit)
		}
		return allow()

	case models.ActionApprove, models.ActionReject:
		if !actor.IsPrivileged() {
			return denyPermission(MsgNeedLeader)
		}
		if valve.Status != models.ValveStatusPending {
			return denyState(MsgStateReview)
		}
		return allow()

	case models.ActionEdit:
		if !owner && !actor.IsPrivileged() {
			return denyPermission(MsgNoPermissionEdit)
		}
		if !valve.MayEdit() {
			return denyState(MsgStateEdit)
		}
		return allow()

	case models.ActionDelete:
		if !owner && !actor.IsPrivileged() {
			return denyPermission(MsgNoPermissionDelete)
		}
		if !valve.MayDelete() {
			return denyState(MsgStateDelete)
		}
		return allow()
	}

	return denyState(MsgUnknownAction)
}

// CanView reports whether actor may read valve
func CanView(valve *models.Valve, actor Actor) bool {
	return valve.IsOwnedBy(actor.ID) || actor.IsPrivileged() || valve.Status == models.ValveStatusApproved
}

// CanManageLedger reports whether actor may change a ledger and its children
func CanManageLedger(ledger *models.Ledger, actor Actor) bool {
	return ledger.IsOwnedBy(actor.ID) || actor.IsPrivileged()
}

// CanViewLedger reports whether actor may read a ledger
func CanViewLedger(ledger *models.Ledger, actor Actor) bool {
	return CanManageLedger(ledger, actor) || ledger.Status == models.ValveStatusApproved
}
