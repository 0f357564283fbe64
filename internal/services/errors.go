package services

import (
	"errors"

	"github.com/plantops/valve-ledger-api/internal/statemachine"
)

// Common service errors
var (
	ErrNotFound         = errors.New("记录不存在")
	ErrInvalidPassword  = errors.New("密码错误")
	ErrUnauthorized     = errors.New("未授权")
	ErrForbidden        = errors.New("无权操作")
	ErrInvalidState     = errors.New("当前状态不允许此操作")
	ErrDuplicate        = errors.New("位号已存在，请使用其他位号")
	ErrLedgerHasPending = errors.New("台账中有待审核的记录，无法操作")
	ErrNothingToSubmit  = errors.New("没有可提交的记录")
	ErrInvalidImport    = errors.New("导入文件格式错误")
	ErrImportConflict   = errors.New("导入数据存在位号冲突")
	ErrInvalidInput     = errors.New("参数错误")
)

// TransitionError carries the guard decision that refused an action
type TransitionError struct {
	Decision statemachine.Decision
}

func (e *TransitionError) Error() string {
	return e.Decision.Message
}

// Unwrap maps the denial reason onto ErrForbidden or ErrInvalidState
func (e *TransitionError) Unwrap() error {
	if e.Decision.Reason == statemachine.DenyPermission {
		return ErrForbidden
	}
	return ErrInvalidState
}

// ValidationError is an input problem with a user-facing message
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

func denied(d statemachine.Decision) error {
	return &TransitionError{Decision: d}
}
