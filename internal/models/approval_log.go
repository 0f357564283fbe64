package models

import (
	"time"
)

// ApprovalLog is an append-only record of one valve status transition
type ApprovalLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ValveID   uint      `json:"valve_id" gorm:"not null;index"`
	ValveTag  string    `json:"valve_tag" gorm:"size:50"` // tag at the time of the transition
	LedgerID  *uint     `json:"ledger_id,omitempty" gorm:"index"`
	Action    string    `json:"action" gorm:"size:20;not null;index"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	Comment   string    `json:"comment" gorm:"size:500"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Approval action constants
const (
	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
)

// TableName specifies the table name for GORM
func (ApprovalLog) TableName() string {
	return "approval_logs"
}

// ApprovalLogResponse is the JSON response format for approval history
type ApprovalLogResponse struct {
	ID        uint      `json:"id"`
	ValveID   uint      `json:"valve_id"`
	ValveTag  string    `json:"valve_tag"`
	LedgerID  *uint     `json:"ledger_id,omitempty"`
	Action    string    `json:"action"`
	UserID    uint      `json:"user_id"`
	UserName  string    `json:"user_name"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ToResponse converts ApprovalLog to ApprovalLogResponse
func (l *ApprovalLog) ToResponse() ApprovalLogResponse {
	resp := ApprovalLogResponse{
		ID:        l.ID,
		ValveID:   l.ValveID,
		ValveTag:  l.ValveTag,
		LedgerID:  l.LedgerID,
		Action:    l.Action,
		UserID:    l.UserID,
		Comment:   l.Comment,
		CreatedAt: l.CreatedAt,
	}
	if l.User != nil {
		resp.UserName = l.User.DisplayName()
	}
	return resp
}
