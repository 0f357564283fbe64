package models

import (
	"time"
)

// AuditLog records a non-transition change (edits, deletes, imports, settings, users)
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id"` // nil for scheduled jobs
	Action    string    `gorm:"size:50;not null" json:"action"` // CREATE, UPDATE, DELETE, IMPORT, LOGIN
	Entity    string    `gorm:"size:50;not null" json:"entity"` // Valve, Ledger, User, Setting...
	EntityID  uint      `json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	// Associations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}
