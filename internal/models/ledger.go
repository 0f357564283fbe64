package models

import (
	"time"
)

// Ledger is a named collection of valve records with a derived status
type Ledger struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:100;not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	CreatedBy   uint       `gorm:"not null;index" json:"created_by"`
	Status      string     `gorm:"size:20;default:draft;index" json:"status"`
	ApprovedAt  *time.Time `json:"approved_at"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Associations
	Creator *User `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
}

// TableName specifies the table name for Ledger
func (Ledger) TableName() string {
	return "ledgers"
}

// IsOwnedBy returns true if userID created the ledger
func (l *Ledger) IsOwnedBy(userID uint) bool {
	return l.CreatedBy == userID
}

// StatusCounts holds the number of child valves per status
type StatusCounts struct {
	Total    int64 `json:"total"`
	Draft    int64 `json:"draft"`
	Pending  int64 `json:"pending"`
	Approved int64 `json:"approved"`
	Rejected int64 `json:"rejected"`
}

// Add increments the bucket for status
func (c *StatusCounts) Add(status string, n int64) {
	c.Total += n
	switch status {
	case ValveStatusDraft:
		c.Draft += n
	case ValveStatusPending:
		c.Pending += n
	case ValveStatusApproved:
		c.Approved += n
	case ValveStatusRejected:
		c.Rejected += n
	}
}

// AggregateStatus derives a ledger status from its children.
// Pending wins over rejected, rejected over approved; an empty ledger is draft.
func AggregateStatus(c StatusCounts) string {
	switch {
	case c.Pending > 0:
		return ValveStatusPending
	case c.Rejected > 0:
		return ValveStatusRejected
	case c.Total > 0 && c.Approved == c.Total:
		return ValveStatusApproved
	default:
		return ValveStatusDraft
	}
}

// ApplyAggregate sets Status and ApprovedAt from counts and reports whether anything changed
func (l *Ledger) ApplyAggregate(c StatusCounts, now time.Time) bool {
	next := AggregateStatus(c)
	if next == l.Status {
		return false
	}
	l.Status = next
	if next == ValveStatusApproved {
		l.ApprovedAt = &now
	} else {
		l.ApprovedAt = nil
	}
	return true
}

// LedgerResponse is the JSON response format for ledgers
type LedgerResponse struct {
	ID          uint         `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CreatedBy   uint         `json:"created_by"`
	CreatorName string       `json:"creator_name"`
	Status      string       `json:"status"`
	Counts      StatusCounts `json:"counts"`
	ApprovedAt  *time.Time   `json:"approved_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ToResponse converts Ledger to LedgerResponse, deriving status from counts
func (l *Ledger) ToResponse(counts StatusCounts) LedgerResponse {
	resp := LedgerResponse{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		CreatedBy:   l.CreatedBy,
		Status:      AggregateStatus(counts),
		Counts:      counts,
		ApprovedAt:  l.ApprovedAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
	if l.Creator != nil {
		resp.CreatorName = l.Creator.DisplayName()
	}
	return resp
}
