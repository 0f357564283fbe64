package models

import (
	"strings"
	"time"
)

// ValveAttachment is a secondary equipment item mounted on a valve (positioner, solenoid, limit switch...)
type ValveAttachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ValveID      uint      `gorm:"not null;index" json:"valve_id"`
	Type         string    `gorm:"size:50;not null" json:"type"`
	Name         string    `gorm:"size:100" json:"name"`
	Grade        string    `gorm:"size:20" json:"grade"`
	Model        string    `gorm:"size:100" json:"model"`
	Manufacturer string    `gorm:"size:100" json:"manufacturer"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for ValveAttachment
func (ValveAttachment) TableName() string {
	return "valve_attachments"
}

// AttachmentInput is the submitted form of an attachment; ID is set for existing items
type AttachmentInput struct {
	ID           uint   `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Grade        string `json:"grade"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// IsBlank reports whether the input has no type and should be ignored
func (in AttachmentInput) IsBlank() bool {
	return strings.TrimSpace(in.Type) == ""
}

// Apply copies the submitted values onto an attachment
func (in AttachmentInput) Apply(a *ValveAttachment) {
	a.Type = strings.TrimSpace(in.Type)
	a.Name = in.Name
	a.Grade = in.Grade
	a.Model = in.Model
	a.Manufacturer = in.Manufacturer
}

// ValveAttachmentResponse is the JSON response format for attachments
type ValveAttachmentResponse struct {
	ID           uint   `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Grade        string `json:"grade"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// ToResponse converts ValveAttachment to ValveAttachmentResponse
func (a *ValveAttachment) ToResponse() ValveAttachmentResponse {
	return ValveAttachmentResponse{
		ID:           a.ID,
		Type:         a.Type,
		Name:         a.Name,
		Grade:        a.Grade,
		Model:        a.Model,
		Manufacturer: a.Manufacturer,
	}
}
