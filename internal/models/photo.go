package models

import (
	"time"
)

// ValvePhoto is an uploaded site photo of a valve
type ValvePhoto struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ValveID     uint      `gorm:"not null;index" json:"valve_id"`
	Path        string    `gorm:"size:300;not null" json:"-"` // storage key
	ThumbPath   string    `gorm:"size:300" json:"-"`
	Filename    string    `gorm:"size:200;not null" json:"filename"`
	ContentType string    `gorm:"size:50" json:"content_type"`
	Size        int64     `json:"size"`
	Description string    `gorm:"size:200" json:"description"`
	UploadedBy  uint      `gorm:"index" json:"uploaded_by"`
	UploadedAt  time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	// Associations
	Uploader *User `gorm:"foreignKey:UploadedBy" json:"uploader,omitempty"`
}

// StorageKeys returns every stored object of the photo
func (p *ValvePhoto) StorageKeys() []string {
	keys := []string{p.Path}
	if p.ThumbPath != "" {
		keys = append(keys, p.ThumbPath)
	}
	return keys
}

// TableName specifies the table name for ValvePhoto
func (ValvePhoto) TableName() string {
	return "valve_photos"
}
