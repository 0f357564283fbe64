package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	db *gorm.DB

	User         UserRepository
	Valve        ValveRepository
	Attachment   AttachmentRepository
	Ledger       LedgerRepository
	ApprovalLog  ApprovalLogRepository
	Setting      SettingRepository
	Photo        PhotoRepository
	Maintenance  MaintenanceRepository
	Notification NotificationRepository
	RefreshToken RefreshTokenRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		User:         NewUserRepository(db),
		Valve:        NewValveRepository(db),
		Attachment:   NewAttachmentRepository(db),
		Ledger:       NewLedgerRepository(db),
		ApprovalLog:  NewApprovalLogRepository(db),
		Setting:      NewSettingRepository(db),
		Photo:        NewPhotoRepository(db),
		Maintenance:  NewMaintenanceRepository(db),
		Notification: NewNotificationRepository(db),
		RefreshToken: NewRefreshTokenRepository(db),
	}
}

// DB exposes the underlying connection
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn with repositories bound to a single database transaction.
// Returning an error from fn rolls everything back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
