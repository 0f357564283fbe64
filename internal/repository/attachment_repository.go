package repository

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
)

// AttachmentRepository defines the interface for valve attachment data access
type AttachmentRepository interface {
	FindByValve(ctx context.Context, valveID uint) ([]models.ValveAttachment, error)
	Create(ctx context.Context, attachment *models.ValveAttachment) error
	Update(ctx context.Context, attachment *models.ValveAttachment) error
	DeleteByIDs(ctx context.Context, valveID uint, ids []uint) error
	DeleteByValve(ctx context.Context, valveIDs ...uint) error
}

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) FindByValve(ctx context.Context, valveID uint) ([]models.ValveAttachment, error) {
	var attachments []models.ValveAttachment
	err := r.db.WithContext(ctx).Where("valve_id = ?", valveID).Order("id ASC").Find(&attachments).Error
	return attachments, err
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.ValveAttachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *attachmentRepository) Update(ctx context.Context, attachment *models.ValveAttachment) error {
	return r.db.WithContext(ctx).Save(attachment).Error
}

// DeleteByIDs removes attachments, restricted to the owning valve
func (r *attachmentRepository) DeleteByIDs(ctx context.Context, valveID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("valve_id = ? AND id IN ?", valveID, ids).
		Delete(&models.ValveAttachment{}).Error
}

func (r *attachmentRepository) DeleteByValve(ctx context.Context, valveIDs ...uint) error {
	if len(valveIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("valve_id IN ?", valveIDs).Delete(&models.ValveAttachment{}).Error
}
