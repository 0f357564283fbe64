package repository

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
)

// PhotoRepository defines the interface for valve photo metadata
type PhotoRepository interface {
	FindByID(ctx context.Context, id uint) (*models.ValvePhoto, error)
	FindByValve(ctx context.Context, valveID uint) ([]models.ValvePhoto, error)
	Create(ctx context.Context, photo *models.ValvePhoto) error
	Delete(ctx context.Context, id uint) error
	DeleteByValve(ctx context.Context, valveIDs ...uint) ([]string, error)
}

type photoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new photo repository
func NewPhotoRepository(db *gorm.DB) PhotoRepository {
	return &photoRepository{db: db}
}

func (r *photoRepository) FindByID(ctx context.Context, id uint) (*models.ValvePhoto, error) {
	var photo models.ValvePhoto
	err := r.db.WithContext(ctx).Preload("Uploader").First(&photo, id).Error
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

func (r *photoRepository) FindByValve(ctx context.Context, valveID uint) ([]models.ValvePhoto, error) {
	var photos []models.ValvePhoto
	err := r.db.WithContext(ctx).
		Preload("Uploader").
		Where("valve_id = ?", valveID).
		Order("uploaded_at DESC").
		Find(&photos).Error
	return photos, err
}

func (r *photoRepository) Create(ctx context.Context, photo *models.ValvePhoto) error {
	return r.db.WithContext(ctx).Omit("Uploader").Create(photo).Error
}

func (r *photoRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ValvePhoto{}, id).Error
}

// DeleteByValve removes the rows and returns their storage keys so the caller can drop the files
func (r *photoRepository) DeleteByValve(ctx context.Context, valveIDs ...uint) ([]string, error) {
	var keys []string
	if len(valveIDs) == 0 {
		return keys, nil
	}
	db := r.db.WithContext(ctx)

	var photos []models.ValvePhoto
	if err := db.Where("valve_id IN ?", valveIDs).Find(&photos).Error; err != nil {
		return nil, err
	}
	for i := range photos {
		keys = append(keys, photos[i].StorageKeys()...)
	}

	err := db.Where("valve_id IN ?", valveIDs).Delete(&models.ValvePhoto{}).Error
	return keys, err
}
