package repository

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository defines the interface for global settings
type SettingRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	All(ctx context.Context) ([]models.Setting, error)
	Upsert(ctx context.Context, key, value string) error
	CreateIfMissing(ctx context.Context, key, value string) error
}

type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

func (r *settingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (r *settingRepository) All(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	err := r.db.WithContext(ctx).Order("key ASC").Find(&settings).Error
	return settings, err
}

func (r *settingRepository) Upsert(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

// CreateIfMissing inserts a default without touching an existing value
func (r *settingRepository) CreateIfMissing(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Setting{Key: key, Value: value}).Error
}
