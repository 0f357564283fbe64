package repository

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
)

// MaintenanceRepository defines the interface for maintenance record data access
type MaintenanceRepository interface {
	FindByID(ctx context.Context, id uint) (*models.MaintenanceRecord, error)
	FindByValve(ctx context.Context, valveID uint) ([]models.MaintenanceRecord, error)
	Create(ctx context.Context, record *models.MaintenanceRecord) error
	Update(ctx context.Context, record *models.MaintenanceRecord) error
	Delete(ctx context.Context, id uint) error
	DeleteByValve(ctx context.Context, valveIDs ...uint) error
	List(ctx context.Context, query *ListQuery) ([]models.MaintenanceRecord, int64, error)
}

type maintenanceRepository struct {
	db *gorm.DB
}

// NewMaintenanceRepository creates a new maintenance repository
func NewMaintenanceRepository(db *gorm.DB) MaintenanceRepository {
	return &maintenanceRepository{db: db}
}

func (r *maintenanceRepository) FindByID(ctx context.Context, id uint) (*models.MaintenanceRecord, error) {
	var record models.MaintenanceRecord
	err := r.db.WithContext(ctx).Preload("Creator").First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *maintenanceRepository) FindByValve(ctx context.Context, valveID uint) ([]models.MaintenanceRecord, error) {
	var records []models.MaintenanceRecord
	err := r.db.WithContext(ctx).
		Where("valve_id = ?", valveID).
		Order("maintained_at DESC, id DESC").
		Find(&records).Error
	return records, err
}

func (r *maintenanceRepository) Create(ctx context.Context, record *models.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Omit("Creator").Create(record).Error
}

func (r *maintenanceRepository) Update(ctx context.Context, record *models.MaintenanceRecord) error {
	return r.db.WithContext(ctx).Omit("Creator").Save(record).Error
}

func (r *maintenanceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.MaintenanceRecord{}, id).Error
}

func (r *maintenanceRepository) DeleteByValve(ctx context.Context, valveIDs ...uint) error {
	if len(valveIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("valve_id IN ?", valveIDs).Delete(&models.MaintenanceRecord{}).Error
}

// List searches across tag, name, content and personnel; PerPage 0 returns everything (exports)
func (r *maintenanceRepository) List(ctx context.Context, query *ListQuery) ([]models.MaintenanceRecord, int64, error) {
	var records []models.MaintenanceRecord
	var total int64

	db := r.db.WithContext(ctx).Model(&models.MaintenanceRecord{})

	if query.Search != "" {
		search := likePattern(query.Search)
		db = db.Where("LOWER(equipment_tag) LIKE ? OR LOWER(equipment_name) LIKE ? OR LOWER(content) LIKE ? OR LOWER(personnel) LIKE ? OR LOWER(center) LIKE ?",
			search, search, search, search, search)
	}

	if query.Filters["type"] != "" {
		db = db.Where("type = ?", query.Filters["type"])
	}

	if query.Filters["valve_id"] != "" {
		db = db.Where("valve_id = ?", query.Filters["valve_id"])
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = applySort(db, query, "maintained_at DESC", "maintained_at", "equipment_tag", "type", "created_at")
	db = applyPagination(db, query)

	err := db.Find(&records).Error
	return records, total, err
}
