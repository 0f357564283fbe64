package repository

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
)

// ApprovalLogRepository is append-only: there is no update or delete
type ApprovalLogRepository interface {
	Create(ctx context.Context, entry *models.ApprovalLog) error
	FindByValve(ctx context.Context, valveID uint) ([]models.ApprovalLog, error)
	FindByLedger(ctx context.Context, ledgerID uint, query *ListQuery) ([]models.ApprovalLog, int64, error)
	CountByAction(ctx context.Context) (map[string]int64, error)
}

type approvalLogRepository struct {
	db *gorm.DB
}

// NewApprovalLogRepository creates a new approval log repository
func NewApprovalLogRepository(db *gorm.DB) ApprovalLogRepository {
	return &approvalLogRepository{db: db}
}

func (r *approvalLogRepository) Create(ctx context.Context, entry *models.ApprovalLog) error {
	return r.db.WithContext(ctx).Omit("User").Create(entry).Error
}

// FindByValve returns the history of a valve, newest first
func (r *approvalLogRepository) FindByValve(ctx context.Context, valveID uint) ([]models.ApprovalLog, error) {
	var logs []models.ApprovalLog
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("valve_id = ?", valveID).
		Order("created_at DESC, id DESC").
		Find(&logs).Error
	return logs, err
}

func (r *approvalLogRepository) FindByLedger(ctx context.Context, ledgerID uint, query *ListQuery) ([]models.ApprovalLog, int64, error) {
	var logs []models.ApprovalLog
	var total int64

	db := r.db.WithContext(ctx).Model(&models.ApprovalLog{}).Where("ledger_id = ?", ledgerID)
	if query.Filters["action"] != "" {
		db = db.Where("action = ?", query.Filters["action"])
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = applyPagination(db.Order("created_at DESC, id DESC"), query)
	err := db.Preload("User").Find(&logs).Error
	return logs, total, err
}

func (r *approvalLogRepository) CountByAction(ctx context.Context) (map[string]int64, error) {
	return countGroupedBy(ctx, r.db, &models.ApprovalLog{}, "action")
}
