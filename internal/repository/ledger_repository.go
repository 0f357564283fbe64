package repository

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"

	"gorm.io/gorm"
)

// LedgerRepository defines the interface for ledger (valve collection) data access
type LedgerRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Ledger, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Ledger, error)
	Create(ctx context.Context, ledger *models.Ledger) error
	Update(ctx context.Context, ledger *models.Ledger) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, scope Scope, query *ListQuery) ([]models.Ledger, int64, error)
	FindAllIDs(ctx context.Context) ([]uint, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// ledgerRepository handles database operations for ledgers
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// FindByID retrieves a ledger with its creator
func (r *ledgerRepository) FindByID(ctx context.Context, id uint) (*models.Ledger, error) {
	var ledger models.Ledger
	err := r.db.WithContext(ctx).Preload("Creator").First(&ledger, id).Error
	if err != nil {
		return nil, err
	}
	return &ledger, nil
}

func (r *ledgerRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Ledger, error) {
	var ledgers []models.Ledger
	if len(ids) == 0 {
		return ledgers, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&ledgers).Error
	return ledgers, err
}

func (r *ledgerRepository) Create(ctx context.Context, ledger *models.Ledger) error {
	return r.db.WithContext(ctx).Create(ledger).Error
}

func (r *ledgerRepository) Update(ctx context.Context, ledger *models.Ledger) error {
	return r.db.WithContext(ctx).Omit("Creator").Save(ledger).Error
}

// Delete removes a ledger; member valves must be detached or deleted first
func (r *ledgerRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Ledger{}, id).Error
}

// List returns ledgers visible to scope. Non-privileged users see their own
// ledgers plus approved ones.
func (r *ledgerRepository) List(ctx context.Context, scope Scope, query *ListQuery) ([]models.Ledger, int64, error) {
	var ledgers []models.Ledger
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Ledger{})

	if !scope.IsPrivileged {
		db = db.Where("created_by = ? OR status = ?", scope.UserID, models.ValveStatusApproved)
	}

	if query.Search != "" {
		search := likePattern(query.Search)
		db = db.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", search, search)
	}

	if query.Filters["status"] != "" {
		db = db.Where("status = ?", query.Filters["status"])
	}

	if query.Filters["mine"] == "true" {
		db = db.Where("created_by = ?", scope.UserID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = applySort(db, query, "created_at DESC", "name", "status", "created_at", "updated_at")
	db = applyPagination(db, query)

	err := db.Preload("Creator").Find(&ledgers).Error
	return ledgers, total, err
}

// FindAllIDs is used by the reconcile job
func (r *ledgerRepository) FindAllIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Ledger{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *ledgerRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return countGroupedBy(ctx, r.db, &models.Ledger{}, "status")
}

type groupCount struct {
	Grp string `gorm:"column:grp"`
	Cnt int64  `gorm:"column:cnt"`
}

func countGroupedBy(ctx context.Context, db *gorm.DB, model interface{}, column string) (map[string]int64, error) {
	var rows []groupCount
	err := db.WithContext(ctx).
		Model(model).
		Select(column + " AS grp, COUNT(*) AS cnt").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Grp] = row.Cnt
	}
	return out, nil
}
