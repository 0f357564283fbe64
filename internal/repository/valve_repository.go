package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scope restricts queries to what an actor may see
type Scope struct {
	UserID       uint
	IsPrivileged bool
}

// ValveQuery extends ListQuery with valve specific filters.
// Fields holds multi-value filters keyed by attribute JSON name.
type ValveQuery struct {
	*ListQuery
	Statuses   []string
	LedgerID   *uint
	CreatedBy  *uint
	NoLedger   bool
	Fields     map[string][]string
	IncludeAll bool // skip the visibility scope (approval queues)
}

// NewValveQuery creates a ValveQuery with defaults
func NewValveQuery() *ValveQuery {
	return &ValveQuery{
		ListQuery: NewListQuery(),
		Fields:    make(map[string][]string),
	}
}

// ValveRepository defines the interface for valve data access
type ValveRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Valve, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Valve, error)
	FindByTag(ctx context.Context, tag string) (*models.Valve, error)
	FindByTags(ctx context.Context, tags []string) ([]models.Valve, error)
	FindDraftByTagAndCreator(ctx context.Context, tag string, userID uint) (*models.Valve, error)
	Create(ctx context.Context, valve *models.Valve) error
	Update(ctx context.Context, valve *models.Valve) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, scope Scope, query *ValveQuery) ([]models.Valve, int64, error)
	TagTaken(ctx context.Context, tag string, excludeID, ownerID uint) (bool, error)
	DistinctValues(ctx context.Context, scope Scope, ledgerID *uint) (map[string][]string, error)
	FindByLedger(ctx context.Context, ledgerID uint, statuses ...string) ([]models.Valve, error)
	CountsByLedger(ctx context.Context, ledgerID uint) (models.StatusCounts, error)
	CountsByLedgerIDs(ctx context.Context, ledgerIDs []uint) (map[uint]models.StatusCounts, error)
	FindStaleDrafts(ctx context.Context, before time.Time) ([]models.Valve, error)
	CountByStatus(ctx context.Context, scope Scope) (models.StatusCounts, error)
}

type valveRepository struct {
	db *gorm.DB
}

// NewValveRepository creates a new valve repository
func NewValveRepository(db *gorm.DB) ValveRepository {
	return &valveRepository{db: db}
}

func (r *valveRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Creator").
		Preload("Approver").
		Preload("Ledger").
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})
}

func (r *valveRepository) FindByID(ctx context.Context, id uint) (*models.Valve, error) {
	var valve models.Valve
	err := r.withDetails(ctx).First(&valve, id).Error
	if err != nil {
		return nil, err
	}
	return &valve, nil
}

func (r *valveRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Valve, error) {
	var valves []models.Valve
	if len(ids) == 0 {
		return valves, nil
	}
	err := r.withDetails(ctx).Where("id IN ?", ids).Order("id ASC").Find(&valves).Error
	return valves, err
}

func (r *valveRepository) FindByTag(ctx context.Context, tag string) (*models.Valve, error) {
	var valve models.Valve
	err := r.db.WithContext(ctx).Where("tag = ?", strings.TrimSpace(tag)).First(&valve).Error
	if err != nil {
		return nil, err
	}
	return &valve, nil
}

func (r *valveRepository) FindByTags(ctx context.Context, tags []string) ([]models.Valve, error) {
	var valves []models.Valve
	if len(tags) == 0 {
		return valves, nil
	}
	err := r.db.WithContext(ctx).Where("tag IN ?", tags).Find(&valves).Error
	return valves, err
}

func (r *valveRepository) FindDraftByTagAndCreator(ctx context.Context, tag string, userID uint) (*models.Valve, error) {
	var valve models.Valve
	err := r.db.WithContext(ctx).
		Where("tag = ? AND created_by = ? AND status = ?", strings.TrimSpace(tag), userID, models.ValveStatusDraft).
		First(&valve).Error
	if err != nil {
		return nil, err
	}
	return &valve, nil
}

func (r *valveRepository) Create(ctx context.Context, valve *models.Valve) error {
	return r.db.WithContext(ctx).Omit("Creator", "Approver", "Ledger").Create(valve).Error
}

// Update saves scalar columns only; attachments are written through AttachmentRepository
func (r *valveRepository) Update(ctx context.Context, valve *models.Valve) error {
	return r.db.WithContext(ctx).Omit("Creator", "Approver", "Ledger", "Attachments").Save(valve).Error
}

func (r *valveRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Valve{}, id).Error
}

func (r *valveRepository) scoped(db *gorm.DB, scope Scope) *gorm.DB {
	if scope.IsPrivileged {
		return db
	}
	return db.Where("valves.created_by = ? OR valves.status = ?", scope.UserID, models.ValveStatusApproved)
}

func (r *valveRepository) List(ctx context.Context, scope Scope, query *ValveQuery) ([]models.Valve, int64, error) {
	var valves []models.Valve
	var total int64

	if query.ListQuery == nil {
		query.ListQuery = NewListQuery()
	}

	db := r.db.WithContext(ctx).Model(&models.Valve{})
	if !query.IncludeAll {
		db = r.scoped(db, scope)
	}

	if len(query.Statuses) > 0 {
		db = db.Where("valves.status IN ?", query.Statuses)
	}
	if query.LedgerID != nil {
		db = db.Where("valves.ledger_id = ?", *query.LedgerID)
	}
	if query.NoLedger {
		db = db.Where("valves.ledger_id IS NULL")
	}
	if query.CreatedBy != nil {
		db = db.Where("valves.created_by = ?", *query.CreatedBy)
	}

	// Apply field filters, column names come from the struct tags, never from input
	for key, values := range query.Fields {
		f, ok := models.LookupValveField(key)
		if !ok || !f.Filterable || len(values) == 0 {
			continue
		}
		db = db.Where("valves."+f.Key+" IN ?", values)
	}

	// Apply search across every descriptive attribute
	if query.Search != "" {
		search := likePattern(query.Search)
		fields := models.ValveFields()
		clauses := make([]string, 0, len(fields))
		args := make([]interface{}, 0, len(fields))
		for _, f := range fields {
			clauses = append(clauses, "LOWER(valves."+f.Key+") LIKE ?")
			args = append(args, search)
		}
		db = db.Where(strings.Join(clauses, " OR "), args...)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = applySort(db, query.ListQuery, "valves.updated_at DESC", sortableValveColumns()...)
	db = applyPagination(db, query.ListQuery)

	err := db.
		Preload("Creator").
		Preload("Approver").
		Preload("Ledger").
		Preload("Attachments").
		Find(&valves).Error
	return valves, total, err
}

func sortableValveColumns() []string {
	cols := []string{"status", "created_at", "updated_at", "approved_at"}
	for _, f := range models.ValveFields() {
		cols = append(cols, f.Key)
	}
	return cols
}

// TagTaken reports whether a valve other than excludeID uses tag.
// Drafts owned by ownerID do not count; they are reclaimed on save.
func (r *valveRepository) TagTaken(ctx context.Context, tag string, excludeID, ownerID uint) (bool, error) {
	var count int64
	db := r.db.WithContext(ctx).
		Model(&models.Valve{}).
		Where("tag = ?", strings.TrimSpace(tag)).
		Where("NOT (status = ? AND created_by = ?)", models.ValveStatusDraft, ownerID)
	if excludeID > 0 {
		db = db.Where("id <> ?", excludeID)
	}
	err := db.Count(&count).Error
	return count > 0, err
}

// DistinctValues returns the sorted non-empty values of every filterable field
func (r *valveRepository) DistinctValues(ctx context.Context, scope Scope, ledgerID *uint) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, f := range models.FilterableValveFields() {
		var values []string
		db := r.scoped(r.db.WithContext(ctx).Model(&models.Valve{}), scope)
		if ledgerID != nil {
			db = db.Where("ledger_id = ?", *ledgerID)
		}
		err := db.
			Where(f.Key+" <> ''").
			Distinct(f.Key).
			Pluck(f.Key, &values).Error
		if err != nil {
			return nil, err
		}
		sort.Strings(values)
		out[f.Key] = values
	}
	return out, nil
}

func (r *valveRepository) FindByLedger(ctx context.Context, ledgerID uint, statuses ...string) ([]models.Valve, error) {
	var valves []models.Valve
	db := r.db.WithContext(ctx).Where("ledger_id = ?", ledgerID)
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	err := db.Order("id ASC").Find(&valves).Error
	return valves, err
}

type ledgerStatusCount struct {
	LedgerID uint   `gorm:"column:ledger_id"`
	Status   string `gorm:"column:status"`
	Cnt      int64  `gorm:"column:cnt"`
}

func (r *valveRepository) CountsByLedger(ctx context.Context, ledgerID uint) (models.StatusCounts, error) {
	counts, err := r.CountsByLedgerIDs(ctx, []uint{ledgerID})
	if err != nil {
		return models.StatusCounts{}, err
	}
	return counts[ledgerID], nil
}

func (r *valveRepository) CountsByLedgerIDs(ctx context.Context, ledgerIDs []uint) (map[uint]models.StatusCounts, error) {
	out := make(map[uint]models.StatusCounts, len(ledgerIDs))
	if len(ledgerIDs) == 0 {
		return out, nil
	}

	var rows []ledgerStatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Valve{}).
		Select("ledger_id, status, COUNT(*) AS cnt").
		Where("ledger_id IN ?", ledgerIDs).
		Group("ledger_id, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		c := out[row.LedgerID]
		c.Add(row.Status, row.Cnt)
		out[row.LedgerID] = c
	}
	return out, nil
}

// FindStaleDrafts returns drafts outside any ledger not touched since before.
// Rows are locked so a concurrent submit waits for the caller's transaction.
func (r *valveRepository) FindStaleDrafts(ctx context.Context, before time.Time) ([]models.Valve, error) {
	var valves []models.Valve
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("status = ? AND ledger_id IS NULL AND updated_at < ?", models.ValveStatusDraft, before).
		Find(&valves).Error
	return valves, err
}

func (r *valveRepository) CountByStatus(ctx context.Context, scope Scope) (models.StatusCounts, error) {
	var counts models.StatusCounts
	byStatus, err := countGroupedBy(ctx, r.scoped(r.db, scope), &models.Valve{}, "status")
	if err != nil {
		return counts, err
	}
	for status, n := range byStatus {
		counts.Add(status, n)
	}
	return counts, nil
}
