package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ListQuery represents common query parameters
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
		Filters: make(map[string]string),
	}
}

// Normalize clamps paging values
func (q *ListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = 20
	}
	if q.PerPage > 500 {
		q.PerPage = 500
	}
	if q.Filters == nil {
		q.Filters = make(map[string]string)
	}
}

// TotalPages returns the page count for total rows
func (q *ListQuery) TotalPages(total int64) int64 {
	if q.PerPage <= 0 {
		return 1
	}
	return (total + int64(q.PerPage) - 1) / int64(q.PerPage)
}

// IsDuplicateKey reports a unique constraint violation from postgres or a translated gorm error
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite without TranslateError
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports gorm's record-not-found
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func likePattern(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	term = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(term)
	return "%" + term + "%"
}

// applySort orders by SortBy when it is whitelisted, otherwise by fallback
func applySort(db *gorm.DB, query *ListQuery, fallback string, allowed ...string) *gorm.DB {
	if query.SortBy != "" {
		for _, col := range allowed {
			if col == query.SortBy {
				order := col
				if strings.ToLower(query.SortDir) == "desc" {
					order += " DESC"
				}
				return db.Order(order)
			}
		}
	}
	return db.Order(fallback)
}

func applyPagination(db *gorm.DB, query *ListQuery) *gorm.DB {
	if query.PerPage > 0 {
		page := query.Page
		if page < 1 {
			page = 1
		}
		db = db.Offset((page - 1) * query.PerPage).Limit(query.PerPage)
	}
	return db
}
