package services

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/pkg/logger"
	"gorm.io/gorm"
)

// Audit actions
const (
	AuditCreate         = "CREATE"
	AuditUpdate         = "UPDATE"
	AuditDelete         = "DELETE"
	AuditImport         = "IMPORT"
	AuditLogin          = "LOGIN"
	AuditToggleStatus   = "TOGGLE_STATUS"
	AuditResetPassword  = "RESET_PASSWORD"
	AuditChangePassword = "CHANGE_PASSWORD"
)

type clientInfoKey struct{}

// ClientInfo identifies where a request came from
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithClientInfo attaches the caller's address to ctx for audit entries
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, ClientInfo{IP: ip, UserAgent: userAgent})
}

func clientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}

type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Log records an audit entry; userID 0 marks a system action. Failures are logged, never returned.
func (s *AuditService) Log(ctx context.Context, userID uint, action, entity string, entityID uint, details string) {
	info := clientInfoFrom(ctx)
	logEntry := &models.AuditLog{
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
		IPAddress: info.IP,
		UserAgent: info.UserAgent,
	}
	if userID != 0 {
		logEntry.UserID = &userID
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(logEntry).Error; err != nil {
		logger.Error("failed to write audit log", "action", action, "entity", entity, "entity_id", entityID, "error", err)
	}
}

// List retrieves audit logs, newest first, filtered by entity/action/user
func (s *AuditService) List(ctx context.Context, query *repository.ListQuery) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	db := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if query.Filters["entity"] != "" {
		db = db.Where("entity = ?", query.Filters["entity"])
	}
	if query.Filters["action"] != "" {
		db = db.Where("action = ?", query.Filters["action"])
	}
	if query.Filters["user_id"] != "" {
		db = db.Where("user_id = ?", query.Filters["user_id"])
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (query.Page - 1) * query.PerPage
	result := db.Preload("User").Order("created_at desc, id desc").Limit(query.PerPage).Offset(offset).Find(&logs)
	return logs, total, result.Error
}
