package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

const settingCacheTTL = 5 * time.Minute

// SettingService reads and writes global options through a cache
type SettingService struct {
	repo     repository.SettingRepository
	cache    cache.Cache
	auditSvc *AuditService
	defaults map[string]string
}

// NewSettingService creates a setting service; defaults answer for keys missing from the table
func NewSettingService(repo repository.SettingRepository, c cache.Cache, auditSvc *AuditService, defaults map[string]string) *SettingService {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &SettingService{repo: repo, cache: c, auditSvc: auditSvc, defaults: defaults}
}

// DefaultSettings builds the seed values
func DefaultSettings(autoApproval bool, defaultPassword string) map[string]string {
	return map[string]string{
		models.SettingAutoApproval:    strconv.FormatBool(autoApproval),
		models.SettingDefaultPassword: defaultPassword,
		models.SettingPageSize:        "20",
		models.SettingSystemName:      "阀门台账管理系统",
	}
}

// Get returns a setting value, falling back to its default
func (s *SettingService) Get(ctx context.Context, key string) string {
	if val, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return val
	} else if err != nil {
		logger.Warn("settings cache read failed", "key", key, "error", err)
	}

	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if !repository.IsNotFound(err) {
			logger.Error("failed to load setting", "key", key, "error", err)
		}
		return s.defaults[key]
	}

	if err := s.cache.Set(ctx, key, setting.Value, settingCacheTTL); err != nil {
		logger.Warn("settings cache write failed", "key", key, "error", err)
	}
	return setting.Value
}

// AutoApproval reports whether submissions skip review
func (s *SettingService) AutoApproval(ctx context.Context) bool {
	return models.IsTrue(s.Get(ctx, models.SettingAutoApproval))
}

// DefaultPassword is used for new and reset accounts
func (s *SettingService) DefaultPassword(ctx context.Context) string {
	return s.Get(ctx, models.SettingDefaultPassword)
}

// PageSize is the default list page size
func (s *SettingService) PageSize(ctx context.Context) int {
	n, err := strconv.Atoi(s.Get(ctx, models.SettingPageSize))
	if err != nil || n <= 0 {
		return 20
	}
	return n
}

// All returns every known setting
func (s *SettingService) All(ctx context.Context) map[string]string {
	out := make(map[string]string, len(models.KnownSettingKeys()))
	for _, key := range models.KnownSettingKeys() {
		out[key] = s.Get(ctx, key)
	}
	return out
}

// Update validates and stores values, then invalidates the cache
func (s *SettingService) Update(ctx context.Context, actorID uint, values map[string]string) error {
	for key, value := range values {
		if err := validateSetting(key, value); err != nil {
			return err
		}
	}

	changed := make([]string, 0, len(values))
	for key, value := range values {
		value = strings.TrimSpace(value)
		if key == models.SettingAutoApproval {
			value = strconv.FormatBool(models.IsTrue(value))
		}
		if err := s.repo.Upsert(ctx, key, value); err != nil {
			return err
		}
		changed = append(changed, key)
		if key != models.SettingDefaultPassword {
			s.auditSvc.Log(ctx, actorID, AuditUpdate, "Setting", 0, fmt.Sprintf("%s=%s", key, value))
		} else {
			s.auditSvc.Log(ctx, actorID, AuditUpdate, "Setting", 0, key)
		}
	}

	if err := s.cache.Delete(ctx, changed...); err != nil {
		logger.Warn("settings cache invalidation failed", "error", err)
	}
	return nil
}

// EnsureDefaults inserts any missing setting without overwriting existing values
func (s *SettingService) EnsureDefaults(ctx context.Context) error {
	for key, value := range s.defaults {
		if err := s.repo.CreateIfMissing(ctx, key, value); err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}

func validateSetting(key, value string) error {
	switch key {
	case models.SettingAutoApproval:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "false", "1", "0", "yes", "no", "on", "off":
			return nil
		}
		return invalid("auto_approval 只能是 true 或 false")
	case models.SettingPageSize:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 1 || n > 500 {
			return invalid("page_size 必须是 1 到 500 之间的整数")
		}
		return nil
	case models.SettingDefaultPassword:
		if len(strings.TrimSpace(value)) < 6 {
			return invalid("默认密码至少 6 位")
		}
		return nil
	case models.SettingSystemName:
		if strings.TrimSpace(value) == "" {
			return invalid("系统名称不能为空")
		}
		return nil
	}
	return invalid("未知的设置项: " + key)
}
