package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
)

// MaintenanceInput is the create/update payload for a maintenance record
type MaintenanceInput struct {
	Center        string `json:"center"`
	EquipmentTag  string `json:"equipment_tag"`
	EquipmentName string `json:"equipment_name"`
	MaintainedAt  string `json:"maintained_at"` // 2006-01-02T15:04, 2006-01-02 15:04:05 or 2006-01-02
	Content       string `json:"content"`
	Personnel     string `json:"personnel"`
	Type          string `json:"type"`
}

var maintenanceTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseMaintenanceTime accepts the layouts used by date pickers and spreadsheets
func ParseMaintenanceTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range maintenanceTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, invalid("检修时间格式错误")
}

func (in MaintenanceInput) apply(record *models.MaintenanceRecord) error {
	when, err := ParseMaintenanceTime(in.MaintainedAt)
	if err != nil {
		return err
	}
	record.Center = strings.TrimSpace(in.Center)
	record.EquipmentTag = strings.TrimSpace(in.EquipmentTag)
	record.EquipmentName = strings.TrimSpace(in.EquipmentName)
	record.MaintainedAt = when
	record.Content = in.Content
	record.Personnel = strings.TrimSpace(in.Personnel)
	record.Type = strings.TrimSpace(in.Type)
	return nil
}

type MaintenanceService struct {
	repos    *repository.Repositories
	valves   *ValveService
	auditSvc *AuditService
}

func NewMaintenanceService(repos *repository.Repositories, valves *ValveService, auditSvc *AuditService) *MaintenanceService {
	return &MaintenanceService{repos: repos, valves: valves, auditSvc: auditSvc}
}

// ListByValve returns the records of a visible valve, latest first
func (s *MaintenanceService) ListByValve(ctx context.Context, actor statemachine.Actor, valveID uint) ([]models.MaintenanceRecord, error) {
	if _, err := s.valves.Get(ctx, actor, valveID); err != nil {
		return nil, err
	}
	return s.repos.Maintenance.FindByValve(ctx, valveID)
}

// List searches all maintenance records
func (s *MaintenanceService) List(ctx context.Context, query *repository.ListQuery) ([]models.MaintenanceRecord, int64, error) {
	return s.repos.Maintenance.List(ctx, query)
}

// Create adds a record to a visible valve. Tag and name default to the valve's.
func (s *MaintenanceService) Create(ctx context.Context, actor statemachine.Actor, valveID uint, in MaintenanceInput) (*models.MaintenanceRecord, error) {
	valve, err := s.valves.Get(ctx, actor, valveID)
	if err != nil {
		return nil, err
	}

	record := &models.MaintenanceRecord{ValveID: valveID, CreatedBy: actor.ID}
	if err := in.apply(record); err != nil {
		return nil, err
	}
	if record.EquipmentTag == "" {
		record.EquipmentTag = valve.Tag
	}
	if record.EquipmentName == "" {
		record.EquipmentName = valve.Name
	}

	if err := s.repos.Maintenance.Create(ctx, record); err != nil {
		return nil, err
	}
	s.auditSvc.Log(ctx, actor.ID, AuditCreate, "MaintenanceRecord", record.ID, record.EquipmentTag)
	return record, nil
}

// Update changes a record; its author and privileged users may do so
func (s *MaintenanceService) Update(ctx context.Context, actor statemachine.Actor, id uint, in MaintenanceInput) (*models.MaintenanceRecord, error) {
	record, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(record); err != nil {
		return nil, err
	}
	if record.EquipmentTag == "" {
		if valve, err := s.repos.Valve.FindByID(ctx, record.ValveID); err == nil {
			record.EquipmentTag = valve.Tag
		}
	}

	if err := s.repos.Maintenance.Update(ctx, record); err != nil {
		return nil, err
	}
	s.auditSvc.Log(ctx, actor.ID, AuditUpdate, "MaintenanceRecord", id, record.EquipmentTag)
	return record, nil
}

// Delete removes a record
func (s *MaintenanceService) Delete(ctx context.Context, actor statemachine.Actor, id uint) error {
	record, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repos.Maintenance.Delete(ctx, id); err != nil {
		return err
	}
	s.auditSvc.Log(ctx, actor.ID, AuditDelete, "MaintenanceRecord", id, record.EquipmentTag)
	return nil
}

// BatchDelete removes several records, skipping those the actor may not touch
func (s *MaintenanceService) BatchDelete(ctx context.Context, actor statemachine.Actor, ids []uint) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, invalid("请选择要删除的记录")
	}
	result := &BatchResult{Skipped: []BatchSkip{}}
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		for _, id := range ids {
			record, err := tx.Maintenance.FindByID(ctx, id)
			if err != nil {
				if repository.IsNotFound(err) {
					result.skip(id, "", ErrNotFound)
					continue
				}
				return err
			}
			if record.CreatedBy != actor.ID && !actor.IsPrivileged() {
				result.skip(id, record.EquipmentTag, ErrForbidden)
				continue
			}
			if err := tx.Maintenance.Delete(ctx, id); err != nil {
				return err
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Processed > 0 {
		s.auditSvc.Log(ctx, actor.ID, AuditDelete, "MaintenanceRecord", 0, fmt.Sprintf("批量删除 %d 条", result.Processed))
	}
	return result, nil
}

func (s *MaintenanceService) owned(ctx context.Context, actor statemachine.Actor, id uint) (*models.MaintenanceRecord, error) {
	record, err := s.repos.Maintenance.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if record.CreatedBy != actor.ID && !actor.IsPrivileged() {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, "只能修改自己的检修记录")
	}
	return record, nil
}
