package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/internal/storage"
)

// ValveInput is the create/edit payload. Fields is keyed by JSON name or Chinese label.
type ValveInput struct {
	Fields      map[string]string        `json:"fields"`
	Attachments []models.AttachmentInput `json:"attachments"`
	LedgerID    *uint                    `json:"ledger_id"`
	Submit      bool                     `json:"submit"`
}

// BatchSkip explains why one item of a batch was left alone
type BatchSkip struct {
	ID     uint   `json:"id"`
	Tag    string `json:"tag,omitempty"`
	Reason string `json:"reason"`
}

// BatchResult summarises a batch operation
type BatchResult struct {
	Processed int         `json:"processed"`
	Skipped   []BatchSkip `json:"skipped"`
}

func (r *BatchResult) skip(id uint, tag string, err error) {
	r.Skipped = append(r.Skipped, BatchSkip{ID: id, Tag: tag, Reason: err.Error()})
}

// ValveService implements the valve approval workflow
type ValveService struct {
	repos    *repository.Repositories
	settings *SettingService
	auditSvc *AuditService
	runner   *txRunner
}

func NewValveService(repos *repository.Repositories, settings *SettingService, auditSvc *AuditService, notifier *NotificationService, store storage.FileStore) *ValveService {
	return &ValveService{
		repos:    repos,
		settings: settings,
		auditSvc: auditSvc,
		runner: &txRunner{
			repos:    repos,
			notifier: notifier,
			store:    store,
			now:      time.Now,
		},
	}
}

func scopeOf(actor statemachine.Actor) repository.Scope {
	return repository.Scope{UserID: actor.ID, IsPrivileged: actor.IsPrivileged()}
}

// applyValveFields copies input fields onto valve and checks the tag
func applyValveFields(valve *models.Valve, fields map[string]string) error {
	if unknown := valve.ApplyFields(fields); len(unknown) > 0 {
		sort.Strings(unknown)
		return invalid("未知字段: " + strings.Join(unknown, ", "))
	}
	if valve.Tag == "" {
		return invalid("位号不能为空")
	}
	return nil
}

func (s *ValveService) checkTag(ctx context.Context, actor statemachine.Actor, tag string, excludeID uint) error {
	taken, err := s.repos.Valve.TagTaken(ctx, tag, excludeID, actor.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicate
	}
	return nil
}

// loadLedgerForWrite returns the ledger when actor may add records to it
func loadLedgerForWrite(ctx context.Context, tx *repository.Repositories, ledgerID uint, actor statemachine.Actor) (*models.Ledger, error) {
	ledger, err := tx.Ledger.FindByID(ctx, ledgerID)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if !statemachine.CanManageLedger(ledger, actor) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, "无权操作该台账集合")
	}
	return ledger, nil
}

// Create stores a new valve as draft, optionally submitting it right away
func (s *ValveService) Create(ctx context.Context, actor statemachine.Actor, in ValveInput) (*models.Valve, error) {
	var template models.Valve
	if err := applyValveFields(&template, in.Fields); err != nil {
		return nil, err
	}
	if err := s.checkTag(ctx, actor, template.Tag, 0); err != nil {
		return nil, err
	}

	autoApprove := in.Submit && s.settings.AutoApproval(ctx)
	var createdID uint

	_, err := s.runner.runWithTagRetry(ctx, actor, template.Tag, 0, func(st *txState) error {
		valve := template
		valve.Status = models.ValveStatusDraft
		valve.CreatedBy = actor.ID
		valve.LedgerID = in.LedgerID

		if in.LedgerID != nil {
			if _, err := loadLedgerForWrite(ctx, st.tx, *in.LedgerID, actor); err != nil {
				return err
			}
		}

		if err := st.tx.Valve.Create(ctx, &valve); err != nil {
			return err
		}
		if err := applyAttachmentPlan(ctx, st.tx, valve.ID, DiffAttachments(nil, in.Attachments)); err != nil {
			return err
		}

		if in.Submit {
			if err := st.transition(ctx, &valve, actor, models.ActionSubmit, "", autoApprove); err != nil {
				return err
			}
		}

		st.touchLedger(valve.LedgerID)
		createdID = valve.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditCreate, "Valve", createdID, template.Tag)
	return s.repos.Valve.FindByID(ctx, createdID)
}

// SaveDraft creates a draft or updates an existing one without submitting
func (s *ValveService) SaveDraft(ctx context.Context, actor statemachine.Actor, id uint, in ValveInput) (*models.Valve, error) {
	in.Submit = false
	if id == 0 {
		return s.Create(ctx, actor, in)
	}

	valve, err := s.repos.Valve.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if valve.Status != models.ValveStatusDraft {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, "只有草稿可以暂存")
	}
	return s.Update(ctx, actor, id, in)
}

// Get returns a valve the actor may view
func (s *ValveService) Get(ctx context.Context, actor statemachine.Actor, id uint) (*models.Valve, error) {
	valve, err := s.repos.Valve.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if !statemachine.CanView(valve, actor) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, "无权查看")
	}
	return valve, nil
}

// Update edits a valve. Any edit puts it back to draft; with in.Submit it is
// resubmitted when the actor is allowed to.
func (s *ValveService) Update(ctx context.Context, actor statemachine.Actor, id uint, in ValveInput) (*models.Valve, error) {
	current, err := s.repos.Valve.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if d := statemachine.CanTransition(current, actor, models.ActionEdit); !d.Allowed {
		return nil, denied(d)
	}

	candidate := *current
	if err := applyValveFields(&candidate, in.Fields); err != nil {
		return nil, err
	}
	if err := s.checkTag(ctx, actor, candidate.Tag, id); err != nil {
		return nil, err
	}

	autoApprove := in.Submit && s.settings.AutoApproval(ctx)

	_, err = s.runner.runWithTagRetry(ctx, actor, candidate.Tag, id, func(st *txState) error {
		valve, err := st.tx.Valve.FindByID(ctx, id)
		if err != nil {
			return notFoundAs(err)
		}
		if d := statemachine.CanTransition(valve, actor, models.ActionEdit); !d.Allowed {
			return denied(d)
		}

		if err := applyValveFields(valve, in.Fields); err != nil {
			return err
		}
		if err := statemachine.NewValveFSM(valve).Edit(ctx); err != nil {
			return err
		}
		if err := st.tx.Valve.Update(ctx, valve); err != nil {
			return err
		}
		if err := applyAttachmentPlan(ctx, st.tx, valve.ID, DiffAttachments(valve.Attachments, in.Attachments)); err != nil {
			return err
		}
		st.touchLedger(valve.LedgerID)

		if in.Submit && statemachine.CanTransition(valve, actor, models.ActionSubmit).Allowed {
			return st.transition(ctx, valve, actor, models.ActionSubmit, "", autoApprove)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditUpdate, "Valve", id, candidate.Tag)
	return s.repos.Valve.FindByID(ctx, id)
}

// Submit sends a draft for review, or approves it directly when auto approval is on
func (s *ValveService) Submit(ctx context.Context, actor statemachine.Actor, id uint) (*models.Valve, error) {
	return s.transitionOne(ctx, actor, id, models.ActionSubmit, "")
}

// Approve accepts a pending valve
func (s *ValveService) Approve(ctx context.Context, actor statemachine.Actor, id uint, comment string) (*models.Valve, error) {
	return s.transitionOne(ctx, actor, id, models.ActionApprove, comment)
}

// Reject sends a pending valve back to its creator
func (s *ValveService) Reject(ctx context.Context, actor statemachine.Actor, id uint, comment string) (*models.Valve, error) {
	return s.transitionOne(ctx, actor, id, models.ActionReject, comment)
}

func (s *ValveService) transitionOne(ctx context.Context, actor statemachine.Actor, id uint, action, comment string) (*models.Valve, error) {
	autoApprove := action == models.ActionSubmit && s.settings.AutoApproval(ctx)

	_, err := s.runner.run(ctx, func(st *txState) error {
		valve, err := st.tx.Valve.FindByID(ctx, id)
		if err != nil {
			return notFoundAs(err)
		}
		return st.transition(ctx, valve, actor, action, comment, autoApprove)
	})
	if err != nil {
		return nil, err
	}
	return s.repos.Valve.FindByID(ctx, id)
}

// Delete removes a draft or rejected valve with its children
func (s *ValveService) Delete(ctx context.Context, actor statemachine.Actor, id uint) error {
	var tag string
	_, err := s.runner.run(ctx, func(st *txState) error {
		valve, err := st.tx.Valve.FindByID(ctx, id)
		if err != nil {
			return notFoundAs(err)
		}
		if d := statemachine.CanTransition(valve, actor, models.ActionDelete); !d.Allowed {
			return denied(d)
		}
		tag = valve.Tag
		return st.remove(ctx, valve)
	})
	if err != nil {
		return err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditDelete, "Valve", id, tag)
	return nil
}

// BatchDelete deletes every allowed valve; refused ones are reported as skipped
func (s *ValveService) BatchDelete(ctx context.Context, actor statemachine.Actor, ids []uint) (*BatchResult, error) {
	result, err := s.batch(ctx, ids, func(st *txState, valve *models.Valve) error {
		if d := statemachine.CanTransition(valve, actor, models.ActionDelete); !d.Allowed {
			return denied(d)
		}
		return st.remove(ctx, valve)
	})
	if err == nil && result.Processed > 0 {
		s.auditSvc.Log(ctx, actor.ID, AuditDelete, "Valve", 0, fmt.Sprintf("批量删除 %d 条", result.Processed))
	}
	return result, err
}

// BatchApprove approves every pending valve in ids
func (s *ValveService) BatchApprove(ctx context.Context, actor statemachine.Actor, ids []uint, comment string) (*BatchResult, error) {
	return s.batchTransition(ctx, actor, ids, models.ActionApprove, comment)
}

// BatchReject rejects every pending valve in ids
func (s *ValveService) BatchReject(ctx context.Context, actor statemachine.Actor, ids []uint, comment string) (*BatchResult, error) {
	return s.batchTransition(ctx, actor, ids, models.ActionReject, comment)
}

func (s *ValveService) batchTransition(ctx context.Context, actor statemachine.Actor, ids []uint, action, comment string) (*BatchResult, error) {
	if !actor.IsPrivileged() {
		return nil, denied(statemachine.CanTransition(&models.Valve{}, actor, action))
	}
	return s.batch(ctx, ids, func(st *txState, valve *models.Valve) error {
		return st.transition(ctx, valve, actor, action, comment, false)
	})
}

// batch runs fn for each id in one transaction. Guard denials are recorded
// as skips; any other error aborts the whole batch.
func (s *ValveService) batch(ctx context.Context, ids []uint, fn func(st *txState, valve *models.Valve) error) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, invalid("请选择要操作的记录")
	}

	var result *BatchResult
	_, err := s.runner.run(ctx, func(st *txState) error {
		result = &BatchResult{Skipped: []BatchSkip{}}

		valves, err := st.tx.Valve.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uint]*models.Valve, len(valves))
		for i := range valves {
			byID[valves[i].ID] = &valves[i]
		}

		for _, id := range ids {
			valve, ok := byID[id]
			if !ok {
				result.skip(id, "", ErrNotFound)
				continue
			}
			if err := fn(st, valve); err != nil {
				if isDenial(err) {
					result.skip(id, valve.Tag, err)
					continue
				}
				return err
			}
			result.Processed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CheckTag reports whether tag can be used by actor
func (s *ValveService) CheckTag(ctx context.Context, actor statemachine.Actor, tag string, excludeID uint) (bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, invalid("位号不能为空")
	}
	taken, err := s.repos.Valve.TagTaken(ctx, tag, excludeID, actor.ID)
	return !taken, err
}

// List returns the valves visible to actor
func (s *ValveService) List(ctx context.Context, actor statemachine.Actor, query *repository.ValveQuery) ([]models.Valve, int64, error) {
	query.IncludeAll = false
	return s.repos.Valve.List(ctx, scopeOf(actor), query)
}

// Mine lists the valves created by actor, in any status
func (s *ValveService) Mine(ctx context.Context, actor statemachine.Actor, query *repository.ValveQuery) ([]models.Valve, int64, error) {
	query.IncludeAll = false
	query.CreatedBy = &actor.ID
	return s.repos.Valve.List(ctx, scopeOf(actor), query)
}

// ApprovalQueue lists valves by review status for privileged users; defaults to pending
func (s *ValveService) ApprovalQueue(ctx context.Context, actor statemachine.Actor, status string, query *repository.ValveQuery) ([]models.Valve, int64, error) {
	if !actor.IsPrivileged() {
		return nil, 0, fmt.Errorf("%w: %s", ErrForbidden, statemachine.MsgNeedLeader)
	}
	switch status {
	case "":
		status = models.ValveStatusPending
	case models.ValveStatusPending, models.ValveStatusApproved, models.ValveStatusRejected:
	default:
		return nil, 0, invalid("无效的审批状态")
	}
	query.Statuses = []string{status}
	query.IncludeAll = true
	return s.repos.Valve.List(ctx, scopeOf(actor), query)
}

// FilterOptions returns distinct values per filterable field
func (s *ValveService) FilterOptions(ctx context.Context, actor statemachine.Actor, ledgerID *uint) (map[string][]string, error) {
	return s.repos.Valve.DistinctValues(ctx, scopeOf(actor), ledgerID)
}

// Logs returns the approval history of a visible valve, newest first
func (s *ValveService) Logs(ctx context.Context, actor statemachine.Actor, id uint) ([]models.ApprovalLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repos.ApprovalLog.FindByValve(ctx, id)
}

// Counts returns per-status totals scoped like List
func (s *ValveService) Counts(ctx context.Context, actor statemachine.Actor) (models.StatusCounts, error) {
	return s.repos.Valve.CountByStatus(ctx, scopeOf(actor))
}

// CleanupStaleDrafts deletes drafts outside any ledger untouched for maxAge
func (s *ValveService) CleanupStaleDrafts(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.runner.now().Add(-maxAge)

	var removed []models.Valve
	_, err := s.runner.run(ctx, func(st *txState) error {
		stale, err := st.tx.Valve.FindStaleDrafts(ctx, cutoff)
		if err != nil {
			return err
		}
		for i := range stale {
			if stale[i].Status != models.ValveStatusDraft {
				continue
			}
			if err := st.remove(ctx, &stale[i]); err != nil {
				return err
			}
			removed = append(removed, stale[i])
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, v := range removed {
		s.auditSvc.Log(ctx, 0, AuditDelete, "Valve", v.ID, fmt.Sprintf("%s 长期未提交的草稿已清理 (创建人 %d)", v.Tag, v.CreatedBy))
	}
	return len(removed), nil
}
