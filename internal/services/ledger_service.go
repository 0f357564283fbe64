package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plantops/valve-ledger-api/internal/metrics"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

// LedgerInput is the create/update payload for a ledger
type LedgerInput struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

// LedgerValveItem is one row of a ledger batch save; ID is nil for new rows
type LedgerValveItem struct {
	ID          *uint                    `json:"id"`
	Data        map[string]string        `json:"data"`
	Attachments []models.AttachmentInput `json:"attachments"`
}

// BatchSaveError describes a row that could not be saved
type BatchSaveError struct {
	Index int    `json:"index"`
	ID    *uint  `json:"id,omitempty"`
	Error string `json:"error"`
}

// BatchSaveResult lists the saved valve ids and the rejected rows
type BatchSaveResult struct {
	SavedIDs []uint           `json:"saved_ids"`
	Errors   []BatchSaveError `json:"errors"`
}

// LedgerWithCounts pairs a ledger with its per-status child counts
type LedgerWithCounts struct {
	Ledger models.Ledger
	Counts models.StatusCounts
}

// ToResponse renders the ledger with its derived status
func (l *LedgerWithCounts) ToResponse() models.LedgerResponse {
	return l.Ledger.ToResponse(l.Counts)
}

// LedgerService manages valve collections and their aggregate status
type LedgerService struct {
	repos    *repository.Repositories
	valves   *ValveService
	settings *SettingService
	auditSvc *AuditService
	runner   *txRunner
}

func NewLedgerService(repos *repository.Repositories, valves *ValveService, settings *SettingService, auditSvc *AuditService) *LedgerService {
	return &LedgerService{
		repos:    repos,
		valves:   valves,
		settings: settings,
		auditSvc: auditSvc,
		runner:   valves.runner,
	}
}

var errLedgerForbidden = fmt.Errorf("%w: %s", ErrForbidden, "无权操作该台账集合")

// List returns visible ledgers with their counts
func (s *LedgerService) List(ctx context.Context, actor statemachine.Actor, query *repository.ListQuery) ([]LedgerWithCounts, int64, error) {
	ledgers, total, err := s.repos.Ledger.List(ctx, scopeOf(actor), query)
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uint, len(ledgers))
	for i, l := range ledgers {
		ids[i] = l.ID
	}
	counts, err := s.repos.Valve.CountsByLedgerIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]LedgerWithCounts, len(ledgers))
	for i, l := range ledgers {
		out[i] = LedgerWithCounts{Ledger: l, Counts: counts[l.ID]}
	}
	return out, total, nil
}

// Mine lists the ledgers created by actor
func (s *LedgerService) Mine(ctx context.Context, actor statemachine.Actor, query *repository.ListQuery) ([]LedgerWithCounts, int64, error) {
	query.Normalize()
	query.Filters["mine"] = "true"
	return s.List(ctx, actor, query)
}

// Create adds an empty ledger owned by actor
func (s *LedgerService) Create(ctx context.Context, actor statemachine.Actor, in LedgerInput) (*LedgerWithCounts, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("名称不能为空")
	}

	ledger := &models.Ledger{
		Name:        name,
		Description: in.Description,
		CreatedBy:   actor.ID,
		Status:      models.ValveStatusDraft,
	}
	if err := s.repos.Ledger.Create(ctx, ledger); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditCreate, "Ledger", ledger.ID, name)
	return s.Get(ctx, actor, ledger.ID)
}

// Get returns a visible ledger with counts
func (s *LedgerService) Get(ctx context.Context, actor statemachine.Actor, id uint) (*LedgerWithCounts, error) {
	ledger, err := s.repos.Ledger.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if !statemachine.CanViewLedger(ledger, actor) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, "无权查看该台账集合")
	}

	counts, err := s.repos.Valve.CountsByLedger(ctx, id)
	if err != nil {
		return nil, err
	}
	return &LedgerWithCounts{Ledger: *ledger, Counts: counts}, nil
}

// Update renames a ledger or changes its description
func (s *LedgerService) Update(ctx context.Context, actor statemachine.Actor, id uint, in LedgerInput) (*LedgerWithCounts, error) {
	ledger, err := s.manageable(ctx, s.repos, id, actor)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("名称不能为空")
	}
	ledger.Name = name
	ledger.Description = in.Description
	if err := s.repos.Ledger.Update(ctx, ledger); err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditUpdate, "Ledger", id, name)
	return s.Get(ctx, actor, id)
}

// Delete removes a ledger with its draft and rejected valves; approved valves are
// detached and kept. Refused while any child is pending.
func (s *LedgerService) Delete(ctx context.Context, actor statemachine.Actor, id uint) error {
	var name string
	_, err := s.runner.run(ctx, func(st *txState) error {
		ledger, err := s.manageable(ctx, st.tx, id, actor)
		if err != nil {
			return err
		}
		if err := ensureNoPending(ctx, st.tx, id); err != nil {
			return err
		}

		valves, err := st.tx.Valve.FindByLedger(ctx, id)
		if err != nil {
			return err
		}
		for i := range valves {
			valve := &valves[i]
			if valve.Status == models.ValveStatusApproved {
				// approved records outlive the ledger
				valve.LedgerID = nil
				if err := st.tx.Valve.Update(ctx, valve); err != nil {
					return err
				}
				continue
			}
			if d := statemachine.CanTransition(valve, actor, models.ActionDelete); !d.Allowed {
				return denied(d)
			}
			if err := st.remove(ctx, valve); err != nil {
				return err
			}
		}

		name = ledger.Name
		return st.tx.Ledger.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditDelete, "Ledger", id, name)
	return nil
}

// Submit sends the ledger's drafts for review. With valveIDs only those are
// submitted. Drafts the actor did not create are skipped.
func (s *LedgerService) Submit(ctx context.Context, actor statemachine.Actor, id uint, valveIDs []uint) (*BatchResult, error) {
	autoApprove := s.settings.AutoApproval(ctx)

	var result *BatchResult
	_, err := s.runner.run(ctx, func(st *txState) error {
		if _, err := s.manageable(ctx, st.tx, id, actor); err != nil {
			return err
		}

		drafts, err := st.tx.Valve.FindByLedger(ctx, id, models.ValveStatusDraft)
		if err != nil {
			return err
		}

		selected := make(map[uint]bool, len(valveIDs))
		for _, vid := range valveIDs {
			selected[vid] = true
		}

		result = &BatchResult{Skipped: []BatchSkip{}}
		for i := range drafts {
			valve := &drafts[i]
			if len(selected) > 0 && !selected[valve.ID] {
				continue
			}
			if err := st.transition(ctx, valve, actor, models.ActionSubmit, "", autoApprove); err != nil {
				if isDenial(err) {
					result.skip(valve.ID, valve.Tag, err)
					continue
				}
				return err
			}
			result.Processed++
		}

		if result.Processed == 0 {
			return ErrNothingToSubmit
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Approve approves every pending valve of the ledger
func (s *LedgerService) Approve(ctx context.Context, actor statemachine.Actor, id uint, comment string) (*BatchResult, error) {
	return s.BatchTransition(ctx, actor, []uint{id}, models.ActionApprove, comment)
}

// Reject rejects every pending valve of the ledger
func (s *LedgerService) Reject(ctx context.Context, actor statemachine.Actor, id uint, comment string) (*BatchResult, error) {
	return s.BatchTransition(ctx, actor, []uint{id}, models.ActionReject, comment)
}

// BatchTransition approves or rejects the pending valves of several ledgers in one transaction.
// Unknown ledgers are reported as skipped with their ledger id.
func (s *LedgerService) BatchTransition(ctx context.Context, actor statemachine.Actor, ledgerIDs []uint, action, comment string) (*BatchResult, error) {
	if action != models.ActionApprove && action != models.ActionReject {
		return nil, invalid(statemachine.MsgUnknownAction)
	}
	if !actor.IsPrivileged() {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, statemachine.MsgNeedLeader)
	}
	if len(ledgerIDs) == 0 {
		return nil, invalid("请选择要操作的台账集合")
	}

	var result *BatchResult
	_, err := s.runner.run(ctx, func(st *txState) error {
		result = &BatchResult{Skipped: []BatchSkip{}}

		ledgers, err := st.tx.Ledger.FindByIDs(ctx, ledgerIDs)
		if err != nil {
			return err
		}
		found := make(map[uint]bool, len(ledgers))
		for _, l := range ledgers {
			found[l.ID] = true
		}

		for _, lid := range ledgerIDs {
			if !found[lid] {
				result.skip(lid, "", ErrNotFound)
				continue
			}
			pending, err := st.tx.Valve.FindByLedger(ctx, lid, models.ValveStatusPending)
			if err != nil {
				return err
			}
			for i := range pending {
				if err := st.transition(ctx, &pending[i], actor, action, comment, false); err != nil {
					return err
				}
				result.Processed++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddValve creates a draft valve inside the ledger
func (s *LedgerService) AddValve(ctx context.Context, actor statemachine.Actor, id uint, in ValveInput) (*models.Valve, error) {
	in.LedgerID = &id
	in.Submit = false
	return s.valves.Create(ctx, actor, in)
}

// BatchSave creates or edits several valves of the ledger in one transaction.
// Rows that fail validation are reported and skipped; the rest are saved as drafts.
func (s *LedgerService) BatchSave(ctx context.Context, actor statemachine.Actor, id uint, items []LedgerValveItem) (*BatchSaveResult, error) {
	if len(items) == 0 {
		return nil, invalid("无效数据格式")
	}

	result := &BatchSaveResult{SavedIDs: []uint{}, Errors: []BatchSaveError{}}
	seenTags := make(map[string]int)

	_, err := s.runner.run(ctx, func(st *txState) error {
		if _, err := s.manageable(ctx, st.tx, id, actor); err != nil {
			return err
		}
		if err := ensureNoPending(ctx, st.tx, id); err != nil {
			return err
		}

		for idx, item := range items {
			fail := func(msg string) {
				result.Errors = append(result.Errors, BatchSaveError{Index: idx, ID: item.ID, Error: msg})
			}

			var valve *models.Valve
			var existing []models.ValveAttachment
			if item.ID != nil && *item.ID != 0 {
				v, err := st.tx.Valve.FindByID(ctx, *item.ID)
				if err != nil || v.LedgerID == nil || *v.LedgerID != id {
					fail(ErrNotFound.Error())
					continue
				}
				if d := statemachine.CanTransition(v, actor, models.ActionEdit); !d.Allowed {
					fail(d.Message)
					continue
				}
				if v.Status != models.ValveStatusDraft && v.Status != models.ValveStatusRejected {
					fail(statemachine.MsgStateEdit)
					continue
				}
				valve, existing = v, v.Attachments
			} else {
				valve = &models.Valve{LedgerID: &id, CreatedBy: actor.ID, Status: models.ValveStatusDraft}
			}

			if err := applyValveFields(valve, item.Data); err != nil {
				fail(err.Error())
				continue
			}
			if prev, dup := seenTags[valve.Tag]; dup {
				fail(fmt.Sprintf("位号与第 %d 行重复", prev+1))
				continue
			}
			taken, err := st.tx.Valve.TagTaken(ctx, valve.Tag, valve.ID, 0)
			if err != nil {
				return err
			}
			if taken {
				fail(ErrDuplicate.Error())
				continue
			}
			seenTags[valve.Tag] = idx

			if valve.ID == 0 {
				if err := st.tx.Valve.Create(ctx, valve); err != nil {
					return err
				}
			} else {
				if err := statemachine.NewValveFSM(valve).Edit(ctx); err != nil {
					return err
				}
				if err := st.tx.Valve.Update(ctx, valve); err != nil {
					return err
				}
			}
			if err := applyAttachmentPlan(ctx, st.tx, valve.ID, DiffAttachments(existing, item.Attachments)); err != nil {
				return err
			}
			result.SavedIDs = append(result.SavedIDs, valve.ID)
		}

		st.touchLedger(&id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditUpdate, "Ledger", id, fmt.Sprintf("批量保存 %d 条", len(result.SavedIDs)))
	return result, nil
}

// BatchDeleteValves removes draft or rejected valves of the ledger
func (s *LedgerService) BatchDeleteValves(ctx context.Context, actor statemachine.Actor, id uint, valveIDs []uint) (*BatchResult, error) {
	if len(valveIDs) == 0 {
		return nil, invalid("请选择要删除的记录")
	}

	var result *BatchResult
	_, err := s.runner.run(ctx, func(st *txState) error {
		if _, err := s.manageable(ctx, st.tx, id, actor); err != nil {
			return err
		}
		if err := ensureNoPending(ctx, st.tx, id); err != nil {
			return err
		}

		valves, err := st.tx.Valve.FindByIDs(ctx, valveIDs)
		if err != nil {
			return err
		}
		byID := make(map[uint]*models.Valve, len(valves))
		for i := range valves {
			byID[valves[i].ID] = &valves[i]
		}

		result = &BatchResult{Skipped: []BatchSkip{}}
		for _, vid := range valveIDs {
			valve, ok := byID[vid]
			if !ok || valve.LedgerID == nil || *valve.LedgerID != id {
				result.skip(vid, "", ErrNotFound)
				continue
			}
			if d := statemachine.CanTransition(valve, actor, models.ActionDelete); !d.Allowed {
				result.skip(vid, valve.Tag, denied(d))
				continue
			}
			if err := st.remove(ctx, valve); err != nil {
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
		s.auditSvc.Log(ctx, actor.ID, AuditDelete, "Ledger", id, fmt.Sprintf("批量删除 %d 条", result.Processed))
	}
	return result, nil
}

// Valves returns every valve of a visible ledger, for export
func (s *LedgerService) Valves(ctx context.Context, actor statemachine.Actor, id uint) (*LedgerWithCounts, []models.Valve, error) {
	ledger, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	query := repository.NewValveQuery()
	query.LedgerID = &id
	query.PerPage = 0
	valves, _, err := s.repos.Valve.List(ctx, scopeOf(actor), query)
	if err != nil {
		return nil, nil, err
	}
	return ledger, valves, nil
}

// ReconcileAll recomputes every ledger's stored status and returns how many changed
func (s *LedgerService) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.repos.Ledger.FindAllIDs(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		var updated bool
		err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			updated, err = recomputeLedger(ctx, tx, id, s.runner.now())
			return err
		})
		if err != nil {
			logger.Error("failed to reconcile ledger", "ledger_id", id, "error", err)
			continue
		}
		if updated {
			changed++
		}
	}

	metrics.LedgerReconcileChanges.Add(float64(changed))
	return changed, nil
}

func (s *LedgerService) manageable(ctx context.Context, repos *repository.Repositories, id uint, actor statemachine.Actor) (*models.Ledger, error) {
	ledger, err := repos.Ledger.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err)
	}
	if !statemachine.CanManageLedger(ledger, actor) {
		return nil, errLedgerForbidden
	}
	return ledger, nil
}

func ensureNoPending(ctx context.Context, tx *repository.Repositories, ledgerID uint) error {
	counts, err := tx.Valve.CountsByLedger(ctx, ledgerID)
	if err != nil {
		return err
	}
	if counts.Pending > 0 {
		return ErrLedgerHasPending
	}
	return nil
}

func isDenial(err error) bool {
	var denial *TransitionError
	return errors.As(err, &denial)
}
