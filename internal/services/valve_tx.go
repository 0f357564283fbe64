package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/plantops/valve-ledger-api/internal/metrics"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/internal/storage"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

// txState collects the side effects of one transaction: ledgers to
// recompute before commit, and notifications, metrics and file removals
// to run after it.
type txState struct {
	tx        *repository.Repositories
	now       time.Time
	ledgers   map[uint]struct{}
	events    []ValveEvent
	photoKeys []string
}

func newTxState(tx *repository.Repositories, now time.Time) *txState {
	return &txState{tx: tx, now: now, ledgers: make(map[uint]struct{})}
}

func (st *txState) touchLedger(id *uint) {
	if id != nil {
		st.ledgers[*id] = struct{}{}
	}
}

// transition applies a guarded submit/approve/reject and appends its approval log
func (st *txState) transition(ctx context.Context, valve *models.Valve, actor statemachine.Actor, action, comment string, autoApprove bool) error {
	d := statemachine.CanTransition(valve, actor, action)
	if !d.Allowed {
		return denied(d)
	}

	vfsm := statemachine.NewValveFSM(valve)
	logAction := action
	var err error
	switch action {
	case models.ActionSubmit:
		logAction, err = vfsm.Submit(ctx, actor.ID, autoApprove, st.now)
	case models.ActionApprove:
		err = vfsm.Approve(ctx, actor.ID, st.now)
	case models.ActionReject:
		err = vfsm.Reject(ctx)
	default:
		return denied(statemachine.CanTransition(valve, actor, ""))
	}
	if err != nil {
		return err
	}

	if err := st.tx.Valve.Update(ctx, valve); err != nil {
		return err
	}

	entry := &models.ApprovalLog{
		ValveID:  valve.ID,
		ValveTag: valve.Tag,
		LedgerID: valve.LedgerID,
		Action:   logAction,
		UserID:   actor.ID,
		Comment:  comment,
	}
	if err := st.tx.ApprovalLog.Create(ctx, entry); err != nil {
		return err
	}

	st.touchLedger(valve.LedgerID)
	st.events = append(st.events, ValveEvent{
		Action:    logAction,
		ValveID:   valve.ID,
		ValveTag:  valve.Tag,
		CreatorID: valve.CreatedBy,
		ActorID:   actor.ID,
		Comment:   comment,
	})
	return nil
}

// remove deletes a valve with its attachments, photos and maintenance
// records. Approval logs are kept.
func (st *txState) remove(ctx context.Context, valve *models.Valve) error {
	if err := st.tx.Attachment.DeleteByValve(ctx, valve.ID); err != nil {
		return err
	}
	if err := st.tx.Maintenance.DeleteByValve(ctx, valve.ID); err != nil {
		return err
	}
	keys, err := st.tx.Photo.DeleteByValve(ctx, valve.ID)
	if err != nil {
		return err
	}
	if err := st.tx.Valve.Delete(ctx, valve.ID); err != nil {
		return err
	}
	st.photoKeys = append(st.photoKeys, keys...)
	st.touchLedger(valve.LedgerID)
	return nil
}

// finish recomputes every touched ledger inside the transaction
func (st *txState) finish(ctx context.Context) error {
	ids := make([]uint, 0, len(st.ledgers))
	for id := range st.ledgers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if _, err := recomputeLedger(ctx, st.tx, id, st.now); err != nil {
			return err
		}
	}
	return nil
}

// recomputeLedger stores the aggregate status of a ledger; a missing ledger is ignored
func recomputeLedger(ctx context.Context, tx *repository.Repositories, ledgerID uint, now time.Time) (bool, error) {
	ledger, err := tx.Ledger.FindByID(ctx, ledgerID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	counts, err := tx.Valve.CountsByLedger(ctx, ledgerID)
	if err != nil {
		return false, err
	}

	if !ledger.ApplyAggregate(counts, now) {
		return false, nil
	}
	return true, tx.Ledger.Update(ctx, ledger)
}

// txRunner runs mutations through txState and performs post-commit work
type txRunner struct {
	repos    *repository.Repositories
	notifier *NotificationService
	store    storage.FileStore
	now      func() time.Time
}

func (r *txRunner) run(ctx context.Context, fn func(st *txState) error) (*txState, error) {
	var st *txState
	err := r.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		st = newTxState(tx, r.now())
		if err := fn(st); err != nil {
			return err
		}
		return st.finish(ctx)
	})
	if err != nil {
		return nil, err
	}
	r.afterCommit(ctx, st)
	return st, nil
}

func (r *txRunner) afterCommit(ctx context.Context, st *txState) {
	for _, ev := range st.events {
		metrics.ValveTransitionsTotal.WithLabelValues(ev.Action).Inc()
	}
	if r.notifier != nil {
		r.notifier.Dispatch(st.events)
	}
	if r.store != nil {
		for _, key := range st.photoKeys {
			if err := r.store.Delete(ctx, key); err != nil {
				logger.Warn("failed to delete photo file", "key", key, "error", err)
			}
		}
	}
}

// runWithTagRetry retries fn once after removing the actor's own stale
// draft that holds tag. keepID is never removed (the valve being edited).
func (r *txRunner) runWithTagRetry(ctx context.Context, actor statemachine.Actor, tag string, keepID uint, fn func(st *txState) error) (*txState, error) {
	st, err := r.run(ctx, fn)
	if err == nil || !repository.IsDuplicateKey(err) {
		return st, err
	}

	removed := false
	_, cerr := r.run(ctx, func(cst *txState) error {
		stale, err := cst.tx.Valve.FindDraftByTagAndCreator(ctx, tag, actor.ID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return err
		}
		if stale.ID == keepID {
			return nil
		}
		removed = true
		return cst.remove(ctx, stale)
	})
	if cerr != nil {
		return nil, cerr
	}
	if !removed {
		return nil, ErrDuplicate
	}
	logger.Warn("removed stale draft holding tag, retrying", "tag", tag, "user_id", actor.ID)

	st, err = r.run(ctx, fn)
	if err != nil && repository.IsDuplicateKey(err) {
		return nil, ErrDuplicate
	}
	return st, err
}

func notFoundAs(err error) error {
	if errors.Is(err, ErrNotFound) || repository.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
