package statemachine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/plantops/valve-ledger-api/internal/models"
)

// Event names
const (
	EventSubmit      = "submit"
	EventAutoApprove = "auto_approve"
	EventApprove     = "approve"
	EventReject      = "reject"
	EventEdit        = "edit"
)

// ValveFSM wraps a valve with its state machine
type ValveFSM struct {
	valve *models.Valve
	fsm   *fsm.FSM
}

// NewValveFSM creates a new valve state machine
func NewValveFSM(valve *models.Valve) *ValveFSM {
	vfsm := &ValveFSM{
		valve: valve,
	}

	initial := valve.Status
	if initial == "" {
		initial = models.ValveStatusDraft
	}

	vfsm.fsm = fsm.NewFSM(
		initial,
		fsm.Events{
			// draft → pending
			{Name: EventSubmit, Src: []string{models.ValveStatusDraft}, Dst: models.ValveStatusPending},

			// draft → approved when auto approval is enabled
			{Name: EventAutoApprove, Src: []string{models.ValveStatusDraft}, Dst: models.ValveStatusApproved},

			// pending → approved
			{Name: EventApprove, Src: []string{models.ValveStatusPending}, Dst: models.ValveStatusApproved},

			// pending → rejected
			{Name: EventReject, Src: []string{models.ValveStatusPending}, Dst: models.ValveStatusRejected},

			// draft/rejected/approved → draft
			{Name: EventEdit, Src: []string{models.ValveStatusDraft, models.ValveStatusRejected, models.ValveStatusApproved}, Dst: models.ValveStatusDraft},
		},
		fsm.Callbacks{},
	)

	return vfsm
}

// Submit sends a draft for review. With autoApprove it goes straight to approved
// with the submitter recorded as approver; the returned action is the log tag to write.
func (v *ValveFSM) Submit(ctx context.Context, actorID uint, autoApprove bool, now time.Time) (string, error) {
	if !v.valve.MaySubmit() {
		return "", fmt.Errorf("valve cannot be submitted in current state: %s", v.valve.Status)
	}

	if autoApprove {
		if err := v.fire(ctx, EventAutoApprove); err != nil {
			return "", fmt.Errorf("failed to auto approve valve: %w", err)
		}
		v.markApproved(actorID, now)
		return models.ActionApprove, nil
	}

	if err := v.fire(ctx, EventSubmit); err != nil {
		return "", fmt.Errorf("failed to submit valve: %w", err)
	}
	return models.ActionSubmit, nil
}

// Approve transitions a pending valve to approved
func (v *ValveFSM) Approve(ctx context.Context, approverID uint, now time.Time) error {
	if !v.valve.MayApprove() {
		return fmt.Errorf("valve cannot be approved in current state: %s", v.valve.Status)
	}

	if err := v.fire(ctx, EventApprove); err != nil {
		return fmt.Errorf("failed to approve valve: %w", err)
	}

	v.markApproved(approverID, now)
	return nil
}

// Reject transitions a pending valve to rejected
func (v *ValveFSM) Reject(ctx context.Context) error {
	if !v.valve.MayReject() {
		return fmt.Errorf("valve cannot be rejected in current state: %s", v.valve.Status)
	}

	if err := v.fire(ctx, EventReject); err != nil {
		return fmt.Errorf("failed to reject valve: %w", err)
	}

	v.valve.ApprovedBy = nil
	v.valve.ApprovedAt = nil
	return nil
}

// Edit returns an editable valve to draft, dropping any previous approval
func (v *ValveFSM) Edit(ctx context.Context) error {
	if !v.valve.MayEdit() {
		return fmt.Errorf("valve cannot be edited in current state: %s", v.valve.Status)
	}

	if err := v.fire(ctx, EventEdit); err != nil {
		return fmt.Errorf("failed to reset valve to draft: %w", err)
	}

	v.valve.ApprovedBy = nil
	v.valve.ApprovedAt = nil
	return nil
}

// Current returns the current state
func (v *ValveFSM) Current() string {
	return v.fsm.Current()
}

// Can checks if a transition is possible
func (v *ValveFSM) Can(event string) bool {
	return v.fsm.Can(event)
}

func (v *ValveFSM) fire(ctx context.Context, event string) error {
	if err := v.fsm.Event(ctx, event); err != nil {
		// draft → draft on edit is a valid no-op
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return err
		}
	}
	v.valve.Status = v.fsm.Current()
	return nil
}

func (v *ValveFSM) markApproved(approverID uint, now time.Time) {
	v.valve.ApprovedBy = &approverID
	v.valve.ApprovedAt = &now
}
