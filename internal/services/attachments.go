package services

import (
	"context"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
)

// AttachmentPlan is the set of writes needed to make stored attachments match a submission
type AttachmentPlan struct {
	Create []models.ValveAttachment
	Update []models.ValveAttachment
	Delete []uint
}

// Empty reports whether the plan changes nothing
func (p AttachmentPlan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// DiffAttachments compares stored attachments with a submitted list.
// An empty submission leaves attachments untouched. Items without a type are
// ignored, as are submitted ids that do not belong to the valve.
func DiffAttachments(existing []models.ValveAttachment, submitted []models.AttachmentInput) AttachmentPlan {
	var plan AttachmentPlan
	if len(submitted) == 0 {
		return plan
	}

	byID := make(map[uint]models.ValveAttachment, len(existing))
	for _, a := range existing {
		byID[a.ID] = a
	}

	kept := make(map[uint]bool)
	for _, in := range submitted {
		if in.IsBlank() {
			continue
		}
		if in.ID != 0 {
			current, ok := byID[in.ID]
			if !ok || kept[in.ID] {
				continue
			}
			in.Apply(&current)
			plan.Update = append(plan.Update, current)
			kept[in.ID] = true
			continue
		}
		var a models.ValveAttachment
		in.Apply(&a)
		plan.Create = append(plan.Create, a)
	}

	for _, a := range existing {
		if !kept[a.ID] {
			plan.Delete = append(plan.Delete, a.ID)
		}
	}
	return plan
}

func applyAttachmentPlan(ctx context.Context, tx *repository.Repositories, valveID uint, plan AttachmentPlan) error {
	if plan.Empty() {
		return nil
	}
	if err := tx.Attachment.DeleteByIDs(ctx, valveID, plan.Delete); err != nil {
		return err
	}
	for i := range plan.Update {
		if err := tx.Attachment.Update(ctx, &plan.Update[i]); err != nil {
			return err
		}
	}
	for i := range plan.Create {
		plan.Create[i].ValveID = valveID
		if err := tx.Attachment.Create(ctx, &plan.Create[i]); err != nil {
			return err
		}
	}
	return nil
}
