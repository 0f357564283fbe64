package services

import (
	"context"
	"fmt"
	"time"

	"github.com/plantops/valve-ledger-api/internal/jobs"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

type NotificationService struct {
	repo     repository.NotificationRepository
	userRepo repository.UserRepository
	worker   *jobs.Worker
}

func NewNotificationService(repo repository.NotificationRepository, userRepo repository.UserRepository, worker *jobs.Worker) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, worker: worker}
}

func (s *NotificationService) FindByUser(ctx context.Context, userID uint, query *repository.ListQuery) ([]models.Notification, int64, error) {
	return s.repo.FindByUser(ctx, userID, query)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAsRead marks one of the user's notifications as read
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	notification, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !notification.IsRead() {
		notification.MarkAsRead()
		if err := s.repo.Update(ctx, notification); err != nil {
			return nil, err
		}
	}
	return notification, nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uint) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *NotificationService) owned(ctx context.Context, userID, id uint) (*models.Notification, error) {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if notification.UserID != userID {
		return nil, ErrNotFound
	}
	return notification, nil
}

// PurgeRead removes read notifications older than maxAge
func (s *NotificationService) PurgeRead(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.DeleteReadBefore(ctx, time.Now().Add(-maxAge))
}

// ValveEvent is a committed transition worth telling someone about
type ValveEvent struct {
	Action    string
	ValveID   uint
	ValveTag  string
	CreatorID uint
	ActorID   uint
	Comment   string
}

// Dispatch creates notifications for committed transitions in the background
func (s *NotificationService) Dispatch(events []ValveEvent) {
	if len(events) == 0 || s.worker == nil {
		return
	}
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		for _, ev := range events {
			if err := s.notify(ctx, ev); err != nil {
				logger.Error("failed to create notification", "valve_id", ev.ValveID, "action", ev.Action, "error", err)
			}
		}
		return nil
	})
}

func (s *NotificationService) notify(ctx context.Context, ev ValveEvent) error {
	switch ev.Action {
	case models.ActionSubmit:
		reviewers, err := s.userRepo.FindPrivileged(ctx)
		if err != nil {
			return err
		}
		for _, r := range reviewers {
			if r.ID == ev.ActorID {
				continue
			}
			err := s.create(ctx, r.ID, ev.ValveID, models.NotificationTypeValveSubmitted,
				"新的待审核台账", fmt.Sprintf("位号 %s 已提交，等待审核", ev.ValveTag))
			if err != nil {
				return err
			}
		}
	case models.ActionApprove:
		if ev.CreatorID == ev.ActorID {
			return nil
		}
		return s.create(ctx, ev.CreatorID, ev.ValveID, models.NotificationTypeValveApproved,
			"台账审核通过", fmt.Sprintf("位号 %s 已审核通过", ev.ValveTag))
	case models.ActionReject:
		msg := fmt.Sprintf("位号 %s 被驳回", ev.ValveTag)
		if ev.Comment != "" {
			msg += "：" + ev.Comment
		}
		return s.create(ctx, ev.CreatorID, ev.ValveID, models.NotificationTypeValveRejected, "台账被驳回", msg)
	}
	return nil
}

// NotifyUser creates one notification immediately
func (s *NotificationService) NotifyUser(ctx context.Context, userID uint, title, message, notifType string) error {
	return s.create(ctx, userID, 0, notifType, title, message)
}

func (s *NotificationService) create(ctx context.Context, userID, valveID uint, notifType, title, message string) error {
	notification := &models.Notification{
		UserID:           userID,
		Title:            title,
		Message:          message,
		NotificationType: &notifType,
	}
	if valveID > 0 {
		notification.ValveID = &valveID
	}
	return s.repo.Create(ctx, notification)
}
