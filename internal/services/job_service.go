package services

import (
	"context"
	"time"

	"github.com/plantops/valve-ledger-api/internal/jobs"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

// Job names shown in worker stats
const (
	JobLedgerReconcile    = "ledger_reconcile"
	JobStaleDraftCleanup  = "stale_draft_cleanup"
	JobSessionHousekeeper = "token_notification_cleanup"
)

const readNotificationMaxAge = 30 * 24 * time.Hour

// JobService registers the periodic jobs and reports worker stats
type JobService struct {
	worker        *jobs.Worker
	ledgers       *LedgerService
	valves        *ValveService
	auth          *AuthService
	notifications *NotificationService
	staleDraftAge time.Duration
}

func NewJobService(worker *jobs.Worker, ledgers *LedgerService, valves *ValveService, auth *AuthService, notifications *NotificationService, staleDraftDays int) *JobService {
	return &JobService{
		worker:        worker,
		ledgers:       ledgers,
		valves:        valves,
		auth:          auth,
		notifications: notifications,
		staleDraftAge: time.Duration(staleDraftDays) * 24 * time.Hour,
	}
}

// Schedule starts the periodic jobs on the worker
func (s *JobService) Schedule() {
	s.worker.ScheduleEveryImmediate(JobLedgerReconcile, 30*time.Minute, s.ReconcileLedgers)
	if s.staleDraftAge > 0 {
		s.worker.ScheduleEvery(JobStaleDraftCleanup, 24*time.Hour, s.CleanupStaleDrafts)
	}
	s.worker.ScheduleEvery(JobSessionHousekeeper, 24*time.Hour, s.Housekeeping)
}

func (s *JobService) ReconcileLedgers(ctx context.Context) error {
	changed, err := s.ledgers.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	if changed > 0 {
		logger.Info("ledger statuses reconciled", "changed", changed)
	}
	return nil
}

func (s *JobService) CleanupStaleDrafts(ctx context.Context) error {
	removed, err := s.valves.CleanupStaleDrafts(ctx, s.staleDraftAge)
	if err != nil {
		return err
	}
	if removed > 0 {
		logger.Info("stale drafts removed", "count", removed)
	}
	return nil
}

// Housekeeping drops expired refresh tokens and old read notifications
func (s *JobService) Housekeeping(ctx context.Context) error {
	tokens, err := s.auth.PurgeExpiredTokens(ctx)
	if err != nil {
		return err
	}
	notifications, err := s.notifications.PurgeRead(ctx, readNotificationMaxAge)
	if err != nil {
		return err
	}
	logger.Info("housekeeping finished", "expired_tokens", tokens, "read_notifications", notifications)
	return nil
}

// RunNow queues one of the scheduled jobs for immediate execution
func (s *JobService) RunNow(name string) error {
	var job jobs.Job
	switch name {
	case JobLedgerReconcile:
		job = s.ReconcileLedgers
	case JobStaleDraftCleanup:
		job = s.CleanupStaleDrafts
	case JobSessionHousekeeper:
		job = s.Housekeeping
	default:
		return invalid("未知的任务: " + name)
	}
	s.worker.Enqueue(job)
	return nil
}

func (s *JobService) GetStatus() jobs.WorkerStats {
	return s.worker.GetStats()
}
