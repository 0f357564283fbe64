package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

const dashboardCacheTTL = 30 * time.Second

// Dashboard summarises the records visible to one user
type Dashboard struct {
	Valves          models.StatusCounts `json:"valves"`
	Ledgers         map[string]int64    `json:"ledgers"`
	PendingApproval int64               `json:"pending_approval"` // privileged users only
	Transitions     map[string]int64    `json:"transitions,omitempty"`
	UnreadCount     int64               `json:"unread_notifications"`
}

type DashboardService struct {
	repos         *repository.Repositories
	notifications *NotificationService
	cache         cache.Cache
}

func NewDashboardService(repos *repository.Repositories, notifications *NotificationService, c cache.Cache) *DashboardService {
	return &DashboardService{repos: repos, notifications: notifications, cache: c}
}

// Get returns the dashboard for actor; counts are cached briefly per user
func (s *DashboardService) Get(ctx context.Context, actor statemachine.Actor) (*Dashboard, error) {
	key := fmt.Sprintf("dashboard:%d", actor.ID)

	var dash Dashboard
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		if err := json.Unmarshal([]byte(cached), &dash); err == nil {
			return s.withUnread(ctx, actor, &dash)
		}
	}

	scope := scopeOf(actor)
	valves, err := s.repos.Valve.CountByStatus(ctx, scope)
	if err != nil {
		return nil, err
	}
	dash.Valves = valves

	dash.Ledgers, err = s.repos.Ledger.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	if actor.IsPrivileged() {
		dash.PendingApproval = valves.Pending
		dash.Transitions, err = s.repos.ApprovalLog.CountByAction(ctx)
		if err != nil {
			return nil, err
		}
	}

	if data, err := json.Marshal(&dash); err == nil {
		if err := s.cache.Set(ctx, key, string(data), dashboardCacheTTL); err != nil {
			logger.Warn("failed to cache dashboard", "user_id", actor.ID, "error", err)
		}
	}
	return s.withUnread(ctx, actor, &dash)
}

func (s *DashboardService) withUnread(ctx context.Context, actor statemachine.Actor, dash *Dashboard) (*Dashboard, error) {
	unread, err := s.notifications.CountUnread(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	dash.UnreadCount = unread
	return dash, nil
}
