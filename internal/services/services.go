package services

import (
	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/config"
	"github.com/plantops/valve-ledger-api/internal/jobs"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/storage"
)

// Services holds all service instances
type Services struct {
	Auth         *AuthService
	User         *UserService
	Valve        *ValveService
	Ledger       *LedgerService
	Import       *ImportService
	Export       *ExportService
	Report       *ReportService
	Photo        *PhotoService
	Maintenance  *MaintenanceService
	Notification *NotificationService
	Setting      *SettingService
	Audit        *AuditService
	Dashboard    *DashboardService
	Job          *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, store storage.FileStore, c cache.Cache, cfg *config.Config) *Services {
	auditSvc := NewAuditService(repos.DB())
	settingSvc := NewSettingService(repos.Setting, c, auditSvc, DefaultSettings(cfg.AutoApprovalDefault, cfg.DefaultPassword))
	notificationSvc := NewNotificationService(repos.Notification, repos.User, worker)

	valveSvc := NewValveService(repos, settingSvc, auditSvc, notificationSvc, store)
	ledgerSvc := NewLedgerService(repos, valveSvc, settingSvc, auditSvc)
	authSvc := NewAuthService(repos.User, repos.RefreshToken, auditSvc, cfg)

	return &Services{
		Auth:         authSvc,
		User:         NewUserService(repos, settingSvc, auditSvc),
		Valve:        valveSvc,
		Ledger:       ledgerSvc,
		Import:       NewImportService(repos, valveSvc, settingSvc, auditSvc, notificationSvc),
		Export:       NewExportService(repos, ledgerSvc),
		Report:       NewReportService(valveSvc, cfg.WkhtmltopdfEnabled, cfg.PDFFontPath),
		Photo:        NewPhotoService(repos, valveSvc, store, auditSvc),
		Maintenance:  NewMaintenanceService(repos, valveSvc, auditSvc),
		Notification: notificationSvc,
		Setting:      settingSvc,
		Audit:        auditSvc,
		Dashboard:    NewDashboardService(repos, notificationSvc, c),
		Job:          NewJobService(worker, ledgerSvc, valveSvc, authSvc, notificationSvc, cfg.StaleDraftDays),
	}
}
