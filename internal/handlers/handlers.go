package handlers

import (
	"github.com/plantops/valve-ledger-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	User         *UserHandler
	Valve        *ValveHandler
	Ledger       *LedgerHandler
	Transfer     *TransferHandler
	Photo        *PhotoHandler
	Maintenance  *MaintenanceHandler
	Notification *NotificationHandler
	Setting      *SettingHandler
	Audit        *AuditHandler
	Dashboard    *DashboardHandler
	Job          *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, version string) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(version),
		Auth:         NewAuthHandler(svcs.Auth, svcs.User),
		User:         NewUserHandler(svcs.User),
		Valve:        NewValveHandler(svcs.Valve, svcs.Setting),
		Ledger:       NewLedgerHandler(svcs.Ledger, svcs.Valve, svcs.Export, svcs.Setting),
		Transfer:     NewTransferHandler(svcs.Import, svcs.Export, svcs.Report),
		Photo:        NewPhotoHandler(svcs.Photo),
		Maintenance:  NewMaintenanceHandler(svcs.Maintenance, svcs.Export, svcs.Setting),
		Notification: NewNotificationHandler(svcs.Notification),
		Setting:      NewSettingHandler(svcs.Setting),
		Audit:        NewAuditHandler(svcs.Audit),
		Dashboard:    NewDashboardHandler(svcs.Dashboard),
		Job:          NewJobHandler(svcs.Job),
	}
}
