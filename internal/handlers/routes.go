package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
)

// Register mounts every endpoint on api (the /api/v1 group).
// auth authenticates the caller; limit throttles login and uploads.
func (h *Handlers) Register(api *gin.RouterGroup, auth, limit gin.HandlerFunc) {
	api.GET("/health", h.Health.Index)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", limit, h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
	}

	protected := api.Group("")
	protected.Use(auth)

	protected.GET("/me", h.Auth.Me)
	protected.PATCH("/me/password", h.Auth.ChangePassword)
	protected.GET("/dashboard", h.Dashboard.Index)

	users := protected.Group("/users", middleware.RequireAdmin())
	{
		users.GET("", h.User.Index)
		users.POST("", h.User.Create)
		users.PUT("/:user_id", h.User.Update)
		users.PUT("/:user_id/toggle-status", h.User.ToggleStatus)
		users.POST("/:user_id/reset-password", h.User.ResetPassword)
	}

	valves := protected.Group("/valves")
	{
		valves.GET("", h.Valve.Index)
		valves.POST("", h.Valve.Create)
		valves.GET("/mine", h.Valve.Mine)
		valves.GET("/filter-options", h.Valve.FilterOptions)
		valves.GET("/check-tag", h.Valve.CheckTag)
		valves.POST("/draft", h.Valve.SaveDraft)
		valves.POST("/batch-delete", h.Valve.BatchDelete)
		valves.POST("/batch-approve", middleware.RequirePrivileged(), h.Valve.BatchApprove)
		valves.POST("/batch-reject", middleware.RequirePrivileged(), h.Valve.BatchReject)
		valves.GET("/export", h.Transfer.ExportValves)
		valves.POST("/import/preview", middleware.RequirePrivileged(), limit, h.Transfer.Preview)
		valves.POST("/import/execute", middleware.RequirePrivileged(), limit, h.Transfer.Execute)

		valves.GET("/:id", h.Valve.Show)
		valves.PUT("/:id", h.Valve.Update)
		valves.DELETE("/:id", h.Valve.Delete)
		valves.POST("/:id/submit", h.Valve.Submit)
		valves.POST("/:id/approve", h.Valve.Approve)
		valves.POST("/:id/reject", h.Valve.Reject)
		valves.GET("/:id/logs", h.Valve.Logs)
		valves.GET("/:id/pdf", h.Transfer.ValvePDF)
		valves.GET("/:id/photos", h.Photo.Index)
		valves.POST("/:id/photos", limit, h.Photo.Upload)
		valves.GET("/:id/maintenance", h.Maintenance.ByValve)
		valves.POST("/:id/maintenance", h.Maintenance.Create)
	}

	protected.GET("/approvals", middleware.RequirePrivileged(), h.Valve.Approvals)

	ledgers := protected.Group("/ledgers")
	{
		ledgers.GET("", h.Ledger.Index)
		ledgers.POST("", h.Ledger.Create)
		ledgers.GET("/mine", h.Ledger.Mine)
		ledgers.POST("/batch-approve", middleware.RequirePrivileged(), h.Ledger.BatchApprove)
		ledgers.POST("/batch-reject", middleware.RequirePrivileged(), h.Ledger.BatchReject)

		ledgers.GET("/:id", h.Ledger.Show)
		ledgers.PUT("/:id", h.Ledger.Update)
		ledgers.DELETE("/:id", h.Ledger.Delete)
		ledgers.POST("/:id/submit", h.Ledger.Submit)
		ledgers.POST("/:id/approve", h.Ledger.Approve)
		ledgers.POST("/:id/reject", h.Ledger.Reject)
		ledgers.GET("/:id/export", h.Ledger.Export)
		ledgers.POST("/:id/valves", h.Ledger.AddValve)
		ledgers.POST("/:id/valves/batch-save", h.Ledger.BatchSave)
		ledgers.POST("/:id/valves/batch-delete", h.Ledger.BatchDeleteValves)
	}

	protected.GET("/photos/:photo_id/download", h.Photo.Download)
	protected.DELETE("/photos/:photo_id", h.Photo.Delete)

	maintenance := protected.Group("/maintenance")
	{
		maintenance.GET("", h.Maintenance.Index)
		maintenance.GET("/export", h.Maintenance.Export)
		maintenance.POST("/batch-delete", h.Maintenance.BatchDelete)
		maintenance.PUT("/:record_id", h.Maintenance.Update)
		maintenance.DELETE("/:record_id", h.Maintenance.Delete)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", h.Notification.Index)
		notifications.POST("/mark-all-read", h.Notification.MarkAllAsRead)
		notifications.PATCH("/:id/read", h.Notification.MarkAsRead)
		notifications.DELETE("/:id", h.Notification.Delete)
	}

	admin := protected.Group("", middleware.RequireAdmin())
	{
		admin.GET("/audits", h.Audit.Index)
		admin.GET("/settings", h.Setting.Index)
		admin.PUT("/settings", h.Setting.Update)
		admin.GET("/jobs/stats", h.Job.Stats)
		admin.POST("/jobs/:name/run", h.Job.Run)
	}
}
