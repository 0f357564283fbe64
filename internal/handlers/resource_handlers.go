package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// @Summary List Notifications
// @Description Get a paginated list of notifications for the current user
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "unread or read"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) Index(c *gin.Context) {
	userID := middleware.GetUserID(c)
	query := listQuery(c, 20)
	switch status := c.Query("status"); status {
	case "", "unread", "read":
		query.Filters["status"] = status
	default:
		badRequest(c, "无效的状态")
		return
	}

	notifications, total, err := h.notificationService.FindByUser(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.notificationService.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, notifications[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": responses,
		"unread_count":  unread,
		"pagination":    pagination(query, total),
	})
}

// @Summary Mark Notification Read
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} models.NotificationResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	notification, err := h.notificationService.MarkAsRead(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": notification.ToResponse()})
}

// @Summary Delete Notification
// @Tags Notifications
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "通知已删除"})
}

// @Summary Mark All Notifications Read
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/mark-all-read [post]
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "全部标记为已读"})
}

type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// @Summary List Audit Logs
// @Description Get a paginated list of system audit logs
// @Tags Audit
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Param entity query string false "Valve, Ledger, User, Setting..."
// @Param action query string false "CREATE, UPDATE, DELETE, IMPORT, LOGIN..."
// @Param user_id query int false "Acting user"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audits [get]
func (h *AuditHandler) Index(c *gin.Context) {
	query := listQuery(c, 50)
	query.Filters["entity"] = c.Query("entity")
	query.Filters["action"] = c.Query("action")
	query.Filters["user_id"] = c.Query("user_id")

	logs, total, err := h.auditService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"audits": logs, "pagination": pagination(query, total)})
}

type SettingHandler struct {
	settingService *services.SettingService
}

func NewSettingHandler(settingService *services.SettingService) *SettingHandler {
	return &SettingHandler{settingService: settingService}
}

// @Summary Get Settings
// @Tags Settings
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /settings [get]
func (h *SettingHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": h.settingService.All(c.Request.Context())})
}

// @Summary Update Settings
// @Description Keys: auto_approval, default_password, page_size, system_name
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body map[string]string true "Changed settings"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /settings [put]
func (h *SettingHandler) Update(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := BindNestedOrFlat(c, "settings", &raw); err != nil || len(raw) == 0 {
		badRequest(c, "请求参数格式错误")
		return
	}
	values := make(map[string]string, len(raw))
	for key, v := range raw {
		values[key] = scalarText(v)
	}

	ctx := c.Request.Context()
	if err := h.settingService.Update(ctx, middleware.GetUserID(c), values); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": h.settingService.All(ctx), "message": "设置已保存"})
}

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// @Summary Dashboard
// @Description Status counts scoped like the valve list, plus the review backlog for leaders
// @Tags Dashboard
// @Produce json
// @Success 200 {object} services.Dashboard
// @Security BearerAuth
// @Router /dashboard [get]
func (h *DashboardHandler) Index(c *gin.Context) {
	dashboard, err := h.dashboardService.Get(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
