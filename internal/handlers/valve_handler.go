package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
)

type ValveHandler struct {
	valveService   *services.ValveService
	settingService *services.SettingService
}

func NewValveHandler(valveService *services.ValveService, settingService *services.SettingService) *ValveHandler {
	return &ValveHandler{valveService: valveService, settingService: settingService}
}

// valveQuery reads paging plus the status, ledger and per-field filters.
// Field filters repeat the key: ?manufacturer=A&manufacturer=B
func valveQuery(c *gin.Context, defaultPerPage int) (*repository.ValveQuery, bool) {
	query := repository.NewValveQuery()
	query.ListQuery = listQuery(c, defaultPerPage)

	for _, raw := range c.QueryArray("status") {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			if !models.IsValidValveStatus(s) {
				badRequest(c, "无效的状态")
				return nil, false
			}
			query.Statuses = append(query.Statuses, s)
		}
	}

	if raw := c.Query("ledger_id"); raw != "" {
		if raw == "none" {
			query.NoLedger = true
		} else {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				badRequest(c, "无效的台账ID")
				return nil, false
			}
			ledgerID := uint(id)
			query.LedgerID = &ledgerID
		}
	}

	for _, f := range models.FilterableValveFields() {
		if values := c.QueryArray(f.Key); len(values) > 0 {
			query.Fields[f.Key] = values
		}
	}
	return query, true
}

func valveResponses(valves []models.Valve) []models.ValveResponse {
	responses := make([]models.ValveResponse, 0, len(valves))
	for i := range valves {
		responses = append(responses, valves[i].ToResponse())
	}
	return responses
}

// Index lists valves visible to the caller
// @Summary List valves
// @Description Paginated valve list; employees see their own records plus approved ones
// @Tags Valves
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page"
// @Param search query string false "Search across all attributes"
// @Param status query string false "Status filter, comma separated"
// @Param ledger_id query string false "Ledger ID or 'none'"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves [get]
func (h *ValveHandler) Index(c *gin.Context) {
	ctx := c.Request.Context()
	query, ok := valveQuery(c, h.settingService.PageSize(ctx))
	if !ok {
		return
	}

	valves, total, err := h.valveService.List(ctx, middleware.GetActor(c), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valves":     valveResponses(valves),
		"pagination": pagination(query.ListQuery, total),
	})
}

// Mine lists the caller's own valves in any status
// @Summary My valves
// @Tags Valves
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves/mine [get]
func (h *ValveHandler) Mine(c *gin.Context) {
	ctx := c.Request.Context()
	query, ok := valveQuery(c, h.settingService.PageSize(ctx))
	if !ok {
		return
	}

	valves, total, err := h.valveService.Mine(ctx, middleware.GetActor(c), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valves":     valveResponses(valves),
		"pagination": pagination(query.ListQuery, total),
	})
}

// Approvals is the review queue for leaders and admins
// @Summary Approval queue
// @Tags Approvals
// @Produce json
// @Param status query string false "pending (default), approved or rejected"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /approvals [get]
func (h *ValveHandler) Approvals(c *gin.Context) {
	ctx := c.Request.Context()
	query, ok := valveQuery(c, h.settingService.PageSize(ctx))
	if !ok {
		return
	}

	valves, total, err := h.valveService.ApprovalQueue(ctx, middleware.GetActor(c), c.Query("status"), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valves":     valveResponses(valves),
		"pagination": pagination(query.ListQuery, total),
	})
}

// FilterOptions returns the distinct values of every filterable field
// @Summary Valve filter options
// @Tags Valves
// @Produce json
// @Param ledger_id query int false "Restrict to one ledger"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves/filter-options [get]
func (h *ValveHandler) FilterOptions(c *gin.Context) {
	var ledgerID *uint
	if raw := c.Query("ledger_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			badRequest(c, "无效的台账ID")
			return
		}
		v := uint(id)
		ledgerID = &v
	}

	options, err := h.valveService.FilterOptions(c.Request.Context(), middleware.GetActor(c), ledgerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"options": options, "fields": models.FilterableValveFields()})
}

// CheckTag reports whether a tag is free for the caller
// @Summary Check tag availability
// @Tags Valves
// @Produce json
// @Param tag query string true "Tag"
// @Param exclude_id query int false "Valve being edited"
// @Success 200 {object} map[string]bool
// @Security BearerAuth
// @Router /valves/check-tag [get]
func (h *ValveHandler) CheckTag(c *gin.Context) {
	excludeID, _ := strconv.ParseUint(c.Query("exclude_id"), 10, 32)

	available, err := h.valveService.CheckTag(c.Request.Context(), middleware.GetActor(c), c.Query("tag"), uint(excludeID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": available})
}

// Create stores a new valve, as a draft or submitted
// @Summary Create valve
// @Description Flat attribute body or {"fields": {...}}; "submit": true sends it for review
// @Tags Valves
// @Accept json
// @Produce json
// @Param request body services.ValveInput true "Valve data"
// @Success 201 {object} models.ValveResponse
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /valves [post]
func (h *ValveHandler) Create(c *gin.Context) {
	payload, err := bindValveInput(c)
	if err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}

	valve, err := h.valveService.Create(c.Request.Context(), middleware.GetActor(c), payload.Input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"valve": valve.ToResponse()})
}

// SaveDraft creates or updates a draft without submitting it
// @Summary Save draft
// @Tags Valves
// @Accept json
// @Produce json
// @Param request body services.ValveInput true "Valve data, optional id"
// @Success 200 {object} models.ValveResponse
// @Security BearerAuth
// @Router /valves/draft [post]
func (h *ValveHandler) SaveDraft(c *gin.Context) {
	payload, err := bindValveInput(c)
	if err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}

	valve, err := h.valveService.SaveDraft(c.Request.Context(), middleware.GetActor(c), payload.ID, payload.Input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valve": valve.ToResponse(), "message": "草稿已保存"})
}

// Show returns one valve
// @Summary Get valve
// @Tags Valves
// @Produce json
// @Param id path int true "Valve ID"
// @Success 200 {object} models.ValveResponse
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /valves/{id} [get]
func (h *ValveHandler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	valve, err := h.valveService.Get(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valve": valve.ToResponse()})
}

// Update edits a valve; the record returns to draft unless resubmitted
// @Summary Update valve
// @Tags Valves
// @Accept json
// @Produce json
// @Param id path int true "Valve ID"
// @Param request body services.ValveInput true "Changed fields"
// @Success 200 {object} models.ValveResponse
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /valves/{id} [put]
func (h *ValveHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	payload, err := bindValveInput(c)
	if err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}

	valve, err := h.valveService.Update(c.Request.Context(), middleware.GetActor(c), id, payload.Input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valve": valve.ToResponse()})
}

// Delete removes a draft or rejected valve
// @Summary Delete valve
// @Tags Valves
// @Produce json
// @Param id path int true "Valve ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /valves/{id} [delete]
func (h *ValveHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.valveService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// Submit sends a draft for review
// @Summary Submit valve
// @Tags Valves
// @Produce json
// @Param id path int true "Valve ID"
// @Success 200 {object} models.ValveResponse
// @Security BearerAuth
// @Router /valves/{id}/submit [post]
func (h *ValveHandler) Submit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	valve, err := h.valveService.Submit(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valve": valve.ToResponse()})
}

// Approve accepts a pending valve
// @Summary Approve valve
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path int true "Valve ID"
// @Param request body CommentRequest false "Comment"
// @Success 200 {object} models.ValveResponse
// @Security BearerAuth
// @Router /valves/{id}/approve [post]
func (h *ValveHandler) Approve(c *gin.Context) {
	h.review(c, h.valveService.Approve)
}

// Reject returns a pending valve to its creator
// @Summary Reject valve
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path int true "Valve ID"
// @Param request body CommentRequest false "Comment"
// @Success 200 {object} models.ValveResponse
// @Security BearerAuth
// @Router /valves/{id}/reject [post]
func (h *ValveHandler) Reject(c *gin.Context) {
	h.review(c, h.valveService.Reject)
}

type reviewFunc func(ctx context.Context, actor statemachine.Actor, id uint, comment string) (*models.Valve, error)

func (h *ValveHandler) review(c *gin.Context, fn reviewFunc) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comment, ok := bindComment(c)
	if !ok {
		return
	}

	valve, err := fn(c.Request.Context(), middleware.GetActor(c), id, comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valve": valve.ToResponse()})
}

// BatchDelete removes several valves; refused ones are reported
// @Summary Batch delete valves
// @Tags Valves
// @Accept json
// @Produce json
// @Param request body IDsRequest true "Valve IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /valves/batch-delete [post]
func (h *ValveHandler) BatchDelete(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.valveService.BatchDelete(c.Request.Context(), middleware.GetActor(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchApprove approves several pending valves
// @Summary Batch approve valves
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body IDsRequest true "Valve IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /valves/batch-approve [post]
func (h *ValveHandler) BatchApprove(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.valveService.BatchApprove(c.Request.Context(), middleware.GetActor(c), req.IDs, strings.TrimSpace(req.Comment))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchReject rejects several pending valves
// @Summary Batch reject valves
// @Tags Approvals
// @Accept json
// @Produce json
// @Param request body IDsRequest true "Valve IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /valves/batch-reject [post]
func (h *ValveHandler) BatchReject(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.valveService.BatchReject(c.Request.Context(), middleware.GetActor(c), req.IDs, strings.TrimSpace(req.Comment))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Logs returns the approval history of a valve
// @Summary Valve approval history
// @Tags Valves
// @Produce json
// @Param id path int true "Valve ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves/{id}/logs [get]
func (h *ValveHandler) Logs(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	logs, err := h.valveService.Logs(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.ApprovalLogResponse, 0, len(logs))
	for i := range logs {
		responses = append(responses, logs[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"logs": responses})
}
