package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
)

type LedgerHandler struct {
	ledgerService  *services.LedgerService
	valveService   *services.ValveService
	exportService  *services.ExportService
	settingService *services.SettingService
}

func NewLedgerHandler(ledgerSvc *services.LedgerService, valveSvc *services.ValveService, exportSvc *services.ExportService, settingSvc *services.SettingService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService:  ledgerSvc,
		valveService:   valveSvc,
		exportService:  exportSvc,
		settingService: settingSvc,
	}
}

func ledgerResponses(ledgers []services.LedgerWithCounts) []models.LedgerResponse {
	responses := make([]models.LedgerResponse, 0, len(ledgers))
	for i := range ledgers {
		responses = append(responses, ledgers[i].ToResponse())
	}
	return responses
}

// Index lists ledgers with their per-status counts
// @Summary List ledgers
// @Tags Ledgers
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page"
// @Param search query string false "Search by name"
// @Param status query string false "Status filter"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /ledgers [get]
func (h *LedgerHandler) Index(c *gin.Context) {
	h.list(c, false)
}

// Mine lists ledgers created by the caller
// @Summary My ledgers
// @Tags Ledgers
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /ledgers/mine [get]
func (h *LedgerHandler) Mine(c *gin.Context) {
	h.list(c, true)
}

func (h *LedgerHandler) list(c *gin.Context, mine bool) {
	ctx := c.Request.Context()
	query := listQuery(c, h.settingService.PageSize(ctx))
	if status := c.Query("status"); status != "" {
		if !models.IsValidValveStatus(status) {
			badRequest(c, "无效的状态")
			return
		}
		query.Filters["status"] = status
	}

	var (
		ledgers []services.LedgerWithCounts
		total   int64
		err     error
	)
	if mine {
		ledgers, total, err = h.ledgerService.Mine(ctx, middleware.GetActor(c), query)
	} else {
		ledgers, total, err = h.ledgerService.List(ctx, middleware.GetActor(c), query)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ledgers":    ledgerResponses(ledgers),
		"pagination": pagination(query, total),
	})
}

// Create adds an empty ledger
// @Summary Create ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param request body services.LedgerInput true "Ledger data"
// @Success 201 {object} models.LedgerResponse
// @Security BearerAuth
// @Router /ledgers [post]
func (h *LedgerHandler) Create(c *gin.Context) {
	var req services.LedgerInput
	if err := BindNestedOrFlat(c, "ledger", &req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	ledger, err := h.ledgerService.Create(c.Request.Context(), middleware.GetActor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ledger": ledger.ToResponse()})
}

// Show returns a ledger with counts, filter options and one page of its valves
// @Summary Get ledger
// @Tags Ledgers
// @Produce json
// @Param id path int true "Ledger ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /ledgers/{id} [get]
func (h *LedgerHandler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	actor := middleware.GetActor(c)

	ledger, err := h.ledgerService.Get(ctx, actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	query, ok := valveQuery(c, h.settingService.PageSize(ctx))
	if !ok {
		return
	}
	query.LedgerID = &id
	query.NoLedger = false

	valves, total, err := h.valveService.List(ctx, actor, query)
	if err != nil {
		respondError(c, err)
		return
	}
	options, err := h.valveService.FilterOptions(ctx, actor, &id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ledger":         ledger.ToResponse(),
		"valves":         valveResponses(valves),
		"filter_options": options,
		"pagination":     pagination(query.ListQuery, total),
	})
}

// Update renames a ledger
// @Summary Update ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body services.LedgerInput true "Ledger data"
// @Success 200 {object} models.LedgerResponse
// @Security BearerAuth
// @Router /ledgers/{id} [put]
func (h *LedgerHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.LedgerInput
	if err := BindNestedOrFlat(c, "ledger", &req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	ledger, err := h.ledgerService.Update(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ledger": ledger.ToResponse()})
}

// Delete removes a ledger and its valves
// @Summary Delete ledger
// @Description Refused while any valve of the ledger is pending. Approval logs are kept.
// @Tags Ledgers
// @Produce json
// @Param id path int true "Ledger ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /ledgers/{id} [delete]
func (h *LedgerHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.ledgerService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

type LedgerSubmitRequest struct {
	ValveIDs []uint `json:"valve_ids"`
}

// Submit sends the ledger's drafts (or the selected ones) for review
// @Summary Submit ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body LedgerSubmitRequest false "Subset of valve IDs"
// @Success 200 {object} services.BatchResult
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /ledgers/{id}/submit [post]
func (h *LedgerHandler) Submit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req LedgerSubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, validationMessage(err))
			return
		}
	}

	result, err := h.ledgerService.Submit(c.Request.Context(), middleware.GetActor(c), id, req.ValveIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Approve approves every pending valve of the ledger
// @Summary Approve ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body CommentRequest false "Comment"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /ledgers/{id}/approve [post]
func (h *LedgerHandler) Approve(c *gin.Context) {
	h.review(c, h.ledgerService.Approve)
}

// Reject rejects every pending valve of the ledger
// @Summary Reject ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body CommentRequest false "Comment"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /ledgers/{id}/reject [post]
func (h *LedgerHandler) Reject(c *gin.Context) {
	h.review(c, h.ledgerService.Reject)
}

type ledgerReviewFunc func(ctx context.Context, actor statemachine.Actor, id uint, comment string) (*services.BatchResult, error)

func (h *LedgerHandler) review(c *gin.Context, fn ledgerReviewFunc) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	comment, ok := bindComment(c)
	if !ok {
		return
	}

	result, err := fn(c.Request.Context(), middleware.GetActor(c), id, comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchApprove approves the pending valves of several ledgers
// @Summary Batch approve ledgers
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param request body IDsRequest true "Ledger IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /ledgers/batch-approve [post]
func (h *LedgerHandler) BatchApprove(c *gin.Context) {
	h.batchReview(c, models.ActionApprove)
}

// BatchReject rejects the pending valves of several ledgers
// @Summary Batch reject ledgers
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param request body IDsRequest true "Ledger IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /ledgers/batch-reject [post]
func (h *LedgerHandler) BatchReject(c *gin.Context) {
	h.batchReview(c, models.ActionReject)
}

func (h *LedgerHandler) batchReview(c *gin.Context, action string) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.ledgerService.BatchTransition(c.Request.Context(), middleware.GetActor(c), req.IDs, action, strings.TrimSpace(req.Comment))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AddValve creates a draft valve inside the ledger
// @Summary Add valve to ledger
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body services.ValveInput true "Valve data"
// @Success 201 {object} models.ValveResponse
// @Security BearerAuth
// @Router /ledgers/{id}/valves [post]
func (h *LedgerHandler) AddValve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	payload, err := bindValveInput(c)
	if err != nil {
		badRequest(c, "请求参数格式错误")
		return
	}

	valve, err := h.ledgerService.AddValve(c.Request.Context(), middleware.GetActor(c), id, payload.Input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"valve": valve.ToResponse()})
}

type BatchSaveRequest struct {
	Valves []services.LedgerValveItem `json:"valves" binding:"required,min=1,max=500"`
}

// BatchSave creates or edits several valves of the ledger
// @Summary Batch save ledger valves
// @Description Rows are {id?, data, attachments}; rows that fail are reported by index
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body BatchSaveRequest true "Rows"
// @Success 200 {object} services.BatchSaveResult
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /ledgers/{id}/valves/batch-save [post]
func (h *LedgerHandler) BatchSave(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req BatchSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.ledgerService.BatchSave(c.Request.Context(), middleware.GetActor(c), id, req.Valves)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchDeleteValves removes draft or rejected valves from the ledger
// @Summary Batch delete ledger valves
// @Tags Ledgers
// @Accept json
// @Produce json
// @Param id path int true "Ledger ID"
// @Param request body IDsRequest true "Valve IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /ledgers/{id}/valves/batch-delete [post]
func (h *LedgerHandler) BatchDeleteValves(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.ledgerService.BatchDeleteValves(c.Request.Context(), middleware.GetActor(c), id, req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Export downloads the ledger's valves as xlsx
// @Summary Export ledger
// @Tags Ledgers
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Ledger ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /ledgers/{id}/export [get]
func (h *LedgerHandler) Export(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	data, filename, err := h.exportService.ExportLedger(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	sendFile(c, data, filename, xlsxContentType)
}
