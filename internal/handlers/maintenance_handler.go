package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
)

type MaintenanceHandler struct {
	maintenanceService *services.MaintenanceService
	exportService      *services.ExportService
	settingService     *services.SettingService
}

func NewMaintenanceHandler(maintenanceSvc *services.MaintenanceService, exportSvc *services.ExportService, settingSvc *services.SettingService) *MaintenanceHandler {
	return &MaintenanceHandler{
		maintenanceService: maintenanceSvc,
		exportService:      exportSvc,
		settingService:     settingSvc,
	}
}

func (h *MaintenanceHandler) query(c *gin.Context) (*repository.ListQuery, bool) {
	query := listQuery(c, h.settingService.PageSize(c.Request.Context()))
	query.Filters["type"] = c.Query("type")
	if raw := c.Query("valve_id"); raw != "" {
		if _, err := strconv.ParseUint(raw, 10, 32); err != nil {
			badRequest(c, "无效的阀门ID")
			return nil, false
		}
		query.Filters["valve_id"] = raw
	}
	return query, true
}

// Index searches every maintenance record
// @Summary List maintenance records
// @Tags Maintenance
// @Produce json
// @Param search query string false "Search"
// @Param type query string false "Type filter"
// @Param valve_id query int false "Valve filter"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /maintenance [get]
func (h *MaintenanceHandler) Index(c *gin.Context) {
	query, ok := h.query(c)
	if !ok {
		return
	}

	records, total, err := h.maintenanceService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":    records,
		"pagination": pagination(query, total),
	})
}

// Export downloads the matching records as xlsx
// @Summary Export maintenance records
// @Tags Maintenance
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Security BearerAuth
// @Router /maintenance/export [get]
func (h *MaintenanceHandler) Export(c *gin.Context) {
	query, ok := h.query(c)
	if !ok {
		return
	}

	data, filename, err := h.exportService.ExportMaintenance(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	sendFile(c, data, filename, xlsxContentType)
}

// ByValve lists the records of one valve
// @Summary Valve maintenance records
// @Tags Maintenance
// @Produce json
// @Param id path int true "Valve ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves/{id}/maintenance [get]
func (h *MaintenanceHandler) ByValve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	records, err := h.maintenanceService.ListByValve(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records})
}

// Create adds a record to a valve
// @Summary Create maintenance record
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param id path int true "Valve ID"
// @Param request body services.MaintenanceInput true "Record"
// @Success 201 {object} models.MaintenanceRecord
// @Security BearerAuth
// @Router /valves/{id}/maintenance [post]
func (h *MaintenanceHandler) Create(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.MaintenanceInput
	if err := BindNestedOrFlat(c, "record", &req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	record, err := h.maintenanceService.Create(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"record": record})
}

// Update changes a record
// @Summary Update maintenance record
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param record_id path int true "Record ID"
// @Param request body services.MaintenanceInput true "Record"
// @Success 200 {object} models.MaintenanceRecord
// @Security BearerAuth
// @Router /maintenance/{record_id} [put]
func (h *MaintenanceHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "record_id")
	if !ok {
		return
	}
	var req services.MaintenanceInput
	if err := BindNestedOrFlat(c, "record", &req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	record, err := h.maintenanceService.Update(c.Request.Context(), middleware.GetActor(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": record})
}

// Delete removes a record
// @Summary Delete maintenance record
// @Tags Maintenance
// @Produce json
// @Param record_id path int true "Record ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /maintenance/{record_id} [delete]
func (h *MaintenanceHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "record_id")
	if !ok {
		return
	}

	if err := h.maintenanceService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}

// BatchDelete removes several records
// @Summary Batch delete maintenance records
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param request body IDsRequest true "Record IDs"
// @Success 200 {object} services.BatchResult
// @Security BearerAuth
// @Router /maintenance/batch-delete [post]
func (h *MaintenanceHandler) BatchDelete(c *gin.Context) {
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.maintenanceService.BatchDelete(c.Request.Context(), middleware.GetActor(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
