package handlers

import (
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/services"
)

const maxImportSize = 10 << 20

// TransferHandler serves spreadsheet import/export and PDF downloads
type TransferHandler struct {
	importService *services.ImportService
	exportService *services.ExportService
	reportService *services.ReportService
}

func NewTransferHandler(importSvc *services.ImportService, exportSvc *services.ExportService, reportSvc *services.ReportService) *TransferHandler {
	return &TransferHandler{
		importService: importSvc,
		exportService: exportSvc,
		reportService: reportSvc,
	}
}

// openWorkbook returns the uploaded xlsx from the "file" form field
func openWorkbook(c *gin.Context) (multipart.File, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "请上传Excel文件")
		return nil, false
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".xlsx") {
		badRequest(c, "仅支持 .xlsx 文件")
		return nil, false
	}
	if fh.Size > maxImportSize {
		badRequest(c, "文件不能超过10MB")
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return f, true
}

// Preview classifies the rows of an import file
// @Summary Preview valve import
// @Tags Import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx with Chinese column headers"
// @Success 200 {object} services.ImportPreview
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /valves/import/preview [post]
func (h *TransferHandler) Preview(c *gin.Context) {
	file, ok := openWorkbook(c)
	if !ok {
		return
	}
	defer file.Close()

	preview, err := h.importService.Preview(c.Request.Context(), middleware.GetActor(c), file)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

type ImportExecuteForm struct {
	ConflictMode string `form:"conflict_mode" binding:"omitempty,conflict_mode"`
	LedgerID     *uint  `form:"ledger_id"`
}

// Execute imports the file in one transaction
// @Summary Execute valve import
// @Description conflict_mode: cancel aborts on any existing tag, skip imports new tags only, overwrite replaces existing records
// @Tags Import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx"
// @Param conflict_mode formData string false "cancel, skip or overwrite"
// @Param ledger_id formData int false "Target ledger"
// @Success 200 {object} services.ImportResult
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves/import/execute [post]
func (h *TransferHandler) Execute(c *gin.Context) {
	file, ok := openWorkbook(c)
	if !ok {
		return
	}
	defer file.Close()

	var form ImportExecuteForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	result, err := h.importService.Execute(c.Request.Context(), middleware.GetActor(c), file, form.ConflictMode, form.LedgerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":  result,
		"message": "导入成功 " + strconv.Itoa(result.Imported+result.Overwritten) + " 条",
	})
}

// ExportValves downloads selected valves, or every approved valve, as xlsx
// @Summary Export valves
// @Tags Import
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param ids query string false "Comma separated valve IDs"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /valves/export [get]
func (h *TransferHandler) ExportValves(c *gin.Context) {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil {
		badRequest(c, "无效的ID列表")
		return
	}

	data, filename, err := h.exportService.ExportValves(c.Request.Context(), middleware.GetActor(c), ids)
	if err != nil {
		respondError(c, err)
		return
	}

	sendFile(c, data, filename, xlsxContentType)
}

// ValvePDF downloads the single-valve datasheet
// @Summary Valve PDF
// @Tags Import
// @Produce application/pdf
// @Param id path int true "Valve ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /valves/{id}/pdf [get]
func (h *TransferHandler) ValvePDF(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	data, filename, err := h.reportService.ValvePDF(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	sendFile(c, data, filename, "application/pdf")
}
