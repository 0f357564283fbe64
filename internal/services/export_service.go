package services

import (
	"context"
	"fmt"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/xuri/excelize/v2"
)

const (
	valveSheet       = "台账"
	attachmentSheet  = "附件"
	maintenanceSheet = "检修记录"
)

// valveExtraHeaders follow the field columns and are ignored on import
var valveExtraHeaders = []string{"状态", "创建人", "审批时间"}

var attachmentHeaders = []string{"位号", "类型", "名称", "设备等级", "型号规格", "生产厂家"}

type ExportService struct {
	repos     *repository.Repositories
	ledgerSvc *LedgerService
}

func NewExportService(repos *repository.Repositories, ledgerSvc *LedgerService) *ExportService {
	return &ExportService{repos: repos, ledgerSvc: ledgerSvc}
}

// ExportValves writes the selected valves, or every approved valve when ids is empty.
// Selected valves the actor may not view are left out.
func (s *ExportService) ExportValves(ctx context.Context, actor statemachine.Actor, ids []uint) ([]byte, string, error) {
	var valves []models.Valve
	if len(ids) > 0 {
		found, err := s.repos.Valve.FindByIDs(ctx, ids)
		if err != nil {
			return nil, "", err
		}
		for _, v := range found {
			if statemachine.CanView(&v, actor) {
				valves = append(valves, v)
			}
		}
	} else {
		query := repository.NewValveQuery()
		query.PerPage = 0
		query.Statuses = []string{models.ValveStatusApproved}
		found, _, err := s.repos.Valve.List(ctx, scopeOf(actor), query)
		if err != nil {
			return nil, "", err
		}
		valves = found
	}

	data, err := ValvesWorkbook(valves)
	if err != nil {
		return nil, "", err
	}
	return data, exportFilename("valves", time.Now()), nil
}

// ExportLedger writes every visible valve of a ledger
func (s *ExportService) ExportLedger(ctx context.Context, actor statemachine.Actor, ledgerID uint) ([]byte, string, error) {
	ledger, valves, err := s.ledgerSvc.Valves(ctx, actor, ledgerID)
	if err != nil {
		return nil, "", err
	}
	data, err := ValvesWorkbook(valves)
	if err != nil {
		return nil, "", err
	}
	return data, exportFilename(fmt.Sprintf("ledger_%d", ledger.Ledger.ID), time.Now()), nil
}

// ExportMaintenance writes maintenance records matching query
func (s *ExportService) ExportMaintenance(ctx context.Context, query *repository.ListQuery) ([]byte, string, error) {
	query.PerPage = 0
	records, _, err := s.repos.Maintenance.List(ctx, query)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	_ = f.SetSheetName("Sheet1", maintenanceSheet)
	rows := make([][]string, len(records))
	for i := range records {
		rows[i] = records[i].ExportRow()
	}
	if err := writeSheet(f, maintenanceSheet, models.MaintenanceExportHeaders, rows); err != nil {
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), exportFilename("maintenance", time.Now()), nil
}

// ValvesWorkbook renders valves on one sheet, using the field labels as the
// header row so the file can be imported again, and attachments on a second sheet.
func ValvesWorkbook(valves []models.Valve) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	_ = f.SetSheetName("Sheet1", valveSheet)

	fields := models.ValveFields()
	headers := make([]string, 0, len(fields)+len(valveExtraHeaders))
	for _, field := range fields {
		headers = append(headers, field.Label)
	}
	headers = append(headers, valveExtraHeaders...)

	rows := make([][]string, 0, len(valves))
	var attachmentRows [][]string
	for i := range valves {
		v := &valves[i]
		row := make([]string, 0, len(headers))
		for _, field := range fields {
			row = append(row, v.FieldValue(field.Key))
		}
		creator, approvedAt := "", ""
		if v.Creator != nil {
			creator = v.Creator.DisplayName()
		}
		if v.ApprovedAt != nil {
			approvedAt = v.ApprovedAt.Format("2006-01-02 15:04")
		}
		row = append(row, statusLabel(v.Status), creator, approvedAt)
		rows = append(rows, row)

		for _, a := range v.Attachments {
			attachmentRows = append(attachmentRows, []string{v.Tag, a.Type, a.Name, a.Grade, a.Model, a.Manufacturer})
		}
	}

	if err := writeSheet(f, valveSheet, headers, rows); err != nil {
		return nil, err
	}
	if len(attachmentRows) > 0 {
		if _, err := f.NewSheet(attachmentSheet); err != nil {
			return nil, err
		}
		if err := writeSheet(f, attachmentSheet, attachmentHeaders, attachmentRows); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]string) error {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	if len(headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, headerStyle)
		lastCol, _ := excelize.ColumnNumberToName(len(headers))
		_ = f.SetColWidth(sheet, "A", lastCol, 16)
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func statusLabel(status string) string {
	switch status {
	case models.ValveStatusDraft:
		return "草稿"
	case models.ValveStatusPending:
		return "待审核"
	case models.ValveStatusApproved:
		return "已通过"
	case models.ValveStatusRejected:
		return "已驳回"
	}
	return status
}

func exportFilename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.xlsx", prefix, now.Format("20060102_150405"))
}
