package services

import (
	"bytes"
	"testing"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook_RoundTripsExport(t *testing.T) {
	valves := []models.Valve{
		{Tag: "FV-1", Name: "调节阀", BodyMaterial: "WCB", Status: models.ValveStatusApproved,
			Attachments: []models.ValveAttachment{{Type: "定位器"}}},
		{Tag: "FV-2", PlantName: "常减压", Status: models.ValveStatusDraft},
	}
	data, err := ValvesWorkbook(valves)
	require.NoError(t, err)

	rows, duplicates, err := ParseWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, duplicates)
	require.Len(t, rows, 2)
	assert.Equal(t, "FV-1", rows[0].Tag)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "WCB", rows[0].Fields["body_material"])
	assert.Equal(t, "常减压", rows[1].Fields["plant_name"])
	_, hasStatus := rows[0].Fields["status"]
	assert.False(t, hasStatus)
}

func TestParseWorkbook_Errors(t *testing.T) {
	_, _, err := ParseWorkbook(bytes.NewReader([]byte("not a workbook")))
	assert.ErrorIs(t, err, ErrInvalidImport)

	data := workbook(t, []interface{}{"名称", "型号规格"}, []interface{}{"调节阀", "HSP"})
	_, _, err = ParseWorkbook(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrInvalidImport)
}

func TestParseWorkbook_SkipsBlankAndRepeatedTags(t *testing.T) {
	data := workbook(t,
		[]interface{}{"位号", "名称", "未知列"},
		[]interface{}{"PV-1", "一号", "x"},
		[]interface{}{"", "无位号"},
		[]interface{}{"PV-1", "重复"},
		[]interface{}{" PV-2 ", "二号"},
	)

	rows, duplicates, err := ParseWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "一号", rows[0].Fields["name"])
	assert.Equal(t, "PV-2", rows[1].Tag)
	assert.Equal(t, 5, rows[1].Line)
	assert.Equal(t, []string{"PV-1"}, duplicates)
}

func TestImportService_ConflictModes(t *testing.T) {
	env := newTestEnv(t)
	existing := env.createValve(t, env.alice, "IM-1", true, nil)

	data := workbook(t,
		[]interface{}{"位号", "名称"},
		[]interface{}{"IM-1", "覆盖后名称"},
		[]interface{}{"IM-2", "新阀门"},
	)

	_, err := env.svc.Import.Preview(env.ctx, env.alice, bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrForbidden)

	preview, err := env.svc.Import.Preview(env.ctx, env.leader, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, preview.Total)
	require.Len(t, preview.Conflicts, 1)
	assert.Equal(t, existing.ID, preview.Conflicts[0].ExistingID)
	require.Len(t, preview.NewRecords, 1)

	_, err = env.svc.Import.Execute(env.ctx, env.leader, bytes.NewReader(data), ConflictCancel, nil)
	assert.ErrorIs(t, err, ErrImportConflict)
	_, err = env.repos.Valve.FindByTag(env.ctx, "IM-2")
	assert.Error(t, err)

	result, err := env.svc.Import.Execute(env.ctx, env.leader, bytes.NewReader(data), ConflictSkip, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	imported, err := env.repos.Valve.FindByTag(env.ctx, "IM-2")
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusPending, imported.Status)
	assert.Equal(t, env.leader.ID, imported.CreatedBy)

	env.setAutoApproval(t, true)
	data = workbook(t,
		[]interface{}{"位号", "名称"},
		[]interface{}{"IM-1", "覆盖后名称"},
		[]interface{}{"IM-3", "自动通过"},
	)
	result, err = env.svc.Import.Execute(env.ctx, env.leader, bytes.NewReader(data), ConflictOverwrite, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Overwritten)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Refused, 1)
	assert.Equal(t, existing.ID, result.Refused[0].ID)
	assert.Equal(t, statemachine.MsgStateEdit, result.Refused[0].Reason)

	underReview, err := env.repos.Valve.FindByID(env.ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "调节阀 IM-1", underReview.Name, "records under review are not overwritten")
	assert.Equal(t, models.ValveStatusPending, underReview.Status)

	auto, err := env.repos.Valve.FindByTag(env.ctx, "IM-3")
	require.NoError(t, err)
	assert.Equal(t, models.ValveStatusApproved, auto.Status)
}

func TestImportService_OverwriteApprovedReturnsToReview(t *testing.T) {
	env := newTestEnv(t)
	foreign := env.createValve(t, env.alice, "IM-A", true, nil)
	_, err := env.svc.Valve.Approve(env.ctx, env.leader, foreign.ID, "")
	require.NoError(t, err)
	own := env.createValve(t, env.leader, "IM-B", true, nil)
	_, err = env.svc.Valve.Approve(env.ctx, env.admin, own.ID, "")
	require.NoError(t, err)

	data := workbook(t,
		[]interface{}{"位号", "名称"},
		[]interface{}{"IM-A", "changed"},
		[]interface{}{"IM-B", "changed too"},
	)
	result, err := env.svc.Import.Execute(env.ctx, env.leader, bytes.NewReader(data), ConflictOverwrite, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Overwritten)
	assert.Empty(t, result.Refused)

	reset, err := env.repos.Valve.FindByID(env.ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", reset.Name)
	assert.Equal(t, models.ValveStatusDraft, reset.Status, "the creator resubmits")
	assert.Nil(t, reset.ApprovedBy)
	assert.Nil(t, reset.ApprovedAt)

	resubmitted, err := env.repos.Valve.FindByID(env.ctx, own.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed too", resubmitted.Name)
	assert.Equal(t, models.ValveStatusPending, resubmitted.Status)
	assert.Nil(t, resubmitted.ApprovedBy)

	logs, err := env.repos.ApprovalLog.FindByValve(env.ctx, own.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestExportService_ExportValvesHonoursVisibility(t *testing.T) {
	env := newTestEnv(t)
	draft := env.createValve(t, env.alice, "EX-1", false, nil)
	approved := env.createValve(t, env.alice, "EX-2", true, nil)
	_, err := env.svc.Valve.Approve(env.ctx, env.leader, approved.ID, "")
	require.NoError(t, err)

	data, filename, err := env.svc.Export.ExportValves(env.ctx, env.bob, []uint{draft.ID, approved.ID})
	require.NoError(t, err)
	assert.Contains(t, filename, ".xlsx")

	rows, _, err := ParseWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "EX-2", rows[0].Tag)
}
