package services

import (
	"testing"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildValveReport_GroupsFields(t *testing.T) {
	valve := &models.Valve{Tag: "RV-1", Name: "调节阀", BodyMaterial: "CF8", Status: models.ValveStatusApproved}
	now := time.Date(2024, 5, 6, 7, 8, 0, 0, time.Local)

	report := BuildValveReport(valve, now)
	assert.Equal(t, "RV-1", report.Tag)
	assert.Equal(t, "已通过", report.Status)
	assert.Equal(t, "2024-05-06 07:08", report.GeneratedAt)

	require.NotEmpty(t, report.Sections)
	assert.Equal(t, "基本信息", report.Sections[0].Name)

	total := 0
	var material string
	for _, s := range report.Sections {
		total += len(s.Rows)
		for _, r := range s.Rows {
			if r.Label == "阀体_材质" {
				material = r.Value
			}
		}
	}
	assert.Equal(t, len(models.ValveFields()), total)
	assert.Equal(t, "CF8", material)
}

func TestReportService_FallsBackToGofpdf(t *testing.T) {
	env := newTestEnv(t)
	v := env.createValve(t, env.alice, "RV-2", false, nil)

	data, filename, err := env.svc.Report.ValvePDF(env.ctx, env.alice, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "valve_RV-2.pdf", filename)
	assert.Equal(t, "%PDF", string(data[:4]))

	_, _, err = env.svc.Report.ValvePDF(env.ctx, env.bob, v.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
