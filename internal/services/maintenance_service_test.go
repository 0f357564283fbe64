package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaintenanceTime(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantNil bool
		wantErr bool
	}{
		{input: "", wantNil: true},
		{input: "2024-03-05T08:30", want: "2024-03-05 08:30:00"},
		{input: "2024-03-05 08:30:15", want: "2024-03-05 08:30:15"},
		{input: "2024-03-05 08:30", want: "2024-03-05 08:30:00"},
		{input: " 2024-03-05 ", want: "2024-03-05 00:00:00"},
		{input: "05/03/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMaintenanceTime(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02 15:04:05"))
		})
	}
}

func TestMaintenanceService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	v := env.createValve(t, env.alice, "MV-1", true, nil)
	_, err := env.svc.Valve.Approve(env.ctx, env.leader, v.ID, "")
	require.NoError(t, err)

	record, err := env.svc.Maintenance.Create(env.ctx, env.bob, v.ID, MaintenanceInput{
		MaintainedAt: "2024-06-01 09:00",
		Content:      "更换填料",
		Type:         "计划检修",
	})
	require.NoError(t, err)
	assert.Equal(t, "MV-1", record.EquipmentTag)
	assert.Equal(t, v.Name, record.EquipmentName)
	require.NotNil(t, record.MaintainedAt)
	assert.Equal(t, 2024, record.MaintainedAt.Year())

	_, err = env.svc.Maintenance.Create(env.ctx, env.bob, v.ID, MaintenanceInput{MaintainedAt: "昨天"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.Maintenance.Update(env.ctx, env.alice, record.ID, MaintenanceInput{Content: "改"})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.svc.Maintenance.Update(env.ctx, env.leader, record.ID, MaintenanceInput{Content: "更换填料及阀座"})
	require.NoError(t, err)
	assert.Equal(t, "MV-1", updated.EquipmentTag)
	assert.Nil(t, updated.MaintainedAt)

	records, err := env.svc.Maintenance.ListByValve(env.ctx, env.alice, v.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	result, err := env.svc.Maintenance.BatchDelete(env.ctx, env.alice, []uint{record.ID, 4242})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Len(t, result.Skipped, 2)

	require.NoError(t, env.svc.Maintenance.Delete(env.ctx, env.bob, record.ID))
}

func TestMaintenanceService_HiddenValve(t *testing.T) {
	env := newTestEnv(t)
	v := env.createValve(t, env.alice, "MV-2", false, nil)

	_, err := env.svc.Maintenance.Create(env.ctx, env.bob, v.ID, MaintenanceInput{Content: "x", MaintainedAt: time.Now().Format("2006-01-02")})
	assert.ErrorIs(t, err, ErrForbidden)
}
