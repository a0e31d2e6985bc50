package reports

import (
	"testing"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func check(date, tm string, ok bool) types.CheckRecord {
	return types.CheckRecord{Date: date, Time: tm, Keyboard: true, Mouse: ok, Monitor: true, Cables: ok, Software: true}
}

func TestDashboard(t *testing.T) {
	stats := Dashboard([]types.Device{
		{Status: types.DeviceOperational},
		{Status: types.DeviceOperational},
		{Status: types.DeviceMaintenance},
		{Status: types.DeviceBroken},
		{Status: types.DeviceMissing},
	})
	assert.Equal(t, Stats{Total: 5, Operational: 2, Maintenance: 1, Broken: 1, Missing: 1}, stats)
	assert.Equal(t, 2, stats.Attention())
	assert.Equal(t, Stats{}, Dashboard(nil))
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2024, 8, 31, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		period Period
		want   time.Time
	}{
		{PeriodDay, time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC)},
		{PeriodWeek, time.Date(2024, 8, 24, 15, 30, 0, 0, time.UTC)},
		{PeriodMonth, time.Date(2024, 7, 31, 15, 30, 0, 0, time.UTC)},
		{PeriodSemester, time.Date(2024, 3, 2, 15, 30, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2023, 8, 31, 15, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.period.Start(now))
		})
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod(" Week ")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeek, p)

	p, err = ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)

	_, err = ParsePeriod("decade")
	assert.Error(t, err)
}

func TestMaintenance(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	devices := []types.Device{
		{
			ID: "PAT-001", Name: "Dell Inspiron", Lab: "Lab 1",
			CheckHistory: []types.CheckRecord{
				check("2024-05-10", "09:00", true),
				check("2024-04-01", "09:00", true),
			},
		},
		{
			ID: "PAT-002", Name: "HP ProDesk", Lab: "Lab 2",
			CheckHistory: []types.CheckRecord{
				{Date: "2024-05-08", Time: "10:00", Keyboard: true, Mouse: false, Monitor: true, Cables: false, Software: true, UserName: "Ana"},
				{Date: "not-a-date"},
			},
		},
	}

	report := Maintenance(devices, PeriodWeek, now)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, 1, report.Issues)

	first := report.Entries[0]
	assert.Equal(t, "PAT-001", first.DeviceID)
	assert.Equal(t, StatusOK, first.Status)
	assert.Empty(t, first.Issues)
	assert.Equal(t, "Unknown", first.UserName)

	second := report.Entries[1]
	assert.Equal(t, "HP ProDesk", second.DeviceName)
	assert.Equal(t, "Lab 2", second.LabName)
	assert.Equal(t, StatusIssues, second.Status)
	assert.Equal(t, []string{"Mouse", "Cables"}, second.Issues)
	assert.Equal(t, "Ana", second.UserName)

	assert.Len(t, Maintenance(devices, PeriodMonth, now).Entries, 2)
	assert.Len(t, Maintenance(devices, PeriodSemester, now).Entries, 3)
	assert.Len(t, Maintenance(devices, PeriodDay, now).Entries, 1)
}

func TestMaintenanceEmpty(t *testing.T) {
	report := Maintenance(nil, PeriodYear, time.Now())
	assert.NotNil(t, report.Entries)
	assert.Empty(t, report.Entries)
}
