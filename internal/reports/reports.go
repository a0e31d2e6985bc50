// Package reports derives dashboard figures and maintenance reports from
// device snapshots. It never touches a backend.
package reports

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// Stats are the dashboard counters.
type Stats struct {
	Total       int `json:"total"`
	Operational int `json:"operational"`
	Maintenance int `json:"maintenance"`
	Broken      int `json:"broken"`
	Missing     int `json:"missing"`
}

// Attention is the number of devices that are broken or missing.
func (s Stats) Attention() int {
	return s.Broken + s.Missing
}

func Dashboard(devices []types.Device) Stats {
	s := Stats{Total: len(devices)}
	for _, d := range devices {
		switch d.Status {
		case types.DeviceOperational:
			s.Operational++
		case types.DeviceMaintenance:
			s.Maintenance++
		case types.DeviceBroken:
			s.Broken++
		case types.DeviceMissing:
			s.Missing++
		}
	}
	return s
}

type Period string

const (
	PeriodDay      Period = "day"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
	PeriodSemester Period = "semester"
	PeriodYear     Period = "year"
)

func ParsePeriod(v string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(v))); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodSemester, PeriodYear:
		return p, nil
	case "":
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("unknown report period %q", v)
}

// Start returns the first instant covered by the period ending at now.
func (p Period) Start(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodSemester:
		return now.AddDate(0, -6, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

const (
	StatusOK     = "OK"
	StatusIssues = "Issues"

	unknownUser = "Unknown"
)

// Entry is one check record in a maintenance report.
type Entry struct {
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	DeviceID   string   `json:"deviceId"`
	DeviceName string   `json:"deviceName"`
	LabName    string   `json:"labName"`
	UserName   string   `json:"userName"`
	Status     string   `json:"status"`
	Issues     []string `json:"issues"`
}

type Report struct {
	Period  Period    `json:"period"`
	Since   time.Time `json:"since"`
	Entries []Entry   `json:"entries"`
	Issues  int       `json:"issues"`
}

// Maintenance collects the check records dated on or after the period start,
// newest first. Record dates are calendar days in now's location.
func Maintenance(devices []types.Device, period Period, now time.Time) Report {
	since := period.Start(now)
	report := Report{Period: period, Since: since, Entries: []Entry{}}

	for _, d := range devices {
		for _, rec := range d.CheckHistory {
			at, ok := recordTime(rec, now.Location())
			if !ok || at.Before(since) {
				continue
			}
			issues := rec.Issues()
			e := Entry{
				Date:       rec.Date,
				Time:       rec.Time,
				DeviceID:   d.ID,
				DeviceName: d.Name,
				LabName:    d.Lab,
				UserName:   rec.UserName,
				Status:     StatusOK,
				Issues:     issues,
			}
			if e.UserName == "" {
				e.UserName = unknownUser
			}
			if len(issues) > 0 {
				e.Status = StatusIssues
				report.Issues++
			}
			report.Entries = append(report.Entries, e)
		}
	}

	sort.SliceStable(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.Time > b.Time
	})
	return report
}

// recordTime reads the record's date and, when present, its time of day.
func recordTime(rec types.CheckRecord, loc *time.Location) (time.Time, bool) {
	if rec.Time != "" {
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
			if t, err := time.ParseInLocation(layout, rec.Date+" "+rec.Time, loc); err == nil {
				return t, true
			}
		}
	}
	t, err := time.ParseInLocation("2006-01-02", rec.Date, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
