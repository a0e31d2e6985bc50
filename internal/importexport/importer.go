package importexport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// DeviceStore is what the importer needs from the repository.
type DeviceStore interface {
	ListSites(ctx context.Context) ([]types.Site, error)
	ListLabs(ctx context.Context) ([]types.Lab, error)
	GetDevice(ctx context.Context, id string) (*types.Device, error)
	CreateDevice(ctx context.Context, device types.Device) error
	UpdateDevice(ctx context.Context, id string, patch types.DevicePatch) error
}

// Report summarizes an import run.
type Report struct {
	Imported int        `json:"imported"`
	Updated  int        `json:"updated"`
	Errors   int        `json:"errors"`
	Details  []RowError `json:"details,omitempty"`
}

type Importer struct {
	store  DeviceStore
	logger *zap.Logger
	now    func() time.Time
}

func NewImporter(store DeviceStore, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger, now: time.Now}
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "01-02-06", "2006-01-02T15:04:05Z07:00"}

// Import upserts rows by device id. Unknown statuses become Operational
// and a missing last check becomes today. A lab name that exists in more
// than one site needs the site column. Rows that fail are counted and
// skipped; a backend outage aborts the run.
func (im *Importer) Import(ctx context.Context, rows []Row, parseErrs []RowError) (*Report, error) {
	report := &Report{Details: append([]RowError(nil), parseErrs...)}
	report.Errors = len(parseErrs)

	sites, err := im.store.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	labs, err := im.store.ListLabs(ctx)
	if err != nil {
		return nil, err
	}

	fail := func(line int, reason string) {
		report.Errors++
		report.Details = append(report.Details, RowError{Line: line, Reason: reason})
	}

	for _, row := range rows {
		matches := types.MatchLabs(labs, sites, row.Site, row.Lab, sameName)
		switch {
		case len(matches) == 0 && row.Site != "":
			fail(row.Line, fmt.Sprintf("unknown lab %s in site %s", row.Lab, row.Site))
			continue
		case len(matches) == 0:
			fail(row.Line, "unknown lab "+row.Lab)
			continue
		case len(matches) > 1:
			fail(row.Line, fmt.Sprintf("lab %s exists in several sites; fill in the site column", row.Lab))
			continue
		}
		labID := matches[0].ID

		status, ok := types.ParseDeviceStatus(row.Status)
		if !ok {
			status = types.DeviceOperational
		}
		lastCheck := im.parseDate(row.LastCheck)

		_, err := im.store.GetDevice(ctx, row.ID)
		switch {
		case err == nil:
			patch := types.DevicePatch{
				Brand:     &row.Brand,
				Model:     &row.Model,
				Processor: &row.Processor,
				RAM:       &row.RAM,
				Storage:   &row.Storage,
				LabID:     &labID,
				Status:    &status,
				LastCheck: &lastCheck,
			}
			err = im.store.UpdateDevice(ctx, row.ID, patch)
			if err == nil {
				report.Updated++
			}
		case types.IsNotFound(err):
			err = im.store.CreateDevice(ctx, types.Device{
				ID:        row.ID,
				Brand:     row.Brand,
				Model:     row.Model,
				Processor: row.Processor,
				RAM:       row.RAM,
				Storage:   row.Storage,
				LabID:     labID,
				Status:    status,
				LastCheck: lastCheck,
			})
			if err == nil {
				report.Imported++
			}
		}

		if err != nil {
			if types.IsUnavailable(err) {
				return report, err
			}
			fail(row.Line, err.Error())
		}
	}

	im.logger.Info("Devices imported",
		zap.Int("imported", report.Imported),
		zap.Int("updated", report.Updated),
		zap.Int("errors", report.Errors))
	return report, nil
}

// sameName compares lab and site names ignoring case and accents.
func sameName(a, b string) bool {
	return NormalizeHeader(a) == NormalizeHeader(b)
}

func (im *Importer) parseDate(v string) string {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return im.now().Format("2006-01-02")
}
