package repository

import (
	"context"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// CheckInput is a checklist submission for one device.
type CheckInput struct {
	Keyboard bool   `json:"keyboard"`
	Mouse    bool   `json:"mouse"`
	Monitor  bool   `json:"monitor"`
	Cables   bool   `json:"cables"`
	Software bool   `json:"software"`
	Notes    string `json:"notes,omitempty"`
}

type LogInput struct {
	Description string        `json:"description"`
	Type        types.LogType `json:"type"`
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ListDevices returns every device with its lab and site names resolved
// and derived fields recomputed.
func (r *Repository) ListDevices(ctx context.Context) ([]types.Device, error) {
	devices, err := r.backend.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := r.locations(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		loc.finish(&devices[i])
	}
	return devices, nil
}

// Devices returns the cached device list, re-loading it only when devices,
// labs or sites were written since the last load.
func (r *Repository) Devices(ctx context.Context) ([]types.Device, error) {
	return r.devices.Current(ctx)
}

func (r *Repository) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	d, err := r.backend.GetDevice(ctx, id)
	if err != nil {
		return nil, err
	}
	loc, err := r.locations(ctx)
	if err != nil {
		return nil, err
	}
	loc.finish(d)
	return d, nil
}

// locations indexes labs and sites by id for naming devices.
type locations struct {
	labs  map[int64]types.Lab
	sites map[int64]string
}

func (r *Repository) locations(ctx context.Context) (*locations, error) {
	labs, err := r.backend.ListLabs(ctx)
	if err != nil {
		return nil, err
	}
	sites, err := r.backend.ListSites(ctx)
	if err != nil {
		return nil, err
	}

	loc := &locations{
		labs:  make(map[int64]types.Lab, len(labs)),
		sites: make(map[int64]string, len(sites)),
	}
	for _, l := range labs {
		loc.labs[l.ID] = l
	}
	for _, s := range sites {
		loc.sites[s.ID] = s.Name
	}
	return loc, nil
}

func (loc *locations) finish(d *types.Device) {
	d.Derive()
	if lab, ok := loc.labs[d.LabID]; ok {
		d.Lab = lab.Name
		d.Site = loc.sites[lab.SiteID]
	}
	if d.CheckHistory == nil {
		d.CheckHistory = []types.CheckRecord{}
	}
	if d.Logs == nil {
		d.Logs = []types.LogEntry{}
	}
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// resolveLab finds the lab id for a device. An explicit id must exist. A
// name is matched case-insensitively, within siteName when given, and
// must match exactly one lab.
func (r *Repository) resolveLab(ctx context.Context, labID int64, siteName, labName string) (int64, error) {
	labs, err := r.backend.ListLabs(ctx)
	if err != nil {
		return 0, err
	}
	if labID != 0 {
		for _, l := range labs {
			if l.ID == labID {
				return labID, nil
			}
		}
		return 0, types.Invalid("device", "labId")
	}

	labName = strings.TrimSpace(labName)
	if labName == "" {
		return 0, types.Missing("device", "lab")
	}
	var sites []types.Site
	if siteName = strings.TrimSpace(siteName); siteName != "" {
		if sites, err = r.backend.ListSites(ctx); err != nil {
			return 0, err
		}
	}

	matches := types.MatchLabs(labs, sites, siteName, labName, sameName)
	if len(matches) != 1 {
		return 0, types.Invalid("device", "lab")
	}
	return matches[0].ID, nil
}

func (r *Repository) CreateDevice(ctx context.Context, device types.Device) error {
	device.ID = strings.TrimSpace(device.ID)
	if device.ID == "" {
		return types.Missing("device", "id")
	}

	labID, err := r.resolveLab(ctx, device.LabID, device.Site, device.Lab)
	if err != nil {
		return err
	}
	device.LabID = labID

	if device.Status == "" {
		device.Status = types.DeviceOperational
	} else if status, ok := types.ParseDeviceStatus(string(device.Status)); ok {
		device.Status = status
	} else {
		return types.Invalid("device", "status")
	}

	device.Derive()
	if !r.caps.DeviceHistory {
		device.CheckHistory = nil
		device.Logs = nil
	}

	if err := r.backend.CreateDevice(ctx, device); err != nil {
		return err
	}

	r.logger.Info("Device created", zap.String("device_id", device.ID), zap.Int64("lab_id", labID))
	r.bus.Invalidate(types.TableDevices)
	return nil
}

// UpdateDevice applies a merge patch. Name and specs are recomputed when a
// component changes; history arrays are replaced only when the patch
// carries them.
func (r *Repository) UpdateDevice(ctx context.Context, id string, patch types.DevicePatch) error {
	unlock := r.locks.Lock("device:" + id)
	defer unlock()

	patch.Name, patch.Specs = nil, nil

	if patch.LabID != nil || patch.Lab != nil {
		var labID int64
		var labName string
		if patch.LabID != nil {
			labID = *patch.LabID
		}
		if patch.Lab != nil {
			labName = *patch.Lab
		}
		var siteName string
		if patch.Site != nil {
			siteName = *patch.Site
		}
		resolved, err := r.resolveLab(ctx, labID, siteName, labName)
		if err != nil {
			return err
		}
		patch.LabID = &resolved
	}
	patch.Lab, patch.Site = nil, nil

	if patch.Status != nil {
		status, ok := types.ParseDeviceStatus(string(*patch.Status))
		if !ok {
			return types.Invalid("device", "status")
		}
		patch.Status = &status
	}

	if patch.TouchesDerived() {
		current, err := r.backend.GetDevice(ctx, id)
		if err != nil {
			return err
		}
		patch.Apply(current)
		current.Derive()
		patch.Name, patch.Specs = &current.Name, &current.Specs
	}

	if !r.caps.DeviceHistory {
		patch.CheckHistory = nil
		patch.Logs = nil
	}

	if err := r.backend.UpdateDevice(ctx, id, patch); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableDevices)
	return nil
}

func (r *Repository) DeleteDevice(ctx context.Context, id string) error {
	if err := r.backend.DeleteDevice(ctx, id); err != nil {
		return err
	}
	r.logger.Info("Device deleted", zap.String("device_id", id))
	r.bus.Invalidate(types.TableDevices)
	return nil
}

// SubmitChecklist records an inspection. All five components passing makes
// the device Operational, anything else puts it in Maintenance. The record
// is appended, never merged, and appends to one device are serialized.
func (r *Repository) SubmitChecklist(ctx context.Context, deviceID string, in CheckInput, actor *types.User) (*types.Device, error) {
	unlock := r.locks.Lock("device:" + deviceID)
	defer unlock()

	now := r.now()
	record := types.CheckRecord{
		Date:     now.Format(dateLayout),
		Time:     now.Format(timeLayout),
		Keyboard: in.Keyboard,
		Mouse:    in.Mouse,
		Monitor:  in.Monitor,
		Cables:   in.Cables,
		Software: in.Software,
		Notes:    strings.TrimSpace(in.Notes),
	}
	if actor != nil {
		record.UserID = actor.ID
		record.UserName = actor.Name
	}
	status := types.StatusAfterCheck(record)

	if err := r.backend.AppendCheckRecord(ctx, deviceID, record, status); err != nil {
		return nil, err
	}

	r.logger.Info("Checklist submitted",
		zap.String("device_id", deviceID),
		zap.String("status", string(status)),
		zap.Strings("issues", record.Issues()))
	r.bus.Invalidate(types.TableDevices)
	return r.GetDevice(ctx, deviceID)
}

// AddLogEntry appends a note to the device log. The entry id is assigned by
// the backend.
func (r *Repository) AddLogEntry(ctx context.Context, deviceID string, in LogInput, actor *types.User) (*types.LogEntry, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return nil, types.Missing("log", "description")
	}
	if in.Type == "" {
		in.Type = types.LogInfo
	}
	if !in.Type.Valid() {
		return nil, types.Invalid("log", "type")
	}

	unlock := r.locks.Lock("device:" + deviceID)
	defer unlock()

	entry := types.LogEntry{
		Date:        r.now().Format(dateLayout),
		Description: in.Description,
		Type:        in.Type,
	}
	if actor != nil {
		entry.UserID = actor.ID
		entry.UserName = actor.Name
	}

	id, err := r.backend.AppendLogEntry(ctx, deviceID, entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id

	r.bus.Invalidate(types.TableDevices)
	return &entry, nil
}
