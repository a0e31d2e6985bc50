package remote

import (
	"context"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// appendAttempts bounds the retries when two writers race for the same
// log id and one hits the unique constraint.
const appendAttempts = 3

func (c *Client) ListDevices(ctx context.Context) ([]types.Device, error) {
	var rows []deviceRow
	if err := c.get(ctx, "list devices", storage.HostedDevices, map[string]string{"order": "id"}, &rows); err != nil {
		return nil, err
	}
	checks, err := c.checkRecords(ctx, "")
	if err != nil {
		return nil, err
	}
	logs, err := c.deviceLogs(ctx, "")
	if err != nil {
		return nil, err
	}

	devices := make([]types.Device, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, finishDevice(r, checks[r.ID], logs[r.ID]))
	}
	return devices, nil
}

func (c *Client) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	var rows []deviceRow
	if err := c.get(ctx, "get device", storage.HostedDevices, map[string]string{"id": eq(id)}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.NotFound("device", id)
	}
	checks, err := c.checkRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := c.deviceLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	d := finishDevice(rows[0], checks[id], logs[id])
	return &d, nil
}

// finishDevice attaches history. lastCheck is the created_at date unless a
// newer check record exists.
func finishDevice(r deviceRow, checks []types.CheckRecord, logs []types.LogEntry) types.Device {
	d := r.toDevice()
	d.CheckHistory = checks
	d.Logs = logs
	if d.CheckHistory == nil {
		d.CheckHistory = []types.CheckRecord{}
	}
	if d.Logs == nil {
		d.Logs = []types.LogEntry{}
	}
	for _, c := range d.CheckHistory {
		if c.Date > d.LastCheck {
			d.LastCheck = c.Date
		}
	}
	d.Derive()
	return d
}

func (c *Client) checkRecords(ctx context.Context, deviceID string) (map[string][]types.CheckRecord, error) {
	query := map[string]string{"order": "computador_id,id"}
	if deviceID != "" {
		query["computador_id"] = eq(deviceID)
	}
	var rows []checkRow
	if err := c.get(ctx, "list check records", storage.HostedCheckRecords, query, &rows); err != nil {
		return nil, err
	}
	out := make(map[string][]types.CheckRecord)
	for _, r := range rows {
		out[r.ComputadorID] = append(out[r.ComputadorID], r.toRecord())
	}
	return out, nil
}

func (c *Client) deviceLogs(ctx context.Context, deviceID string) (map[string][]types.LogEntry, error) {
	query := map[string]string{"order": "computador_id,log_id"}
	if deviceID != "" {
		query["computador_id"] = eq(deviceID)
	}
	var rows []logRow
	if err := c.get(ctx, "list device logs", storage.HostedDeviceLogs, query, &rows); err != nil {
		return nil, err
	}
	out := make(map[string][]types.LogEntry)
	for _, r := range rows {
		out[r.ComputadorID] = append(out[r.ComputadorID], r.toEntry())
	}
	return out, nil
}

func (c *Client) CreateDevice(ctx context.Context, device types.Device) error {
	row := deviceRow{
		ID:        device.ID,
		Brand:     device.Brand,
		Model:     device.Model,
		Processor: device.Processor,
		RAM:       device.RAM,
		Storage:   device.Storage,
		Status:    storage.HostedDeviceStatus(device.Status),
		LabID:     nonZero(&device.LabID),
		CreatedAt: device.LastCheck,
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(row).
		Post(tablePath(storage.HostedDevices))
	if err := c.check("create device", "device", "id", resp, err); err != nil {
		return err
	}

	for _, rec := range device.CheckHistory {
		if err := c.insertRow(ctx, "create device", storage.HostedCheckRecords, checkRowFrom(device.ID, rec)); err != nil {
			return err
		}
	}
	for _, l := range device.Logs {
		if err := c.insertRow(ctx, "create device", storage.HostedDeviceLogs, logRowFrom(device.ID, l)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) insertRow(ctx context.Context, op, table string, row any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(row).
		Post(tablePath(table))
	return c.check(op, table, "id", resp, err)
}

func (c *Client) deleteWhere(ctx context.Context, op, table string, filter map[string]string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(filter).
		Delete(tablePath(table))
	return c.check(op, table, "", resp, err)
}

func (c *Client) UpdateDevice(ctx context.Context, id string, patch types.DevicePatch) error {
	body := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			body[col] = *v
		}
	}
	set("brand", patch.Brand)
	set("model", patch.Model)
	set("processor", patch.Processor)
	set("ram", patch.RAM)
	set("storage", patch.Storage)
	set("created_at", patch.LastCheck)
	if patch.Status != nil {
		body["status"] = storage.HostedDeviceStatus(*patch.Status)
	}
	if patch.LabID != nil {
		body["labid"] = nonZero(patch.LabID)
	}
	if err := c.patch(ctx, "update device", storage.HostedDevices, "device", "id", id, body); err != nil {
		return err
	}

	if patch.CheckHistory != nil {
		if err := c.deleteWhere(ctx, "update device", storage.HostedCheckRecords, map[string]string{"computador_id": eq(id)}); err != nil {
			return err
		}
		for _, rec := range *patch.CheckHistory {
			if err := c.insertRow(ctx, "update device", storage.HostedCheckRecords, checkRowFrom(id, rec)); err != nil {
				return err
			}
		}
	}
	if patch.Logs != nil {
		if err := c.deleteWhere(ctx, "update device", storage.HostedDeviceLogs, map[string]string{"computador_id": eq(id)}); err != nil {
			return err
		}
		for _, l := range *patch.Logs {
			if err := c.insertRow(ctx, "update device", storage.HostedDeviceLogs, logRowFrom(id, l)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	return c.remove(ctx, "delete device", storage.HostedDevices, "device", id)
}

// AppendCheckRecord inserts one row into the check table, so concurrent
// appends never overwrite each other, then records the resulting status.
func (c *Client) AppendCheckRecord(ctx context.Context, deviceID string, record types.CheckRecord, status types.DeviceStatus) error {
	if _, err := c.GetDevice(ctx, deviceID); err != nil {
		return err
	}
	if err := c.insertRow(ctx, "append check record", storage.HostedCheckRecords, checkRowFrom(deviceID, record)); err != nil {
		return err
	}
	return c.patch(ctx, "append check record", storage.HostedDevices, "device", "id", deviceID,
		map[string]any{"status": storage.HostedDeviceStatus(status)})
}

// AppendLogEntry takes the next log id for the device. The (device, log id)
// unique key turns a lost race into a conflict, which is retried.
func (c *Client) AppendLogEntry(ctx context.Context, deviceID string, entry types.LogEntry) (int64, error) {
	var devices []deviceRow
	err := c.get(ctx, "append log entry", storage.HostedDevices, map[string]string{"id": eq(deviceID), "select": "id"}, &devices)
	if err != nil {
		return 0, err
	}
	if len(devices) == 0 {
		return 0, types.NotFound("device", deviceID)
	}

	for attempt := 1; ; attempt++ {
		var last []logRow
		err := c.get(ctx, "append log entry", storage.HostedDeviceLogs, map[string]string{
			"computador_id": eq(deviceID),
			"select":        "log_id",
			"order":         "log_id.desc",
			"limit":         "1",
		}, &last)
		if err != nil {
			return 0, err
		}
		entry.ID = 1
		if len(last) > 0 {
			entry.ID = last[0].LogID + 1
		}

		err = c.insertRow(ctx, "append log entry", storage.HostedDeviceLogs, logRowFrom(deviceID, entry))
		if err == nil {
			return entry.ID, nil
		}
		if !types.IsDuplicate(err) || attempt == appendAttempts {
			return 0, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
}
