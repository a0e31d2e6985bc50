package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
)

const dateLayout = "2006-01-02"

const deviceColumns = `id, brand, model, processor, ram, storage, status, COALESCE(labid, 0), created_at`

func scanDevice(row interface{ Scan(...any) error }) (types.Device, time.Time, error) {
	var d types.Device
	var status string
	var createdAt time.Time
	err := row.Scan(&d.ID, &d.Brand, &d.Model, &d.Processor, &d.RAM, &d.Storage, &status, &d.LabID, &createdAt)
	d.Status = storage.CanonicalDeviceStatus(status)
	return d, createdAt, err
}

// finishDevice attaches history and exposes the newer of created_at and
// the latest check date as lastCheck.
func finishDevice(d *types.Device, createdAt time.Time, checks []types.CheckRecord, logs []types.LogEntry) {
	d.CheckHistory = checks
	d.Logs = logs
	if d.CheckHistory == nil {
		d.CheckHistory = []types.CheckRecord{}
	}
	if d.Logs == nil {
		d.Logs = []types.LogEntry{}
	}
	d.LastCheck = createdAt.UTC().Format(dateLayout)
	for _, c := range d.CheckHistory {
		if c.Date > d.LastCheck {
			d.LastCheck = c.Date
		}
	}
	d.Derive()
}

func (s *Store) ListDevices(ctx context.Context) ([]types.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM computadores ORDER BY id`)
	if err != nil {
		return nil, types.Unavailable("list devices", err)
	}
	defer rows.Close()

	var devices []types.Device
	var created []time.Time
	for rows.Next() {
		d, createdAt, err := scanDevice(rows)
		if err != nil {
			return nil, types.Unavailable("list devices", err)
		}
		devices = append(devices, d)
		created = append(created, createdAt)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list devices", err)
	}

	checks, err := s.checkRecords(ctx, s.db, "")
	if err != nil {
		return nil, err
	}
	logs, err := s.deviceLogs(ctx, s.db, "")
	if err != nil {
		return nil, err
	}

	out := make([]types.Device, 0, len(devices))
	for i := range devices {
		d := devices[i]
		finishDevice(&d, created[i], checks[d.ID], logs[d.ID])
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM computadores WHERE id = $1`, id)
	d, createdAt, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("device", id)
	}
	if err != nil {
		return nil, types.Unavailable("get device", err)
	}

	checks, err := s.checkRecords(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.deviceLogs(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	finishDevice(&d, createdAt, checks[id], logs[id])
	return &d, nil
}

// checkRecords loads check records grouped by device. An empty deviceID
// loads every device.
func (s *Store) checkRecords(ctx context.Context, q querier, deviceID string) (map[string][]types.CheckRecord, error) {
	query := `SELECT computador_id, date, time, keyboard, mouse, monitor, cables, software, notes, COALESCE(user_id, 0), user_name
		FROM check_records`
	var args []any
	if deviceID != "" {
		query += ` WHERE computador_id = $1`
		args = append(args, deviceID)
	}
	query += ` ORDER BY computador_id, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Unavailable("list check records", err)
	}
	defer rows.Close()

	out := make(map[string][]types.CheckRecord)
	for rows.Next() {
		var id string
		var r types.CheckRecord
		if err := rows.Scan(&id, &r.Date, &r.Time, &r.Keyboard, &r.Mouse, &r.Monitor, &r.Cables, &r.Software, &r.Notes, &r.UserID, &r.UserName); err != nil {
			return nil, types.Unavailable("list check records", err)
		}
		out[id] = append(out[id], r)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list check records", err)
	}
	return out, nil
}

func (s *Store) deviceLogs(ctx context.Context, q querier, deviceID string) (map[string][]types.LogEntry, error) {
	query := `SELECT computador_id, log_id, date, description, type, COALESCE(user_id, 0), user_name FROM device_logs`
	var args []any
	if deviceID != "" {
		query += ` WHERE computador_id = $1`
		args = append(args, deviceID)
	}
	query += ` ORDER BY computador_id, log_id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.Unavailable("list device logs", err)
	}
	defer rows.Close()

	out := make(map[string][]types.LogEntry)
	for rows.Next() {
		var id, logType string
		var l types.LogEntry
		if err := rows.Scan(&id, &l.ID, &l.Date, &l.Description, &logType, &l.UserID, &l.UserName); err != nil {
			return nil, types.Unavailable("list device logs", err)
		}
		l.Type = types.LogType(logType)
		out[id] = append(out[id], l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list device logs", err)
	}
	return out, nil
}

// createdAt turns a lastCheck date into the hosted created_at column.
func createdAt(lastCheck string) (time.Time, error) {
	if lastCheck == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(dateLayout, lastCheck)
	if err != nil {
		return time.Time{}, types.Invalid("device", "lastCheck")
	}
	return t, nil
}

func (s *Store) CreateDevice(ctx context.Context, device types.Device) error {
	created, err := createdAt(device.LastCheck)
	if err != nil {
		return err
	}

	return s.withTx(ctx, "create device", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO computadores (id, brand, model, processor, ram, storage, status, labid, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, device.ID, device.Brand, device.Model, device.Processor, device.RAM, device.Storage,
			storage.HostedDeviceStatus(device.Status), nullInt(&device.LabID), created)
		if err != nil {
			return translate("create device", "device", "id", err)
		}
		if err := insertChecks(ctx, tx, device.ID, device.CheckHistory); err != nil {
			return err
		}
		return insertLogs(ctx, tx, device.ID, device.Logs)
	})
}

func (s *Store) UpdateDevice(ctx context.Context, id string, patch types.DevicePatch) error {
	var cols []column
	add := func(name string, v *string) {
		if v != nil {
			cols = append(cols, column{name, *v})
		}
	}
	add("brand", patch.Brand)
	add("model", patch.Model)
	add("processor", patch.Processor)
	add("ram", patch.RAM)
	add("storage", patch.Storage)
	if patch.Status != nil {
		cols = append(cols, column{"status", storage.HostedDeviceStatus(*patch.Status)})
	}
	if patch.LabID != nil {
		cols = append(cols, column{"labid", nullInt(patch.LabID)})
	}
	if patch.LastCheck != nil {
		created, err := createdAt(*patch.LastCheck)
		if err != nil {
			return err
		}
		cols = append(cols, column{"created_at", created})
	}

	if patch.CheckHistory == nil && patch.Logs == nil {
		return s.update(ctx, s.db, "computadores", "device", "id", id, cols)
	}

	return s.withTx(ctx, "update device", func(tx *sql.Tx) error {
		if err := s.update(ctx, tx, "computadores", "device", "id", id, cols); err != nil {
			return err
		}
		if patch.CheckHistory != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM check_records WHERE computador_id = $1`, id); err != nil {
				return types.Unavailable("update device", err)
			}
			if err := insertChecks(ctx, tx, id, *patch.CheckHistory); err != nil {
				return err
			}
		}
		if patch.Logs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM device_logs WHERE computador_id = $1`, id); err != nil {
				return types.Unavailable("update device", err)
			}
			if err := insertLogs(ctx, tx, id, *patch.Logs); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	return s.remove(ctx, "computadores", "device", id)
}

// lockDevice takes a row lock on the device for the rest of tx.
func lockDevice(ctx context.Context, tx *sql.Tx, op, deviceID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM computadores WHERE id = $1 FOR UPDATE`, deviceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.NotFound("device", deviceID)
	}
	if err != nil {
		return types.Unavailable(op, err)
	}
	return nil
}

func (s *Store) AppendCheckRecord(ctx context.Context, deviceID string, record types.CheckRecord, status types.DeviceStatus) error {
	return s.withTx(ctx, "append check record", func(tx *sql.Tx) error {
		if err := lockDevice(ctx, tx, "append check record", deviceID); err != nil {
			return err
		}
		if err := insertChecks(ctx, tx, deviceID, []types.CheckRecord{record}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE computadores SET status = $1 WHERE id = $2`,
			storage.HostedDeviceStatus(status), deviceID)
		if err != nil {
			return types.Unavailable("append check record", err)
		}
		return nil
	})
}

func (s *Store) AppendLogEntry(ctx context.Context, deviceID string, entry types.LogEntry) (int64, error) {
	err := s.withTx(ctx, "append log entry", func(tx *sql.Tx) error {
		if err := lockDevice(ctx, tx, "append log entry", deviceID); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(log_id), 0) + 1 FROM device_logs WHERE computador_id = $1`, deviceID).Scan(&entry.ID)
		if err != nil {
			return types.Unavailable("append log entry", err)
		}
		return insertLogs(ctx, tx, deviceID, []types.LogEntry{entry})
	})
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func insertChecks(ctx context.Context, tx *sql.Tx, deviceID string, records []types.CheckRecord) error {
	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO check_records (computador_id, date, time, keyboard, mouse, monitor, cables, software, notes, user_id, user_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, deviceID, r.Date, r.Time, r.Keyboard, r.Mouse, r.Monitor, r.Cables, r.Software, r.Notes, nullInt(&r.UserID), r.UserName)
		if err != nil {
			return types.Unavailable("insert check record", err)
		}
	}
	return nil
}

func insertLogs(ctx context.Context, tx *sql.Tx, deviceID string, logs []types.LogEntry) error {
	for _, l := range logs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO device_logs (computador_id, log_id, date, description, type, user_id, user_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, deviceID, l.ID, l.Date, l.Description, string(l.Type), nullInt(&l.UserID), l.UserName)
		if err != nil {
			return types.Unavailable("insert device log", err)
		}
	}
	return nil
}
