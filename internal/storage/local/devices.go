package local

import (
	"context"
	"errors"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Store) ListDevices(ctx context.Context) ([]types.Device, error) {
	var rows []deviceModel
	if err := s.conn(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list devices", err)
	}
	devices := make([]types.Device, 0, len(rows))
	for _, r := range rows {
		devices = append(devices, r.toDevice(s.logger))
	}
	return devices, nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (*types.Device, error) {
	var m deviceModel
	err := s.conn(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("device", id)
	}
	if err != nil {
		return nil, types.Unavailable("get device", err)
	}
	d := m.toDevice(s.logger)
	return &d, nil
}

func (s *Store) CreateDevice(ctx context.Context, device types.Device) error {
	m := deviceFrom(device)
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return translate("create device", "device", "id", err)
	}
	return nil
}

func (s *Store) UpdateDevice(ctx context.Context, id string, patch types.DevicePatch) error {
	updates := map[string]interface{}{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = *v
		}
	}
	set("brand", patch.Brand)
	set("model", patch.Model)
	set("processor", patch.Processor)
	set("ram", patch.RAM)
	set("storage", patch.Storage)
	set("last_check", patch.LastCheck)
	set("name", patch.Name)
	set("specs", patch.Specs)
	if patch.LabID != nil {
		updates["lab_id"] = *patch.LabID
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.CheckHistory != nil {
		updates["check_history"] = encodeJSON(*patch.CheckHistory)
	}
	if patch.Logs != nil {
		updates["logs"] = encodeJSON(*patch.Logs)
	}
	return s.update(ctx, &deviceModel{}, "device", "id", id, updates)
}

func (s *Store) DeleteDevice(ctx context.Context, id string) error {
	return s.remove(ctx, &deviceModel{}, "device", id)
}

// AppendCheckRecord reads, appends and writes inside one transaction, so
// concurrent appends cannot drop entries.
func (s *Store) AppendCheckRecord(ctx context.Context, deviceID string, record types.CheckRecord, status types.DeviceStatus) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var m deviceModel
		err := tx.Where("id = ?", deviceID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("device", deviceID)
		}
		if err != nil {
			return types.Unavailable("append check record", err)
		}

		history, err := appendJSON(m.CheckHistory, record)
		if err != nil {
			s.logger.Error("Refusing to rewrite unreadable check history",
				zap.String("device_id", deviceID), zap.Error(err))
			return types.Unavailable("append check record", err)
		}
		err = tx.Model(&deviceModel{}).Where("id = ?", deviceID).Updates(map[string]interface{}{
			"check_history": history,
			"status":        string(status),
			"last_check":    record.Date,
		}).Error
		if err != nil {
			return types.Unavailable("append check record", err)
		}
		return nil
	})
}

func (s *Store) AppendLogEntry(ctx context.Context, deviceID string, entry types.LogEntry) (int64, error) {
	var id int64
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var m deviceModel
		err := tx.Where("id = ?", deviceID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("device", deviceID)
		}
		if err != nil {
			return types.Unavailable("append log entry", err)
		}

		existing, err := decodeJSON[types.LogEntry](m.Logs)
		if err != nil {
			s.logger.Error("Refusing to rewrite unreadable device log",
				zap.String("device_id", deviceID), zap.Error(err))
			return types.Unavailable("append log entry", err)
		}
		for _, l := range existing {
			if l.ID > id {
				id = l.ID
			}
		}
		id++
		entry.ID = id

		logs, err := appendJSON(m.Logs, entry)
		if err != nil {
			return types.Unavailable("append log entry", err)
		}
		if err := tx.Model(&deviceModel{}).Where("id = ?", deviceID).Update("logs", logs).Error; err != nil {
			return types.Unavailable("append log entry", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
