package local

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

type schemaMeta struct {
	ID       int64 `gorm:"primaryKey"`
	Version  int
	SeededAt *time.Time
}

func (schemaMeta) TableName() string { return "schema_meta" }

type siteModel struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"index"`
}

func (siteModel) TableName() string { return "sites" }

type labModel struct {
	ID     int64  `gorm:"primaryKey"`
	Name   string `gorm:"index;uniqueIndex:idx_labs_name_site"`
	SiteID int64  `gorm:"index;uniqueIndex:idx_labs_name_site"`
}

func (labModel) TableName() string { return "labs" }

type deviceModel struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"index"`
	Brand        string
	Model        string
	Processor    string
	RAM          string `gorm:"column:ram"`
	Storage      string
	Specs        string
	LabID        int64  `gorm:"index"`
	Status       string `gorm:"index"`
	LastCheck    string
	CheckHistory string `gorm:"type:text"`
	Logs         string `gorm:"type:text"`
}

func (deviceModel) TableName() string { return "devices" }

type userModel struct {
	ID                  int64  `gorm:"primaryKey"`
	AuthID              string `gorm:"index"`
	Name                string
	Email               string `gorm:"uniqueIndex"`
	PasswordHash        string
	Avatar              string
	Role                string
	GroupID             *int64 `gorm:"index"`
	IsBlocked           bool
	ForceChangePassword bool   `gorm:"not null;default:false"`
	Status              string `gorm:"not null;default:offline"`
}

func (userModel) TableName() string { return "users" }

type groupModel struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"index"`
	Description string
	Permissions string `gorm:"type:text"`
}

func (groupModel) TableName() string { return "groups" }

type taskModel struct {
	ID          int64 `gorm:"primaryKey"`
	Title       string
	Description string
	Status      string `gorm:"index"`
	Priority    string `gorm:"not null;default:normal"`
	AssignedTo  *int64 `gorm:"index"`
	SiteID      *int64
	LabID       *int64
	DeviceID    *string
	Location    string `gorm:"not null;default:''"`
	DueDate     string
	Checklist   string `gorm:"type:text;not null;default:'[]'"`
	CreatedBy   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskModel) TableName() string { return "tasks" }

type subtaskModel struct {
	ID     int64 `gorm:"primaryKey"`
	TaskID int64 `gorm:"index"`
	Title  string
	Done   bool
}

func (subtaskModel) TableName() string { return "subtasks" }

type commentModel struct {
	ID        int64 `gorm:"primaryKey"`
	TaskID    int64 `gorm:"index"`
	UserID    int64
	Content   string
	CreatedAt time.Time
}

func (commentModel) TableName() string { return "task_comments" }

type attachmentModel struct {
	ID       int64 `gorm:"primaryKey"`
	TaskID   int64 `gorm:"index"`
	FileName string
	FileURL  string
	FileType string
}

func (attachmentModel) TableName() string { return "task_attachments" }

type messageModel struct {
	ID         int64 `gorm:"primaryKey"`
	SenderID   int64 `gorm:"index"`
	ReceiverID int64 `gorm:"index"`
	Content    string
	Timestamp  time.Time `gorm:"index"`
	Read       bool      `gorm:"not null;default:false"`
}

func (messageModel) TableName() string { return "messages" }

func encodeJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeJSON[T any](raw string) ([]T, error) {
	out := []T{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []T{}, fmt.Errorf("failed to decode json column: %w", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// decodeOrWarn reads a JSON column for display. An unreadable column is
// logged and read as empty; the stored value is left alone.
func decodeOrWarn[T any](logger *zap.Logger, column, raw string, fields ...zap.Field) []T {
	out, err := decodeJSON[T](raw)
	if err != nil {
		logger.Error("Unreadable JSON column", append(fields, zap.String("column", column), zap.Error(err))...)
	}
	return out
}

// appendJSON adds item to the JSON array raw. Existing entries are copied
// through as stored, and an array that does not decode as []T is refused
// rather than rewritten.
func appendJSON[T any](raw string, item T) (string, error) {
	if _, err := decodeJSON[T](raw); err != nil {
		return "", err
	}
	var entries []json.RawMessage
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return "", fmt.Errorf("failed to decode json column: %w", err)
		}
	}

	encoded, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode entry: %w", err)
	}
	out, err := json.Marshal(append(entries, encoded))
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(out), nil
}

func (m deviceModel) toDevice(logger *zap.Logger) types.Device {
	return types.Device{
		ID:           m.ID,
		Name:         m.Name,
		Brand:        m.Brand,
		Model:        m.Model,
		Processor:    m.Processor,
		RAM:          m.RAM,
		Storage:      m.Storage,
		Specs:        m.Specs,
		LabID:        m.LabID,
		Status:       types.DeviceStatus(m.Status),
		LastCheck:    m.LastCheck,
		CheckHistory: decodeOrWarn[types.CheckRecord](logger, "check_history", m.CheckHistory, zap.String("device_id", m.ID)),
		Logs:         decodeOrWarn[types.LogEntry](logger, "logs", m.Logs, zap.String("device_id", m.ID)),
	}
}

func deviceFrom(d types.Device) deviceModel {
	if d.CheckHistory == nil {
		d.CheckHistory = []types.CheckRecord{}
	}
	if d.Logs == nil {
		d.Logs = []types.LogEntry{}
	}
	return deviceModel{
		ID:           d.ID,
		Name:         d.Name,
		Brand:        d.Brand,
		Model:        d.Model,
		Processor:    d.Processor,
		RAM:          d.RAM,
		Storage:      d.Storage,
		Specs:        d.Specs,
		LabID:        d.LabID,
		Status:       string(d.Status),
		LastCheck:    d.LastCheck,
		CheckHistory: encodeJSON(d.CheckHistory),
		Logs:         encodeJSON(d.Logs),
	}
}

func (m userModel) toUser() types.User {
	return types.User{
		ID:                  m.ID,
		AuthID:              m.AuthID,
		Name:                m.Name,
		Email:               m.Email,
		PasswordHash:        m.PasswordHash,
		Avatar:              m.Avatar,
		Role:                types.Role(m.Role),
		GroupID:             m.GroupID,
		IsBlocked:           m.IsBlocked,
		ForceChangePassword: m.ForceChangePassword,
		Status:              types.Presence(m.Status),
	}
}

func (m groupModel) toGroup(logger *zap.Logger) types.Group {
	return types.Group{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Permissions: decodeOrWarn[types.Permission](logger, "permissions", m.Permissions, zap.Int64("group_id", m.ID)),
	}
}

func (m taskModel) toTask(logger *zap.Logger) types.Task {
	return types.Task{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Status:      types.TaskStatus(m.Status),
		Priority:    types.TaskPriority(m.Priority),
		AssignedTo:  m.AssignedTo,
		SiteID:      m.SiteID,
		LabID:       m.LabID,
		DeviceID:    m.DeviceID,
		Location:    m.Location,
		DueDate:     m.DueDate,
		Checklist:   decodeOrWarn[types.ChecklistItem](logger, "checklist", m.Checklist, zap.Int64("task_id", m.ID)),
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (m messageModel) toMessage() types.Message {
	return types.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Read:       m.Read,
	}
}
