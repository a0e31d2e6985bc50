package remote

import (
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// Row shapes of the hosted tables, with their hosted column names.

type siteRow struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type labRow struct {
	ID     int64  `json:"id,omitempty"`
	Name   string `json:"name"`
	SedeID int64  `json:"sedeid"`
}

type deviceRow struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Processor string `json:"processor"`
	RAM       string `json:"ram"`
	Storage   string `json:"storage"`
	Status    string `json:"status"`
	LabID     *int64 `json:"labid"`
	CreatedAt string `json:"created_at,omitempty"`
}

type checkRow struct {
	ComputadorID string `json:"computador_id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Keyboard     bool   `json:"keyboard"`
	Mouse        bool   `json:"mouse"`
	Monitor      bool   `json:"monitor"`
	Cables       bool   `json:"cables"`
	Software     bool   `json:"software"`
	Notes        string `json:"notes"`
	UserID       *int64 `json:"user_id"`
	UserName     string `json:"user_name"`
}

type logRow struct {
	ComputadorID string `json:"computador_id"`
	LogID        int64  `json:"log_id"`
	Date         string `json:"date"`
	Description  string `json:"description"`
	Type         string `json:"type"`
	UserID       *int64 `json:"user_id"`
	UserName     string `json:"user_name"`
}

type userRow struct {
	ID        int64  `json:"id,omitempty"`
	AuthID    string `json:"auth_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role"`
	GroupID   *int64 `json:"group_id"`
	IsBlocked bool   `json:"is_blocked"`
	Status    string `json:"status"`
}

type groupRow struct {
	ID          int64              `json:"id,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions []types.Permission `json:"permissions"`
}

type taskRow struct {
	ID           int64                 `json:"id,omitempty"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Status       string                `json:"status"`
	Priority     string                `json:"priority"`
	AssignedTo   *int64                `json:"assigned_to"`
	SedeID       *int64                `json:"sede_id"`
	LabID        *int64                `json:"lab_id"`
	ComputadorID *string               `json:"computador_id"`
	Location     string                `json:"location"`
	DueDate      string                `json:"due_date"`
	Checklist    []types.ChecklistItem `json:"checklist"`
	CreatedBy    *int64                `json:"created_by"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type subtaskRow struct {
	ID     int64  `json:"id,omitempty"`
	TaskID int64  `json:"task_id"`
	Title  string `json:"title"`
	Done   bool   `json:"done"`
}

type commentRow struct {
	ID        int64     `json:"id,omitempty"`
	TaskID    int64     `json:"task_id"`
	UserID    *int64    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Users     *struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"users,omitempty"`
}

type attachmentRow struct {
	ID       int64  `json:"id,omitempty"`
	TaskID   int64  `json:"task_id"`
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type"`
}

type messageRow struct {
	ID         int64     `json:"id,omitempty"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// nonZero turns a zero id into a JSON null.
func nonZero(v *int64) *int64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

func (r deviceRow) toDevice() types.Device {
	d := types.Device{
		ID:        r.ID,
		Brand:     r.Brand,
		Model:     r.Model,
		Processor: r.Processor,
		RAM:       r.RAM,
		Storage:   r.Storage,
		Status:    storage.CanonicalDeviceStatus(r.Status),
	}
	if r.LabID != nil {
		d.LabID = *r.LabID
	}
	if len(r.CreatedAt) >= 10 {
		d.LastCheck = r.CreatedAt[:10]
	}
	return d
}

func (r checkRow) toRecord() types.CheckRecord {
	rec := types.CheckRecord{
		Date:     r.Date,
		Time:     r.Time,
		Keyboard: r.Keyboard,
		Mouse:    r.Mouse,
		Monitor:  r.Monitor,
		Cables:   r.Cables,
		Software: r.Software,
		Notes:    r.Notes,
		UserName: r.UserName,
	}
	if r.UserID != nil {
		rec.UserID = *r.UserID
	}
	return rec
}

func checkRowFrom(deviceID string, r types.CheckRecord) checkRow {
	return checkRow{
		ComputadorID: deviceID,
		Date:         r.Date,
		Time:         r.Time,
		Keyboard:     r.Keyboard,
		Mouse:        r.Mouse,
		Monitor:      r.Monitor,
		Cables:       r.Cables,
		Software:     r.Software,
		Notes:        r.Notes,
		UserID:       nonZero(&r.UserID),
		UserName:     r.UserName,
	}
}

func (r logRow) toEntry() types.LogEntry {
	e := types.LogEntry{
		ID:          r.LogID,
		Date:        r.Date,
		Description: r.Description,
		Type:        types.LogType(r.Type),
		UserName:    r.UserName,
	}
	if r.UserID != nil {
		e.UserID = *r.UserID
	}
	return e
}

func logRowFrom(deviceID string, e types.LogEntry) logRow {
	return logRow{
		ComputadorID: deviceID,
		LogID:        e.ID,
		Date:         e.Date,
		Description:  e.Description,
		Type:         string(e.Type),
		UserID:       nonZero(&e.UserID),
		UserName:     e.UserName,
	}
}

func (r userRow) toUser() types.User {
	return types.User{
		ID:        r.ID,
		AuthID:    r.AuthID,
		Name:      r.Name,
		Email:     r.Email,
		Avatar:    r.Avatar,
		Role:      types.Role(r.Role),
		GroupID:   r.GroupID,
		IsBlocked: r.IsBlocked,
		Status:    types.Presence(r.Status),
	}
}

func (r groupRow) toGroup() types.Group {
	perms := r.Permissions
	if perms == nil {
		perms = []types.Permission{}
	}
	return types.Group{ID: r.ID, Name: r.Name, Description: r.Description, Permissions: perms}
}

func (r taskRow) toTask() types.Task {
	checklist := r.Checklist
	if checklist == nil {
		checklist = []types.ChecklistItem{}
	}
	return types.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      storage.CanonicalTaskStatus(r.Status),
		Priority:    storage.CanonicalPriority(r.Priority),
		AssignedTo:  r.AssignedTo,
		SiteID:      r.SedeID,
		LabID:       r.LabID,
		DeviceID:    r.ComputadorID,
		Location:    r.Location,
		DueDate:     r.DueDate,
		Checklist:   checklist,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func taskRowFrom(t types.Task) taskRow {
	checklist := t.Checklist
	if checklist == nil {
		checklist = []types.ChecklistItem{}
	}
	var deviceID *string
	if t.DeviceID != nil && *t.DeviceID != "" {
		deviceID = t.DeviceID
	}
	return taskRow{
		Title:        t.Title,
		Description:  t.Description,
		Status:       storage.HostedTaskStatus(t.Status),
		Priority:     storage.HostedPriority(t.Priority),
		AssignedTo:   nonZero(t.AssignedTo),
		SedeID:       nonZero(t.SiteID),
		LabID:        nonZero(t.LabID),
		ComputadorID: deviceID,
		Location:     t.Location,
		DueDate:      t.DueDate,
		Checklist:    checklist,
		CreatedBy:    nonZero(t.CreatedBy),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (r commentRow) toComment() types.Comment {
	c := types.Comment{ID: r.ID, TaskID: r.TaskID, Content: r.Content, CreatedAt: r.CreatedAt}
	if r.UserID != nil {
		c.UserID = *r.UserID
	}
	if r.Users != nil {
		c.AuthorName = r.Users.Name
		c.AuthorAvatar = r.Users.Avatar
	}
	return c
}

func (r messageRow) toMessage() types.Message {
	return types.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		Timestamp:  r.Timestamp,
		Read:       r.Read,
	}
}
