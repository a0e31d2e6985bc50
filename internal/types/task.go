package types

import (
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskDone, TaskCancelled:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityNormal   TaskPriority = "normal"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
	PriorityUrgent   TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityCritical, PriorityUrgent:
		return true
	}
	return false
}

type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is a kanban card. Scope fields are optional.
type Task struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      TaskStatus      `json:"status"`
	Priority    TaskPriority    `json:"priority"`
	AssignedTo  *int64          `json:"assignedTo,omitempty"`
	SiteID      *int64          `json:"siteId,omitempty"`
	LabID       *int64          `json:"labId,omitempty"`
	DeviceID    *string         `json:"deviceId,omitempty"`
	Location    string          `json:"location,omitempty"`
	DueDate     string          `json:"dueDate,omitempty"`
	Checklist   []ChecklistItem `json:"checklist"`
	CreatedBy   *int64          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TaskPatch is a merge patch. AssignedTo pointing at 0 unassigns the task.
type TaskPatch struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *TaskStatus      `json:"status,omitempty"`
	Priority    *TaskPriority    `json:"priority,omitempty"`
	AssignedTo  *int64           `json:"assignedTo,omitempty"`
	SiteID      *int64           `json:"siteId,omitempty"`
	LabID       *int64           `json:"labId,omitempty"`
	DeviceID    *string          `json:"deviceId,omitempty"`
	Location    *string          `json:"location,omitempty"`
	DueDate     *string          `json:"dueDate,omitempty"`
	Checklist   *[]ChecklistItem `json:"checklist,omitempty"`

	// UpdatedAt is stamped by the repository on every mutation.
	UpdatedAt time.Time `json:"-"`
}

type Subtask struct {
	ID     int64  `json:"id"`
	TaskID int64  `json:"taskId"`
	Title  string `json:"title"`
	Done   bool   `json:"done"`
}

type SubtaskPatch struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

type Comment struct {
	ID           int64     `json:"id"`
	TaskID       int64     `json:"taskId"`
	UserID       int64     `json:"userId"`
	Content      string    `json:"content"`
	AuthorName   string    `json:"authorName,omitempty"`
	AuthorAvatar string    `json:"authorAvatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Attachment struct {
	ID       int64  `json:"id"`
	TaskID   int64  `json:"taskId"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
}

var taskStatusAliases = map[string]TaskStatus{
	"pendente":  TaskPending,
	"progresso": TaskInProgress,
	"concluido": TaskDone,
	"cancelado": TaskCancelled,
}

// ParseTaskStatus accepts the canonical value or the Portuguese board
// column name.
func ParseTaskStatus(v string) (TaskStatus, bool) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(v)))
	if s.Valid() {
		return s, true
	}
	if alias, ok := taskStatusAliases[string(s)]; ok {
		return alias, true
	}
	return "", false
}

var priorityAliases = map[string]TaskPriority{
	"alta":    PriorityHigh,
	"critica": PriorityCritical,
	"urgente": PriorityUrgent,
}

func ParseTaskPriority(v string) (TaskPriority, bool) {
	p := TaskPriority(strings.ToLower(strings.TrimSpace(v)))
	if p.Valid() {
		return p, true
	}
	if alias, ok := priorityAliases[string(p)]; ok {
		return alias, true
	}
	return "", false
}
