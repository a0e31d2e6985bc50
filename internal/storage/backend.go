package storage

import (
	"context"
	"errors"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// ErrUnsupported is returned by backends for operations they do not offer,
// e.g. Reset on a hosted backend.
var ErrUnsupported = errors.New("operation not supported by backend")

// Capabilities lists the canonical fields a backend actually stores. The
// repository strips everything else before writing.
type Capabilities struct {
	ForceChangePassword bool `json:"force_change_password"`
	PasswordHash        bool `json:"password_hash"`
	DeviceHistory       bool `json:"device_history"`
	Seeding             bool `json:"seeding"`
}

// Backend is implemented by every storage adapter. Methods return
// *types.NotFoundError for missing ids, *types.ValidationError for
// uniqueness violations and *types.UnavailableError for transport failures.
type Backend interface {
	Name() string
	Capabilities() Capabilities
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error

	ListSites(ctx context.Context) ([]types.Site, error)
	CreateSite(ctx context.Context, site types.Site) (int64, error)
	UpdateSite(ctx context.Context, id int64, patch types.SitePatch) error
	DeleteSite(ctx context.Context, id int64) error

	ListLabs(ctx context.Context) ([]types.Lab, error)
	CreateLab(ctx context.Context, lab types.Lab) (int64, error)
	UpdateLab(ctx context.Context, id int64, patch types.LabPatch) error
	DeleteLab(ctx context.Context, id int64) error

	ListDevices(ctx context.Context) ([]types.Device, error)
	GetDevice(ctx context.Context, id string) (*types.Device, error)
	CreateDevice(ctx context.Context, device types.Device) error
	UpdateDevice(ctx context.Context, id string, patch types.DevicePatch) error
	DeleteDevice(ctx context.Context, id string) error
	// AppendCheckRecord appends atomically and sets status and lastCheck
	// (the record date) in the same write.
	AppendCheckRecord(ctx context.Context, deviceID string, record types.CheckRecord, status types.DeviceStatus) error
	// AppendLogEntry assigns the entry id and returns it.
	AppendLogEntry(ctx context.Context, deviceID string, entry types.LogEntry) (int64, error)

	ListUsers(ctx context.Context) ([]types.User, error)
	GetUser(ctx context.Context, id int64) (*types.User, error)
	FindUserByEmail(ctx context.Context, email string) (*types.User, error)
	FindUserByAuthID(ctx context.Context, authID string) (*types.User, error)
	CreateUser(ctx context.Context, user types.User) (int64, error)
	UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error
	DeleteUser(ctx context.Context, id int64) error
	ClearGroupMembership(ctx context.Context, groupID int64) error

	ListGroups(ctx context.Context) ([]types.Group, error)
	GetGroup(ctx context.Context, id int64) (*types.Group, error)
	CreateGroup(ctx context.Context, group types.Group) (int64, error)
	UpdateGroup(ctx context.Context, id int64, patch types.GroupPatch) error
	DeleteGroup(ctx context.Context, id int64) error

	ListTasks(ctx context.Context) ([]types.Task, error)
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	CreateTask(ctx context.Context, task types.Task) (int64, error)
	UpdateTask(ctx context.Context, id int64, patch types.TaskPatch) error
	DeleteTask(ctx context.Context, id int64) error

	ListSubtasks(ctx context.Context, taskID int64) ([]types.Subtask, error)
	CreateSubtask(ctx context.Context, subtask types.Subtask) (int64, error)
	UpdateSubtask(ctx context.Context, id int64, patch types.SubtaskPatch) (taskID int64, err error)
	DeleteSubtask(ctx context.Context, id int64) (taskID int64, err error)

	ListComments(ctx context.Context, taskID int64) ([]types.Comment, error)
	CreateComment(ctx context.Context, comment types.Comment) (int64, error)

	ListAttachments(ctx context.Context, taskID int64) ([]types.Attachment, error)
	CreateAttachment(ctx context.Context, attachment types.Attachment) (int64, error)

	ListMessages(ctx context.Context) ([]types.Message, error)
	CreateMessage(ctx context.Context, message types.Message) (int64, error)
}

// ExternalAuthenticator is implemented by backends whose credentials live
// in an external identity service.
type ExternalAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*types.ExternalIdentity, error)
	SignUp(ctx context.Context, email, password, name, avatar string) (*types.ExternalIdentity, error)
}

// FileStore is implemented by backends that host attachment files
// themselves. It returns the public URL of the stored object.
type FileStore interface {
	UploadObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}
