package types

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceBusy    Presence = "busy"
	PresenceOffline Presence = "offline"
)

func (p Presence) Valid() bool {
	switch p {
	case PresenceOnline, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

type Permission string

const (
	PermManageUsers     Permission = "manage_users"
	PermManageGroups    Permission = "manage_groups"
	PermManageStructure Permission = "manage_structure"
	PermManageInventory Permission = "manage_inventory"
	PermManageTasks     Permission = "manage_tasks"
	PermCreateTasks     Permission = "create_tasks"
	PermViewReports     Permission = "view_reports"
	PermViewOnly        Permission = "view_only"
)

// AllPermissions is granted to the admin role regardless of group.
var AllPermissions = []Permission{
	PermManageUsers,
	PermManageGroups,
	PermManageStructure,
	PermManageInventory,
	PermManageTasks,
	PermCreateTasks,
	PermViewReports,
	PermViewOnly,
}

func (p Permission) Valid() bool {
	for _, known := range AllPermissions {
		if p == known {
			return true
		}
	}
	return false
}

type User struct {
	ID                  int64    `json:"id"`
	AuthID              string   `json:"authId,omitempty"`
	Name                string   `json:"name"`
	Email               string   `json:"email"`
	PasswordHash        string   `json:"-"` // Never expose in JSON
	Avatar              string   `json:"avatar,omitempty"`
	Role                Role     `json:"role"`
	GroupID             *int64   `json:"groupId,omitempty"`
	IsBlocked           bool     `json:"isBlocked"`
	ForceChangePassword bool     `json:"forceChangePassword"`
	Status              Presence `json:"status,omitempty"`
}

// UserPatch is a merge patch. GroupID pointing at 0 clears the membership.
// Password carries a new plaintext password from callers; the repository
// replaces it with PasswordHash before the patch reaches storage.
type UserPatch struct {
	Name                *string   `json:"name,omitempty"`
	Email               *string   `json:"email,omitempty"`
	Password            *string   `json:"password,omitempty"`
	Avatar              *string   `json:"avatar,omitempty"`
	Role                *Role     `json:"role,omitempty"`
	GroupID             *int64    `json:"groupId,omitempty"`
	IsBlocked           *bool     `json:"isBlocked,omitempty"`
	ForceChangePassword *bool     `json:"forceChangePassword,omitempty"`
	Status              *Presence `json:"status,omitempty"`
	AuthID              *string   `json:"-"`
	PasswordHash        *string   `json:"-"`
}

func (p UserPatch) Empty() bool {
	return p == UserPatch{}
}

type Group struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
}

func (g Group) Has(perm Permission) bool {
	for _, p := range g.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type GroupPatch struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Permissions *[]Permission `json:"permissions,omitempty"`
}

// ExternalIdentity is what an external identity provider returns after a
// successful sign-in.
type ExternalIdentity struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}
