package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// ListUsers never exposes password hashes.
func (r *Repository) ListUsers(ctx context.Context) ([]types.User, error) {
	users, err := r.backend.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*types.User, error) {
	return r.backend.GetUser(ctx, id)
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return r.backend.FindUserByEmail(ctx, normalizeEmail(email))
}

func (r *Repository) FindUserByAuthID(ctx context.Context, authID string) (*types.User, error) {
	return r.backend.FindUserByAuthID(ctx, authID)
}

// CreateUser stores a new user. A non-empty password is hashed first; a
// duplicate email fails with a duplicate ValidationError.
func (r *Repository) CreateUser(ctx context.Context, user types.User, password string) (int64, error) {
	user.Email = normalizeEmail(user.Email)
	if user.Email == "" {
		return 0, types.Missing("user", "email")
	}
	user.Name = strings.TrimSpace(user.Name)
	if user.Name == "" {
		user.Name = strings.SplitN(user.Email, "@", 2)[0]
	}
	if user.Role == "" {
		user.Role = types.RoleUser
	}
	if !user.Role.Valid() {
		return 0, types.Invalid("user", "role")
	}
	if user.Status == "" {
		user.Status = types.PresenceOffline
	}
	if !user.Status.Valid() {
		return 0, types.Invalid("user", "status")
	}
	if user.GroupID != nil && *user.GroupID == 0 {
		user.GroupID = nil
	}
	if err := r.checkGroup(ctx, user.GroupID); err != nil {
		return 0, err
	}

	// Uniqueness is checked here too so backends without a unique index
	// still reject duplicates.
	if _, err := r.backend.FindUserByEmail(ctx, user.Email); err == nil {
		return 0, types.Duplicate("user", "email")
	} else if !types.IsNotFound(err) {
		return 0, err
	}

	user.PasswordHash = ""
	if password != "" && r.caps.PasswordHash {
		hash, err := r.hash(password)
		if err != nil {
			return 0, err
		}
		user.PasswordHash = hash
	}
	if !r.caps.ForceChangePassword {
		user.ForceChangePassword = false
	}

	id, err := r.backend.CreateUser(ctx, user)
	if err != nil {
		return 0, err
	}

	r.logger.Info("User created", zap.Int64("user_id", id), zap.String("email", user.Email))
	r.bus.Invalidate(types.TableUsers)
	return id, nil
}

// UpdateUser applies a merge patch. A new plaintext password is hashed and
// never reaches storage as such.
func (r *Repository) UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error {
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email == "" {
			return types.Missing("user", "email")
		}
		if existing, err := r.backend.FindUserByEmail(ctx, email); err == nil && existing.ID != id {
			return types.Duplicate("user", "email")
		}
		patch.Email = &email
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return types.Invalid("user", "role")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return types.Invalid("user", "status")
	}
	if patch.GroupID != nil && *patch.GroupID != 0 {
		if err := r.checkGroup(ctx, patch.GroupID); err != nil {
			return err
		}
	}

	if patch.Password != nil {
		if *patch.Password == "" {
			return types.Missing("user", "password")
		}
		if r.caps.PasswordHash {
			hash, err := r.hash(*patch.Password)
			if err != nil {
				return err
			}
			patch.PasswordHash = &hash
		}
		patch.Password = nil
	}
	if !r.caps.PasswordHash {
		patch.PasswordHash = nil
	}
	if !r.caps.ForceChangePassword {
		patch.ForceChangePassword = nil
	}

	if err := r.backend.UpdateUser(ctx, id, patch); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableUsers)
	return nil
}

func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	if err := r.backend.DeleteUser(ctx, id); err != nil {
		return err
	}
	r.logger.Info("User deleted", zap.Int64("user_id", id))
	r.bus.Invalidate(types.TableUsers)
	return nil
}

// SetPresence updates the chat presence of a user.
func (r *Repository) SetPresence(ctx context.Context, id int64, presence types.Presence) error {
	return r.UpdateUser(ctx, id, types.UserPatch{Status: &presence})
}

func (r *Repository) ListGroups(ctx context.Context) ([]types.Group, error) {
	return r.backend.ListGroups(ctx)
}

func (r *Repository) GetGroup(ctx context.Context, id int64) (*types.Group, error) {
	return r.backend.GetGroup(ctx, id)
}

func (r *Repository) CreateGroup(ctx context.Context, group types.Group) (int64, error) {
	group.Name = strings.TrimSpace(group.Name)
	if group.Name == "" {
		return 0, types.Missing("group", "name")
	}
	if err := validPermissions(group.Permissions); err != nil {
		return 0, err
	}
	if group.Permissions == nil {
		group.Permissions = []types.Permission{}
	}

	id, err := r.backend.CreateGroup(ctx, group)
	if err != nil {
		return 0, err
	}
	r.bus.Invalidate(types.TableGroups)
	return id, nil
}

func (r *Repository) UpdateGroup(ctx context.Context, id int64, patch types.GroupPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return types.Missing("group", "name")
		}
		patch.Name = &name
	}
	if patch.Permissions != nil {
		if err := validPermissions(*patch.Permissions); err != nil {
			return err
		}
	}
	if err := r.backend.UpdateGroup(ctx, id, patch); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableGroups)
	return nil
}

// DeleteGroup detaches every member before deleting the group. Users are
// never deleted with it.
func (r *Repository) DeleteGroup(ctx context.Context, id int64) error {
	if err := r.backend.ClearGroupMembership(ctx, id); err != nil {
		return fmt.Errorf("failed to clear group membership: %w", err)
	}
	r.bus.Invalidate(types.TableUsers)

	if err := r.backend.DeleteGroup(ctx, id); err != nil {
		return err
	}
	r.logger.Info("Group deleted", zap.Int64("group_id", id))
	r.bus.Invalidate(types.TableGroups)
	return nil
}

func (r *Repository) checkGroup(ctx context.Context, groupID *int64) error {
	if groupID == nil || *groupID == 0 {
		return nil
	}
	if _, err := r.backend.GetGroup(ctx, *groupID); err != nil {
		if types.IsNotFound(err) {
			return types.Invalid("user", "groupId")
		}
		return err
	}
	return nil
}

func (r *Repository) hash(password string) (string, error) {
	if r.hasher == nil {
		return "", fmt.Errorf("no password hasher configured")
	}
	hash, err := r.hasher.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func validPermissions(perms []types.Permission) error {
	for _, p := range perms {
		if !p.Valid() {
			return types.Invalid("group", "permissions")
		}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
