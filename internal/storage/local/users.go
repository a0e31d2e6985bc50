package local

import (
	"context"
	"errors"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"gorm.io/gorm"
)

func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	var rows []userModel
	if err := s.conn(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list users", err)
	}
	users := make([]types.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (s *Store) findUser(ctx context.Context, op string, key any, query string, args ...interface{}) (*types.User, error) {
	var m userModel
	err := s.conn(ctx).Where(query, args...).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("user", key)
	}
	if err != nil {
		return nil, types.Unavailable(op, err)
	}
	u := m.toUser()
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	return s.findUser(ctx, "get user", id, "id = ?", id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.findUser(ctx, "find user by email", email, "LOWER(email) = LOWER(?)", email)
}

func (s *Store) FindUserByAuthID(ctx context.Context, authID string) (*types.User, error) {
	return s.findUser(ctx, "find user by auth id", authID, "auth_id = ?", authID)
}

func (s *Store) CreateUser(ctx context.Context, user types.User) (int64, error) {
	status := user.Status
	if status == "" {
		status = types.PresenceOffline
	}
	m := userModel{
		AuthID:              user.AuthID,
		Name:                user.Name,
		Email:               user.Email,
		PasswordHash:        user.PasswordHash,
		Avatar:              user.Avatar,
		Role:                string(user.Role),
		GroupID:             user.GroupID,
		IsBlocked:           user.IsBlocked,
		ForceChangePassword: user.ForceChangePassword,
		Status:              string(status),
	}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create user", "user", "email", err)
	}
	return m.ID, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Email != nil {
		updates["email"] = *patch.Email
	}
	if patch.Avatar != nil {
		updates["avatar"] = *patch.Avatar
	}
	if patch.Role != nil {
		updates["role"] = string(*patch.Role)
	}
	if patch.GroupID != nil {
		if *patch.GroupID == 0 {
			updates["group_id"] = gorm.Expr("NULL")
		} else {
			updates["group_id"] = *patch.GroupID
		}
	}
	if patch.IsBlocked != nil {
		updates["is_blocked"] = *patch.IsBlocked
	}
	if patch.ForceChangePassword != nil {
		updates["force_change_password"] = *patch.ForceChangePassword
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.AuthID != nil {
		updates["auth_id"] = *patch.AuthID
	}
	if patch.PasswordHash != nil {
		updates["password_hash"] = *patch.PasswordHash
	}
	return s.update(ctx, &userModel{}, "user", "email", id, updates)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.remove(ctx, &userModel{}, "user", id)
}

func (s *Store) ClearGroupMembership(ctx context.Context, groupID int64) error {
	err := s.conn(ctx).Model(&userModel{}).
		Where("group_id = ?", groupID).
		Update("group_id", gorm.Expr("NULL")).Error
	if err != nil {
		return types.Unavailable("clear group membership", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context) ([]types.Group, error) {
	var rows []groupModel
	if err := s.conn(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list groups", err)
	}
	groups := make([]types.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.toGroup(s.logger))
	}
	return groups, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*types.Group, error) {
	var m groupModel
	err := s.conn(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("group", id)
	}
	if err != nil {
		return nil, types.Unavailable("get group", err)
	}
	g := m.toGroup(s.logger)
	return &g, nil
}

func (s *Store) CreateGroup(ctx context.Context, group types.Group) (int64, error) {
	perms := group.Permissions
	if perms == nil {
		perms = []types.Permission{}
	}
	m := groupModel{Name: group.Name, Description: group.Description, Permissions: encodeJSON(perms)}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create group", "group", "name", err)
	}
	return m.ID, nil
}

func (s *Store) UpdateGroup(ctx context.Context, id int64, patch types.GroupPatch) error {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Permissions != nil {
		updates["permissions"] = encodeJSON(*patch.Permissions)
	}
	return s.update(ctx, &groupModel{}, "group", "name", id, updates)
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.remove(ctx, &groupModel{}, "group", id)
}
