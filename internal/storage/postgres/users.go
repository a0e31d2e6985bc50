package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

const userColumns = `id, auth_id, name, email, password_hash, avatar, role, group_id, is_blocked, status`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var u types.User
	var role, status string
	var groupID sql.NullInt64
	err := row.Scan(&u.ID, &u.AuthID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &role, &groupID, &u.IsBlocked, &status)
	u.Role = types.Role(role)
	u.Status = types.Presence(status)
	u.GroupID = intPtr(groupID)
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, types.Unavailable("list users", err)
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, types.Unavailable("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list users", err)
	}
	return users, nil
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*types.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("user", arg)
	}
	if err != nil {
		return nil, types.Unavailable("get user", err)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	return s.findUser(ctx, "id = $1", id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.findUser(ctx, "LOWER(email) = LOWER($1)", email)
}

func (s *Store) FindUserByAuthID(ctx context.Context, authID string) (*types.User, error) {
	if authID == "" {
		return nil, types.NotFound("user", authID)
	}
	return s.findUser(ctx, "auth_id = $1", authID)
}

func (s *Store) CreateUser(ctx context.Context, user types.User) (int64, error) {
	status := user.Status
	if status == "" {
		status = types.PresenceOffline
	}
	return s.insert(ctx, "create user", "user", "email", `
		INSERT INTO users (auth_id, name, email, password_hash, avatar, role, group_id, is_blocked, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, user.AuthID, user.Name, user.Email, user.PasswordHash, user.Avatar, string(user.Role),
		nullInt(user.GroupID), user.IsBlocked, string(status))
}

func (s *Store) UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error {
	var cols []column
	add := func(name string, v *string) {
		if v != nil {
			cols = append(cols, column{name, *v})
		}
	}
	add("name", patch.Name)
	add("email", patch.Email)
	add("avatar", patch.Avatar)
	add("auth_id", patch.AuthID)
	add("password_hash", patch.PasswordHash)
	if patch.Role != nil {
		cols = append(cols, column{"role", string(*patch.Role)})
	}
	if patch.GroupID != nil {
		cols = append(cols, column{"group_id", nullInt(patch.GroupID)})
	}
	if patch.IsBlocked != nil {
		cols = append(cols, column{"is_blocked", *patch.IsBlocked})
	}
	if patch.Status != nil {
		cols = append(cols, column{"status", string(*patch.Status)})
	}
	return s.update(ctx, s.db, "users", "user", "email", id, cols)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.remove(ctx, "users", "user", id)
}

func (s *Store) ClearGroupMembership(ctx context.Context, groupID int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET group_id = NULL WHERE group_id = $1`, groupID); err != nil {
		return types.Unavailable("clear group membership", err)
	}
	return nil
}

func scanGroup(row interface{ Scan(...any) error }) (types.Group, error) {
	var g types.Group
	var perms []byte
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &perms); err != nil {
		return g, err
	}
	g.Permissions = []types.Permission{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &g.Permissions); err != nil {
			return g, err
		}
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]types.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, permissions FROM groups ORDER BY id`)
	if err != nil {
		return nil, types.Unavailable("list groups", err)
	}
	defer rows.Close()

	groups := make([]types.Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, types.Unavailable("list groups", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list groups", err)
	}
	return groups, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*types.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx, `SELECT id, name, description, permissions FROM groups WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("group", id)
	}
	if err != nil {
		return nil, types.Unavailable("get group", err)
	}
	return &g, nil
}

func permissionsJSON(perms []types.Permission) string {
	if perms == nil {
		perms = []types.Permission{}
	}
	raw, _ := json.Marshal(perms)
	return string(raw)
}

func (s *Store) CreateGroup(ctx context.Context, group types.Group) (int64, error) {
	return s.insert(ctx, "create group", "group", "name",
		`INSERT INTO groups (name, description, permissions) VALUES ($1, $2, $3) RETURNING id`,
		group.Name, group.Description, permissionsJSON(group.Permissions))
}

func (s *Store) UpdateGroup(ctx context.Context, id int64, patch types.GroupPatch) error {
	var cols []column
	if patch.Name != nil {
		cols = append(cols, column{"name", *patch.Name})
	}
	if patch.Description != nil {
		cols = append(cols, column{"description", *patch.Description})
	}
	if patch.Permissions != nil {
		cols = append(cols, column{"permissions", permissionsJSON(*patch.Permissions)})
	}
	return s.update(ctx, s.db, "groups", "group", "name", id, cols)
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.remove(ctx, "groups", "group", id)
}
