package remote

import (
	"context"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
)

func (c *Client) ListSites(ctx context.Context) ([]types.Site, error) {
	var rows []siteRow
	if err := c.get(ctx, "list sites", storage.HostedSites, map[string]string{"order": "id"}, &rows); err != nil {
		return nil, err
	}
	sites := make([]types.Site, 0, len(rows))
	for _, r := range rows {
		sites = append(sites, types.Site{ID: r.ID, Name: r.Name})
	}
	return sites, nil
}

func (c *Client) CreateSite(ctx context.Context, site types.Site) (int64, error) {
	return c.insert(ctx, "create site", storage.HostedSites, "site", "name", siteRow{Name: site.Name})
}

func (c *Client) UpdateSite(ctx context.Context, id int64, patch types.SitePatch) error {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	return c.patch(ctx, "update site", storage.HostedSites, "site", "name", id, body)
}

func (c *Client) DeleteSite(ctx context.Context, id int64) error {
	return c.remove(ctx, "delete site", storage.HostedSites, "site", id)
}

func (c *Client) ListLabs(ctx context.Context) ([]types.Lab, error) {
	var rows []labRow
	if err := c.get(ctx, "list labs", storage.HostedLabs, map[string]string{"order": "id"}, &rows); err != nil {
		return nil, err
	}
	labs := make([]types.Lab, 0, len(rows))
	for _, r := range rows {
		labs = append(labs, types.Lab{ID: r.ID, Name: r.Name, SiteID: r.SedeID})
	}
	return labs, nil
}

func (c *Client) CreateLab(ctx context.Context, lab types.Lab) (int64, error) {
	return c.insert(ctx, "create lab", storage.HostedLabs, "lab", "name", labRow{Name: lab.Name, SedeID: lab.SiteID})
}

func (c *Client) UpdateLab(ctx context.Context, id int64, patch types.LabPatch) error {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.SiteID != nil {
		body["sedeid"] = *patch.SiteID
	}
	return c.patch(ctx, "update lab", storage.HostedLabs, "lab", "name", id, body)
}

func (c *Client) DeleteLab(ctx context.Context, id int64) error {
	return c.remove(ctx, "delete lab", storage.HostedLabs, "lab", id)
}

func (c *Client) ListUsers(ctx context.Context) ([]types.User, error) {
	var rows []userRow
	if err := c.get(ctx, "list users", storage.HostedUsers, map[string]string{"order": "id"}, &rows); err != nil {
		return nil, err
	}
	users := make([]types.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (c *Client) findUser(ctx context.Context, key string, query map[string]string, match func(userRow) bool) (*types.User, error) {
	var rows []userRow
	if err := c.get(ctx, "get user", storage.HostedUsers, query, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if match == nil || match(r) {
			u := r.toUser()
			return &u, nil
		}
	}
	return nil, types.NotFound("user", key)
}

func (c *Client) GetUser(ctx context.Context, id int64) (*types.User, error) {
	return c.findUser(ctx, eq(id), map[string]string{"id": eq(id)}, nil)
}

// FindUserByEmail matches case-insensitively. ilike treats "_" as a
// wildcard, so candidates are compared again locally.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return c.findUser(ctx, email, map[string]string{"email": "ilike." + email}, func(r userRow) bool {
		return strings.EqualFold(r.Email, email)
	})
}

func (c *Client) FindUserByAuthID(ctx context.Context, authID string) (*types.User, error) {
	if authID == "" {
		return nil, types.NotFound("user", authID)
	}
	return c.findUser(ctx, authID, map[string]string{"auth_id": eq(authID)}, nil)
}

func (c *Client) CreateUser(ctx context.Context, user types.User) (int64, error) {
	status := user.Status
	if status == "" {
		status = types.PresenceOffline
	}
	return c.insert(ctx, "create user", storage.HostedUsers, "user", "email", userRow{
		AuthID:    user.AuthID,
		Name:      user.Name,
		Email:     user.Email,
		Avatar:    user.Avatar,
		Role:      string(user.Role),
		GroupID:   nonZero(user.GroupID),
		IsBlocked: user.IsBlocked,
		Status:    string(status),
	})
}

func (c *Client) UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error {
	body := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			body[col] = *v
		}
	}
	set("name", patch.Name)
	set("email", patch.Email)
	set("avatar", patch.Avatar)
	set("auth_id", patch.AuthID)
	if patch.Role != nil {
		body["role"] = string(*patch.Role)
	}
	if patch.GroupID != nil {
		body["group_id"] = nonZero(patch.GroupID)
	}
	if patch.IsBlocked != nil {
		body["is_blocked"] = *patch.IsBlocked
	}
	if patch.Status != nil {
		body["status"] = string(*patch.Status)
	}
	return c.patch(ctx, "update user", storage.HostedUsers, "user", "email", id, body)
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.remove(ctx, "delete user", storage.HostedUsers, "user", id)
}

func (c *Client) ClearGroupMembership(ctx context.Context, groupID int64) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("group_id", eq(groupID)).
		SetBody(map[string]any{"group_id": nil}).
		Patch(tablePath(storage.HostedUsers))
	return c.check("clear group membership", "user", "", resp, err)
}

func (c *Client) ListGroups(ctx context.Context) ([]types.Group, error) {
	var rows []groupRow
	if err := c.get(ctx, "list groups", storage.HostedGroups, map[string]string{"order": "id"}, &rows); err != nil {
		return nil, err
	}
	groups := make([]types.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.toGroup())
	}
	return groups, nil
}

func (c *Client) GetGroup(ctx context.Context, id int64) (*types.Group, error) {
	var rows []groupRow
	if err := c.get(ctx, "get group", storage.HostedGroups, map[string]string{"id": eq(id)}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.NotFound("group", id)
	}
	g := rows[0].toGroup()
	return &g, nil
}

func (c *Client) CreateGroup(ctx context.Context, group types.Group) (int64, error) {
	perms := group.Permissions
	if perms == nil {
		perms = []types.Permission{}
	}
	return c.insert(ctx, "create group", storage.HostedGroups, "group", "name",
		groupRow{Name: group.Name, Description: group.Description, Permissions: perms})
}

func (c *Client) UpdateGroup(ctx context.Context, id int64, patch types.GroupPatch) error {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Permissions != nil {
		body["permissions"] = *patch.Permissions
	}
	return c.patch(ctx, "update group", storage.HostedGroups, "group", "name", id, body)
}

func (c *Client) DeleteGroup(ctx context.Context, id int64) error {
	return c.remove(ctx, "delete group", storage.HostedGroups, "group", id)
}

func (c *Client) ListTasks(ctx context.Context) ([]types.Task, error) {
	var rows []taskRow
	if err := c.get(ctx, "list tasks", storage.HostedTasks, map[string]string{"order": "created_at.desc"}, &rows); err != nil {
		return nil, err
	}
	tasks := make([]types.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask())
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	var rows []taskRow
	if err := c.get(ctx, "get task", storage.HostedTasks, map[string]string{"id": eq(id)}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.NotFound("task", id)
	}
	t := rows[0].toTask()
	return &t, nil
}

func (c *Client) CreateTask(ctx context.Context, task types.Task) (int64, error) {
	return c.insert(ctx, "create task", storage.HostedTasks, "task", "", taskRowFrom(task))
}

func (c *Client) UpdateTask(ctx context.Context, id int64, patch types.TaskPatch) error {
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Status != nil {
		body["status"] = storage.HostedTaskStatus(*patch.Status)
	}
	if patch.Priority != nil {
		body["priority"] = storage.HostedPriority(*patch.Priority)
	}
	if patch.AssignedTo != nil {
		body["assigned_to"] = nonZero(patch.AssignedTo)
	}
	if patch.SiteID != nil {
		body["sede_id"] = nonZero(patch.SiteID)
	}
	if patch.LabID != nil {
		body["lab_id"] = nonZero(patch.LabID)
	}
	if patch.DeviceID != nil {
		if *patch.DeviceID == "" {
			body["computador_id"] = nil
		} else {
			body["computador_id"] = *patch.DeviceID
		}
	}
	if patch.Location != nil {
		body["location"] = *patch.Location
	}
	if patch.DueDate != nil {
		body["due_date"] = *patch.DueDate
	}
	if patch.Checklist != nil {
		body["checklist"] = *patch.Checklist
	}
	if !patch.UpdatedAt.IsZero() {
		body["updated_at"] = patch.UpdatedAt
	}
	return c.patch(ctx, "update task", storage.HostedTasks, "task", "", id, body)
}

// DeleteTask removes the children first; the hosted schema may not
// cascade.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	for _, table := range []string{storage.HostedSubtasks, storage.HostedComments, storage.HostedAttachments} {
		if err := c.deleteWhere(ctx, "delete task", table, map[string]string{"task_id": eq(id)}); err != nil {
			return err
		}
	}
	return c.remove(ctx, "delete task", storage.HostedTasks, "task", id)
}

func (c *Client) ListSubtasks(ctx context.Context, taskID int64) ([]types.Subtask, error) {
	var rows []subtaskRow
	query := map[string]string{"task_id": eq(taskID), "order": "id"}
	if err := c.get(ctx, "list subtasks", storage.HostedSubtasks, query, &rows); err != nil {
		return nil, err
	}
	subtasks := make([]types.Subtask, 0, len(rows))
	for _, r := range rows {
		subtasks = append(subtasks, types.Subtask{ID: r.ID, TaskID: r.TaskID, Title: r.Title, Done: r.Done})
	}
	return subtasks, nil
}

func (c *Client) CreateSubtask(ctx context.Context, subtask types.Subtask) (int64, error) {
	return c.insert(ctx, "create subtask", storage.HostedSubtasks, "subtask", "",
		subtaskRow{TaskID: subtask.TaskID, Title: subtask.Title, Done: subtask.Done})
}

func (c *Client) subtaskOwner(ctx context.Context, id int64) (int64, error) {
	var rows []subtaskRow
	if err := c.get(ctx, "get subtask", storage.HostedSubtasks, map[string]string{"id": eq(id)}, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, types.NotFound("subtask", id)
	}
	return rows[0].TaskID, nil
}

func (c *Client) UpdateSubtask(ctx context.Context, id int64, patch types.SubtaskPatch) (int64, error) {
	taskID, err := c.subtaskOwner(ctx, id)
	if err != nil {
		return 0, err
	}
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Done != nil {
		body["done"] = *patch.Done
	}
	if err := c.patch(ctx, "update subtask", storage.HostedSubtasks, "subtask", "", id, body); err != nil {
		return 0, err
	}
	return taskID, nil
}

func (c *Client) DeleteSubtask(ctx context.Context, id int64) (int64, error) {
	taskID, err := c.subtaskOwner(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := c.remove(ctx, "delete subtask", storage.HostedSubtasks, "subtask", id); err != nil {
		return 0, err
	}
	return taskID, nil
}

func (c *Client) ListComments(ctx context.Context, taskID int64) ([]types.Comment, error) {
	var rows []commentRow
	query := map[string]string{
		"task_id": eq(taskID),
		"select":  "*,users(name,avatar)",
		"order":   "created_at,id",
	}
	if err := c.get(ctx, "list comments", storage.HostedComments, query, &rows); err != nil {
		return nil, err
	}
	comments := make([]types.Comment, 0, len(rows))
	for _, r := range rows {
		comments = append(comments, r.toComment())
	}
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, comment types.Comment) (int64, error) {
	return c.insert(ctx, "create comment", storage.HostedComments, "comment", "", commentRow{
		TaskID:    comment.TaskID,
		UserID:    nonZero(&comment.UserID),
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	})
}

func (c *Client) ListAttachments(ctx context.Context, taskID int64) ([]types.Attachment, error) {
	var rows []attachmentRow
	query := map[string]string{"task_id": eq(taskID), "order": "id"}
	if err := c.get(ctx, "list attachments", storage.HostedAttachments, query, &rows); err != nil {
		return nil, err
	}
	attachments := make([]types.Attachment, 0, len(rows))
	for _, r := range rows {
		attachments = append(attachments, types.Attachment{
			ID: r.ID, TaskID: r.TaskID, FileName: r.FileName, FileURL: r.FileURL, FileType: r.FileType,
		})
	}
	return attachments, nil
}

func (c *Client) CreateAttachment(ctx context.Context, a types.Attachment) (int64, error) {
	return c.insert(ctx, "create attachment", storage.HostedAttachments, "attachment", "", attachmentRow{
		TaskID: a.TaskID, FileName: a.FileName, FileURL: a.FileURL, FileType: a.FileType,
	})
}

func (c *Client) ListMessages(ctx context.Context) ([]types.Message, error) {
	var rows []messageRow
	if err := c.get(ctx, "list messages", storage.HostedMessages, map[string]string{"order": "timestamp,id"}, &rows); err != nil {
		return nil, err
	}
	messages := make([]types.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toMessage())
	}
	return messages, nil
}

func (c *Client) CreateMessage(ctx context.Context, m types.Message) (int64, error) {
	return c.insert(ctx, "create message", storage.HostedMessages, "message", "", messageRow{
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Read:       m.Read,
	})
}
