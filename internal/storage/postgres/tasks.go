package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
)

const taskColumns = `id, title, description, status, priority, assigned_to, sede_id, lab_id, computador_id,
	location, due_date, checklist, created_by, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (types.Task, error) {
	var t types.Task
	var status, priority string
	var assignedTo, siteID, labID, createdBy sql.NullInt64
	var deviceID sql.NullString
	var checklist []byte
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &assignedTo, &siteID, &labID, &deviceID,
		&t.Location, &t.DueDate, &checklist, &createdBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.Status = storage.CanonicalTaskStatus(status)
	t.Priority = storage.CanonicalPriority(priority)
	t.AssignedTo = intPtr(assignedTo)
	t.SiteID = intPtr(siteID)
	t.LabID = intPtr(labID)
	t.DeviceID = stringPtr(deviceID)
	t.CreatedBy = intPtr(createdBy)
	t.Checklist = []types.ChecklistItem{}
	if len(checklist) > 0 {
		if err := json.Unmarshal(checklist, &t.Checklist); err != nil {
			return t, err
		}
	}
	return t, nil
}

func checklistJSON(items []types.ChecklistItem) string {
	if items == nil {
		items = []types.ChecklistItem{}
	}
	raw, _ := json.Marshal(items)
	return string(raw)
}

func (s *Store) ListTasks(ctx context.Context) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, types.Unavailable("list tasks", err)
	}
	defer rows.Close()

	tasks := make([]types.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, types.Unavailable("list tasks", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list tasks", err)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NotFound("task", id)
	}
	if err != nil {
		return nil, types.Unavailable("get task", err)
	}
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, task types.Task) (int64, error) {
	return s.insert(ctx, "create task", "task", "", `
		INSERT INTO tasks (title, description, status, priority, assigned_to, sede_id, lab_id, computador_id,
			location, due_date, checklist, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, task.Title, task.Description, storage.HostedTaskStatus(task.Status), storage.HostedPriority(task.Priority),
		nullInt(task.AssignedTo), nullInt(task.SiteID), nullInt(task.LabID), nullString(task.DeviceID),
		task.Location, task.DueDate, checklistJSON(task.Checklist), nullInt(task.CreatedBy), task.CreatedAt, task.UpdatedAt)
}

func (s *Store) UpdateTask(ctx context.Context, id int64, patch types.TaskPatch) error {
	var cols []column
	if patch.Title != nil {
		cols = append(cols, column{"title", *patch.Title})
	}
	if patch.Description != nil {
		cols = append(cols, column{"description", *patch.Description})
	}
	if patch.Status != nil {
		cols = append(cols, column{"status", storage.HostedTaskStatus(*patch.Status)})
	}
	if patch.Priority != nil {
		cols = append(cols, column{"priority", storage.HostedPriority(*patch.Priority)})
	}
	if patch.AssignedTo != nil {
		cols = append(cols, column{"assigned_to", nullInt(patch.AssignedTo)})
	}
	if patch.SiteID != nil {
		cols = append(cols, column{"sede_id", nullInt(patch.SiteID)})
	}
	if patch.LabID != nil {
		cols = append(cols, column{"lab_id", nullInt(patch.LabID)})
	}
	if patch.DeviceID != nil {
		cols = append(cols, column{"computador_id", nullString(patch.DeviceID)})
	}
	if patch.Location != nil {
		cols = append(cols, column{"location", *patch.Location})
	}
	if patch.DueDate != nil {
		cols = append(cols, column{"due_date", *patch.DueDate})
	}
	if patch.Checklist != nil {
		cols = append(cols, column{"checklist", checklistJSON(*patch.Checklist)})
	}
	if !patch.UpdatedAt.IsZero() {
		cols = append(cols, column{"updated_at", patch.UpdatedAt})
	}
	return s.update(ctx, s.db, "tasks", "task", "", id, cols)
}

// DeleteTask relies on ON DELETE CASCADE for the task children.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.remove(ctx, "tasks", "task", id)
}

func (s *Store) ListSubtasks(ctx context.Context, taskID int64) ([]types.Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, title, done FROM subtasks WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, types.Unavailable("list subtasks", err)
	}
	defer rows.Close()

	subtasks := make([]types.Subtask, 0)
	for rows.Next() {
		var st types.Subtask
		if err := rows.Scan(&st.ID, &st.TaskID, &st.Title, &st.Done); err != nil {
			return nil, types.Unavailable("list subtasks", err)
		}
		subtasks = append(subtasks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list subtasks", err)
	}
	return subtasks, nil
}

func (s *Store) CreateSubtask(ctx context.Context, subtask types.Subtask) (int64, error) {
	return s.insert(ctx, "create subtask", "subtask", "",
		`INSERT INTO subtasks (task_id, title, done) VALUES ($1, $2, $3) RETURNING id`,
		subtask.TaskID, subtask.Title, subtask.Done)
}

func (s *Store) subtaskOwner(ctx context.Context, id int64) (int64, error) {
	var taskID int64
	err := s.db.QueryRowContext(ctx, `SELECT task_id FROM subtasks WHERE id = $1`, id).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, types.NotFound("subtask", id)
	}
	if err != nil {
		return 0, types.Unavailable("get subtask", err)
	}
	return taskID, nil
}

func (s *Store) UpdateSubtask(ctx context.Context, id int64, patch types.SubtaskPatch) (int64, error) {
	taskID, err := s.subtaskOwner(ctx, id)
	if err != nil {
		return 0, err
	}
	var cols []column
	if patch.Title != nil {
		cols = append(cols, column{"title", *patch.Title})
	}
	if patch.Done != nil {
		cols = append(cols, column{"done", *patch.Done})
	}
	if err := s.update(ctx, s.db, "subtasks", "subtask", "", id, cols); err != nil {
		return 0, err
	}
	return taskID, nil
}

func (s *Store) DeleteSubtask(ctx context.Context, id int64) (int64, error) {
	taskID, err := s.subtaskOwner(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.remove(ctx, "subtasks", "subtask", id); err != nil {
		return 0, err
	}
	return taskID, nil
}

func (s *Store) ListComments(ctx context.Context, taskID int64) ([]types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.task_id, COALESCE(c.user_id, 0), c.content, c.created_at,
			COALESCE(u.name, ''), COALESCE(u.avatar, '')
		FROM task_comments c
		LEFT JOIN users u ON u.id = c.user_id
		WHERE c.task_id = $1
		ORDER BY c.created_at, c.id
	`, taskID)
	if err != nil {
		return nil, types.Unavailable("list comments", err)
	}
	defer rows.Close()

	comments := make([]types.Comment, 0)
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.UserID, &c.Content, &c.CreatedAt, &c.AuthorName, &c.AuthorAvatar); err != nil {
			return nil, types.Unavailable("list comments", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list comments", err)
	}
	return comments, nil
}

func (s *Store) CreateComment(ctx context.Context, comment types.Comment) (int64, error) {
	return s.insert(ctx, "create comment", "comment", "",
		`INSERT INTO task_comments (task_id, user_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		comment.TaskID, nullInt(&comment.UserID), comment.Content, comment.CreatedAt)
}

func (s *Store) ListAttachments(ctx context.Context, taskID int64) ([]types.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, file_name, file_url, file_type FROM task_attachments WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, types.Unavailable("list attachments", err)
	}
	defer rows.Close()

	attachments := make([]types.Attachment, 0)
	for rows.Next() {
		var a types.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.FileName, &a.FileURL, &a.FileType); err != nil {
			return nil, types.Unavailable("list attachments", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Unavailable("list attachments", err)
	}
	return attachments, nil
}

func (s *Store) CreateAttachment(ctx context.Context, attachment types.Attachment) (int64, error) {
	return s.insert(ctx, "create attachment", "attachment", "",
		`INSERT INTO task_attachments (task_id, file_name, file_url, file_type) VALUES ($1, $2, $3, $4) RETURNING id`,
		attachment.TaskID, attachment.FileName, attachment.FileURL, attachment.FileType)
}
