package local

import (
	"context"
	"errors"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"gorm.io/gorm"
)

func (s *Store) ListTasks(ctx context.Context) ([]types.Task, error) {
	var rows []taskModel
	if err := s.conn(ctx).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list tasks", err)
	}
	tasks := make([]types.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.toTask(s.logger))
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	var m taskModel
	err := s.conn(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("task", id)
	}
	if err != nil {
		return nil, types.Unavailable("get task", err)
	}
	t := m.toTask(s.logger)
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, task types.Task) (int64, error) {
	checklist := task.Checklist
	if checklist == nil {
		checklist = []types.ChecklistItem{}
	}
	m := taskModel{
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		AssignedTo:  task.AssignedTo,
		SiteID:      task.SiteID,
		LabID:       task.LabID,
		DeviceID:    task.DeviceID,
		Location:    task.Location,
		DueDate:     task.DueDate,
		Checklist:   encodeJSON(checklist),
		CreatedBy:   task.CreatedBy,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create task", "task", "", err)
	}
	return m.ID, nil
}

// nullable writes NULL for the zero value, which patches use to clear a
// reference.
func nullable[T comparable](v T) interface{} {
	var zero T
	if v == zero {
		return gorm.Expr("NULL")
	}
	return v
}

func (s *Store) UpdateTask(ctx context.Context, id int64, patch types.TaskPatch) error {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.Priority != nil {
		updates["priority"] = string(*patch.Priority)
	}
	if patch.AssignedTo != nil {
		updates["assigned_to"] = nullable(*patch.AssignedTo)
	}
	if patch.SiteID != nil {
		updates["site_id"] = nullable(*patch.SiteID)
	}
	if patch.LabID != nil {
		updates["lab_id"] = nullable(*patch.LabID)
	}
	if patch.DeviceID != nil {
		updates["device_id"] = nullable(*patch.DeviceID)
	}
	if patch.Location != nil {
		updates["location"] = *patch.Location
	}
	if patch.DueDate != nil {
		updates["due_date"] = *patch.DueDate
	}
	if patch.Checklist != nil {
		updates["checklist"] = encodeJSON(*patch.Checklist)
	}
	if !patch.UpdatedAt.IsZero() {
		updates["updated_at"] = patch.UpdatedAt
	}
	return s.update(ctx, &taskModel{}, "task", "", id, updates)
}

// DeleteTask removes the task together with its subtasks, comments and
// attachments.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		for _, child := range []interface{}{&subtaskModel{}, &commentModel{}, &attachmentModel{}} {
			if err := tx.Where("task_id = ?", id).Delete(child).Error; err != nil {
				return types.Unavailable("delete task", err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&taskModel{})
		return checkAffected(res, "delete task", "task", id)
	})
}

func (s *Store) ListSubtasks(ctx context.Context, taskID int64) ([]types.Subtask, error) {
	var rows []subtaskModel
	if err := s.conn(ctx).Where("task_id = ?", taskID).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list subtasks", err)
	}
	out := make([]types.Subtask, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Subtask{ID: r.ID, TaskID: r.TaskID, Title: r.Title, Done: r.Done})
	}
	return out, nil
}

func (s *Store) CreateSubtask(ctx context.Context, subtask types.Subtask) (int64, error) {
	m := subtaskModel{TaskID: subtask.TaskID, Title: subtask.Title, Done: subtask.Done}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create subtask", "subtask", "", err)
	}
	return m.ID, nil
}

func (s *Store) subtaskOwner(ctx context.Context, id int64) (int64, error) {
	var m subtaskModel
	err := s.conn(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, types.NotFound("subtask", id)
	}
	if err != nil {
		return 0, types.Unavailable("get subtask", err)
	}
	return m.TaskID, nil
}

func (s *Store) UpdateSubtask(ctx context.Context, id int64, patch types.SubtaskPatch) (int64, error) {
	taskID, err := s.subtaskOwner(ctx, id)
	if err != nil {
		return 0, err
	}
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Done != nil {
		updates["done"] = *patch.Done
	}
	if err := s.update(ctx, &subtaskModel{}, "subtask", "", id, updates); err != nil {
		return 0, err
	}
	return taskID, nil
}

func (s *Store) DeleteSubtask(ctx context.Context, id int64) (int64, error) {
	taskID, err := s.subtaskOwner(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.remove(ctx, &subtaskModel{}, "subtask", id); err != nil {
		return 0, err
	}
	return taskID, nil
}

type commentRow struct {
	commentModel
	AuthorName   string
	AuthorAvatar string
}

// ListComments returns the comments of a task, oldest first, with the
// author's current name and avatar.
func (s *Store) ListComments(ctx context.Context, taskID int64) ([]types.Comment, error) {
	var rows []commentRow
	err := s.conn(ctx).Table("task_comments").
		Select("task_comments.*, COALESCE(users.name, '') AS author_name, COALESCE(users.avatar, '') AS author_avatar").
		Joins("LEFT JOIN users ON users.id = task_comments.user_id").
		Where("task_comments.task_id = ?", taskID).
		Order("task_comments.created_at, task_comments.id").
		Scan(&rows).Error
	if err != nil {
		return nil, types.Unavailable("list comments", err)
	}
	out := make([]types.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Comment{
			ID:           r.ID,
			TaskID:       r.TaskID,
			UserID:       r.UserID,
			Content:      r.Content,
			AuthorName:   r.AuthorName,
			AuthorAvatar: r.AuthorAvatar,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) CreateComment(ctx context.Context, comment types.Comment) (int64, error) {
	m := commentModel{TaskID: comment.TaskID, UserID: comment.UserID, Content: comment.Content, CreatedAt: comment.CreatedAt}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create comment", "comment", "", err)
	}
	return m.ID, nil
}

func (s *Store) ListAttachments(ctx context.Context, taskID int64) ([]types.Attachment, error) {
	var rows []attachmentModel
	if err := s.conn(ctx).Where("task_id = ?", taskID).Order("id").Find(&rows).Error; err != nil {
		return nil, types.Unavailable("list attachments", err)
	}
	out := make([]types.Attachment, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Attachment{ID: r.ID, TaskID: r.TaskID, FileName: r.FileName, FileURL: r.FileURL, FileType: r.FileType})
	}
	return out, nil
}

func (s *Store) CreateAttachment(ctx context.Context, attachment types.Attachment) (int64, error) {
	m := attachmentModel{
		TaskID:   attachment.TaskID,
		FileName: attachment.FileName,
		FileURL:  attachment.FileURL,
		FileType: attachment.FileType,
	}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return 0, translate("create attachment", "attachment", "", err)
	}
	return m.ID, nil
}
