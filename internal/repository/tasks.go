package repository

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (r *Repository) ListTasks(ctx context.Context) ([]types.Task, error) {
	return r.backend.ListTasks(ctx)
}

func (r *Repository) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	return r.backend.GetTask(ctx, id)
}

func (r *Repository) CreateTask(ctx context.Context, task types.Task, creator *types.User) (int64, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return 0, types.Missing("task", "title")
	}

	if task.Status == "" {
		task.Status = types.TaskPending
	} else if s, ok := types.ParseTaskStatus(string(task.Status)); ok {
		task.Status = s
	} else {
		return 0, types.Invalid("task", "status")
	}

	if task.Priority == "" {
		task.Priority = types.PriorityNormal
	} else if p, ok := types.ParseTaskPriority(string(task.Priority)); ok {
		task.Priority = p
	} else {
		return 0, types.Invalid("task", "priority")
	}

	if task.AssignedTo != nil && *task.AssignedTo == 0 {
		task.AssignedTo = nil
	}
	task.Checklist = normalizeChecklist(task.Checklist)
	if creator != nil {
		id := creator.ID
		task.CreatedBy = &id
	}

	now := r.now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	id, err := r.backend.CreateTask(ctx, task)
	if err != nil {
		return 0, err
	}
	r.logger.Info("Task created", zap.Int64("task_id", id), zap.String("title", task.Title))
	r.bus.Invalidate(types.TableTasks)
	return id, nil
}

// UpdateTask applies a merge patch and refreshes updatedAt.
func (r *Repository) UpdateTask(ctx context.Context, id int64, patch types.TaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return types.Missing("task", "title")
		}
		patch.Title = &title
	}
	if patch.Status != nil {
		s, ok := types.ParseTaskStatus(string(*patch.Status))
		if !ok {
			return types.Invalid("task", "status")
		}
		patch.Status = &s
	}
	if patch.Priority != nil {
		p, ok := types.ParseTaskPriority(string(*patch.Priority))
		if !ok {
			return types.Invalid("task", "priority")
		}
		patch.Priority = &p
	}
	if patch.Checklist != nil {
		items := normalizeChecklist(*patch.Checklist)
		patch.Checklist = &items
	}

	patch.UpdatedAt = r.now().UTC()
	if err := r.backend.UpdateTask(ctx, id, patch); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableTasks)
	return nil
}

// DeleteTask removes the task. Backends drop its subtasks, comments and
// attachments with it.
func (r *Repository) DeleteTask(ctx context.Context, id int64) error {
	if err := r.backend.DeleteTask(ctx, id); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableTasks, types.TableSubtasks, types.TableComments, types.TableAttachments)
	return nil
}

// touchTask refreshes updatedAt after a change to one of the task's
// children.
func (r *Repository) touchTask(ctx context.Context, taskID int64) error {
	if err := r.backend.UpdateTask(ctx, taskID, types.TaskPatch{UpdatedAt: r.now().UTC()}); err != nil {
		return err
	}
	r.bus.Invalidate(types.TableTasks)
	return nil
}

func (r *Repository) ListSubtasks(ctx context.Context, taskID int64) ([]types.Subtask, error) {
	return r.backend.ListSubtasks(ctx, taskID)
}

func (r *Repository) AddSubtask(ctx context.Context, taskID int64, title string) (int64, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, types.Missing("subtask", "title")
	}
	if _, err := r.backend.GetTask(ctx, taskID); err != nil {
		return 0, err
	}

	id, err := r.backend.CreateSubtask(ctx, types.Subtask{TaskID: taskID, Title: title})
	if err != nil {
		return 0, err
	}
	r.bus.Invalidate(types.TableSubtasks)
	return id, r.touchTask(ctx, taskID)
}

func (r *Repository) UpdateSubtask(ctx context.Context, id int64, patch types.SubtaskPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return types.Missing("subtask", "title")
		}
		patch.Title = &title
	}
	taskID, err := r.backend.UpdateSubtask(ctx, id, patch)
	if err != nil {
		return err
	}
	r.bus.Invalidate(types.TableSubtasks)
	return r.touchTask(ctx, taskID)
}

func (r *Repository) DeleteSubtask(ctx context.Context, id int64) error {
	taskID, err := r.backend.DeleteSubtask(ctx, id)
	if err != nil {
		return err
	}
	r.bus.Invalidate(types.TableSubtasks)
	return r.touchTask(ctx, taskID)
}

func (r *Repository) ListComments(ctx context.Context, taskID int64) ([]types.Comment, error) {
	return r.backend.ListComments(ctx, taskID)
}

func (r *Repository) AddComment(ctx context.Context, taskID int64, author *types.User, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, types.Missing("comment", "content")
	}
	if author == nil {
		return 0, types.Missing("comment", "userId")
	}
	if _, err := r.backend.GetTask(ctx, taskID); err != nil {
		return 0, err
	}

	id, err := r.backend.CreateComment(ctx, types.Comment{
		TaskID:    taskID,
		UserID:    author.ID,
		Content:   content,
		CreatedAt: r.now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	r.bus.Invalidate(types.TableComments)
	return id, r.touchTask(ctx, taskID)
}

func (r *Repository) ListAttachments(ctx context.Context, taskID int64) ([]types.Attachment, error) {
	return r.backend.ListAttachments(ctx, taskID)
}

// AddAttachment stores the file under {taskId}/{unixMillis}-{name} and
// records it on the task.
func (r *Repository) AddAttachment(ctx context.Context, taskID int64, fileName, contentType string, data []byte) (*types.Attachment, error) {
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, types.Missing("attachment", "fileName")
	}
	if r.files == nil {
		return nil, fmt.Errorf("failed to store attachment: %w", storage.ErrUnsupported)
	}
	if _, err := r.backend.GetTask(ctx, taskID); err != nil {
		return nil, err
	}

	objectPath := fmt.Sprintf("%d/%d-%s", taskID, r.now().UnixMilli(), fileName)
	url, err := r.files.UploadObject(ctx, objectPath, contentType, data)
	if err != nil {
		return nil, types.Unavailable("upload attachment", err)
	}

	att := types.Attachment{TaskID: taskID, FileName: fileName, FileURL: url, FileType: contentType}
	id, err := r.backend.CreateAttachment(ctx, att)
	if err != nil {
		return nil, err
	}
	att.ID = id

	r.bus.Invalidate(types.TableAttachments)
	return &att, r.touchTask(ctx, taskID)
}

func normalizeChecklist(items []types.ChecklistItem) []types.ChecklistItem {
	out := make([]types.ChecklistItem, 0, len(items))
	for _, item := range items {
		item.Text = strings.TrimSpace(item.Text)
		if item.Text == "" {
			continue
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		out = append(out, item)
	}
	return out
}
