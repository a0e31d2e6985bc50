package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
)

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.repo.ListTasks(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	task, err := s.repo.GetTask(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) createTask(c *gin.Context) {
	var task types.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	id, err := s.repo.CreateTask(ctx, task, auth.CurrentSession(c).User)
	if err != nil {
		s.respondError(c, err)
		return
	}
	created, err := s.repo.GetTask(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch types.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	if err := s.repo.UpdateTask(ctx, id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteTask(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (s *Server) listSubtasks(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	subtasks, err := s.repo.ListSubtasks(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subtasks": subtasks})
}

func (s *Server) addSubtask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	subID, err := s.repo.AddSubtask(c.Request.Context(), id, req.Title)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": subID})
}

func (s *Server) updateSubtask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch types.SubtaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if err := s.repo.UpdateSubtask(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subtask updated"})
}

func (s *Server) deleteSubtask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteSubtask(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subtask deleted"})
}

func (s *Server) listComments(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	comments, err := s.repo.ListComments(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (s *Server) addComment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	commentID, err := s.repo.AddComment(c.Request.Context(), id, auth.CurrentSession(c).User, req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": commentID})
}

func (s *Server) listAttachments(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	attachments, err := s.repo.ListAttachments(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

// POST /api/v1/tasks/:id/attachments (multipart field "file")
func (s *Server) addAttachment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if limit := s.cfg.Attachments.MaxSize; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+(1<<20))
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.NewErrorResponse("TOO_LARGE", "attachment too large", nil))
			return
		}
		badRequest(c, "missing file", err)
		return
	}
	if limit := s.cfg.Attachments.MaxSize; limit > 0 && header.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, types.NewErrorResponse("TOO_LARGE", "attachment too large", nil))
		return
	}

	f, err := header.Open()
	if err != nil {
		badRequest(c, "unreadable file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "unreadable file", err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	att, err := s.repo.AddAttachment(c.Request.Context(), id, header.Filename, contentType, data)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}
