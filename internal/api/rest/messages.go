package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/messages?with=<userId>
// Without "with", every message the session sent or received is returned.
func (s *Server) listMessages(c *gin.Context) {
	me := auth.CurrentSession(c).User.ID
	ctx := c.Request.Context()

	if with := c.Query("with"); with != "" {
		other, err := strconv.ParseInt(with, 10, 64)
		if err != nil {
			badRequest(c, "invalid user id", err)
			return
		}
		msgs, err := s.repo.Conversation(ctx, me, other)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
		return
	}

	all, err := s.repo.ListMessages(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	mine := make([]types.Message, 0, len(all))
	for _, m := range all {
		if m.SenderID == me || m.ReceiverID == me {
			mine = append(mine, m)
		}
	}
	c.JSON(http.StatusOK, gin.H{"messages": mine})
}

func (s *Server) sendMessage(c *gin.Context) {
	var req struct {
		ReceiverID int64  `json:"receiverId"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	msg, err := s.repo.SendMessage(c.Request.Context(), auth.CurrentSession(c).User.ID, req.ReceiverID, req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
