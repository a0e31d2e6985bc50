package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus(c.Request.Context()))
}

// POST /api/v1/system/reset
// Drops and reseeds the store. Requires {"confirm": true}.
func (s *Server) resetStore(c *gin.Context) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		badRequest(c, "reset must be confirmed", err)
		return
	}

	s.logger.Warn("Store reset requested", zap.Int64("user_id", auth.CurrentSession(c).User.ID))
	if err := s.repo.Reset(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "store reset"})
}
