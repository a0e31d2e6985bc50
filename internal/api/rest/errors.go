package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps the error taxonomy onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		verr *types.ValidationError
		nerr *types.NotFoundError
	)

	switch {
	case errors.As(err, &verr):
		status, code := http.StatusBadRequest, "VALIDATION_FAILED"
		if verr.Reason == types.ReasonDuplicate {
			status, code = http.StatusConflict, "DUPLICATE"
		}
		c.JSON(status, types.NewErrorResponse(code, err.Error(), verr))
	case errors.As(err, &nerr):
		c.JSON(http.StatusNotFound, types.NewErrorResponse("NOT_FOUND", err.Error(), nerr))
	case errors.Is(err, types.ErrUserBlocked):
		c.JSON(http.StatusForbidden, types.NewErrorResponse("USER_BLOCKED", err.Error(), nil))
	case types.IsAuth(err):
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse("UNAUTHORIZED", err.Error(), nil))
	case errors.Is(err, storage.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, types.NewErrorResponse("UNSUPPORTED", err.Error(), nil))
	case types.IsUnavailable(err):
		s.logger.Warn("Backend unavailable", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("BACKEND_UNAVAILABLE", err.Error(), nil))
	default:
		s.logger.Error("Request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("INTERNAL", "internal error", nil))
	}
}

func badRequest(c *gin.Context, message string, err error) {
	var details any
	if err != nil {
		details = err.Error()
	}
	c.JSON(http.StatusBadRequest, types.NewErrorResponse("BAD_REQUEST", message, details))
}

// idParam parses the numeric :id path parameter, answering 400 itself
// when it is malformed.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id", err)
		return 0, false
	}
	return id, true
}
