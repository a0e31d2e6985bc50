package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	sessionKey     = "session"
	permissionsKey = "permissions"
)

// Middleware resolves the Bearer token into a session and stores it in
// the gin context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("UNAUTHORIZED", "missing authorization header", nil))
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("UNAUTHORIZED", "invalid authorization header format", nil))
			return
		}

		sess, err := s.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			status, code := http.StatusUnauthorized, "UNAUTHORIZED"
			switch {
			case errors.Is(err, types.ErrUserBlocked):
				status, code = http.StatusForbidden, "USER_BLOCKED"
			case errors.Is(err, types.ErrSessionExpired):
				code = "SESSION_EXPIRED"
			case !types.IsAuth(err):
				status, code = http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE"
			}
			c.AbortWithStatusJSON(status, types.NewErrorResponse(code, err.Error(), nil))
			return
		}

		c.Set(sessionKey, sess)
		c.Set(permissionsKey, sess.Permissions)
		c.Next()
	}
}

// RequirePermission lets the request through when the session holds any
// of the given tags.
func RequirePermission(required ...types.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if sess == nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("FORBIDDEN", "no permissions found", nil))
			return
		}

		for _, p := range required {
			if HasPermission(sess.Permissions, p) {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			types.NewErrorResponse("FORBIDDEN", "insufficient permissions", gin.H{"required": required}))
	}
}

// CurrentSession returns the session set by Middleware, or nil.
func CurrentSession(c *gin.Context) *Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return nil
}

// RequireAdmin lets only sessions of admin users through.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := CurrentSession(c)
		if sess == nil || sess.User == nil || sess.User.Role != types.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden,
				types.NewErrorResponse("FORBIDDEN", "admin role required", nil))
			return
		}
		c.Next()
	}
}
