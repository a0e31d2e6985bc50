package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
)

type CreateUserRequest struct {
	Name     string     `json:"name"`
	Email    string     `json:"email" binding:"required"`
	Password string     `json:"password"`
	Avatar   string     `json:"avatar"`
	Role     types.Role `json:"role"`
	GroupID  *int64     `json:"groupId"`
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.repo.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) createUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if req.Role == types.RoleAdmin && !isAdmin(c) {
		forbidRoleChange(c)
		return
	}

	ctx := c.Request.Context()
	id, err := s.repo.CreateUser(ctx, types.User{
		Name:    req.Name,
		Email:   req.Email,
		Avatar:  req.Avatar,
		Role:    req.Role,
		GroupID: req.GroupID,
	}, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) updateUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch types.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if patch.Role != nil && !isAdmin(c) {
		forbidRoleChange(c)
		return
	}

	ctx := c.Request.Context()
	if err := s.repo.UpdateUser(ctx, id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Roles are granted by admins only; manage_users covers everything else.
func isAdmin(c *gin.Context) bool {
	sess := auth.CurrentSession(c)
	return sess != nil && sess.User != nil && sess.User.Role == types.RoleAdmin
}

func forbidRoleChange(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden,
		types.NewErrorResponse("FORBIDDEN", "admin role required to change roles", nil))
}

func (s *Server) deleteUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteUser(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

func (s *Server) listGroups(c *gin.Context) {
	groups, err := s.repo.ListGroups(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) createGroup(c *gin.Context) {
	var group types.Group
	if err := c.ShouldBindJSON(&group); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	id, err := s.repo.CreateGroup(c.Request.Context(), group)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateGroup(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch types.GroupPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if err := s.repo.UpdateGroup(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group updated"})
}

func (s *Server) deleteGroup(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteGroup(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "group deleted"})
}
