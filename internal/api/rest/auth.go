package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginResponse struct {
	Token       string             `json:"token"`
	TokenType   string             `json:"token_type"`
	ExpiresIn   int                `json:"expires_in"` // seconds
	User        *types.User        `json:"user"`
	Permissions []types.Permission `json:"permissions"`
}

// ProfileRequest is the part of a user a session may change on itself.
type ProfileRequest struct {
	Name   *string         `json:"name"`
	Avatar *string         `json:"avatar"`
	Status *types.Presence `json:"status"`
}

type ChangePasswordRequest struct {
	Current string `json:"current"`
	New     string `json:"new" binding:"required,min=6"`
}

func sessionResponse(sess *auth.Session) LoginResponse {
	expiresIn := 0
	if !sess.ExpiresAt.IsZero() {
		expiresIn = int(time.Until(sess.ExpiresAt).Seconds())
	}
	return LoginResponse{
		Token:       sess.Token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		User:        sess.User,
		Permissions: sess.Permissions,
	}
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	sess, err := s.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess))
}

func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	sess, err := s.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse(sess))
}

func (s *Server) logout(c *gin.Context) {
	sess := auth.CurrentSession(c)
	if err := s.authService.Logout(c.Request.Context(), sess.Token); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

func (s *Server) getCurrentUser(c *gin.Context) {
	sess := auth.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"user":        sess.User,
		"permissions": sess.Permissions,
	})
}

func (s *Server) updateCurrentUser(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	sess := auth.CurrentSession(c)
	user, err := s.authService.UpdateProfile(c.Request.Context(), sess.User.ID, types.UserPatch{
		Name:   req.Name,
		Avatar: req.Avatar,
		Status: req.Status,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) changePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	sess := auth.CurrentSession(c)
	if err := s.authService.ChangePassword(c.Request.Context(), sess.User.ID, req.Current, req.New); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
