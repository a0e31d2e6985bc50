package rest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/analysis"
	"github.com/KevinKickass/OpenLabManager/internal/api/websocket"
	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/config"
	"github.com/KevinKickass/OpenLabManager/internal/importexport"
	"github.com/KevinKickass/OpenLabManager/internal/interfaces"
	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	repo        *repository.Repository
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.Service
	analyzer    *analysis.Analyzer
	importer    *importexport.Importer
	cfg         *config.Config
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.Service, analyzer *analysis.Analyzer) *Server {
	gin.SetMode(gin.ReleaseMode)

	repo := lm.Repository()
	s := &Server{
		router:      gin.New(),
		lm:          lm,
		repo:        repo,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		analyzer:    analyzer,
		importer:    importexport.NewImporter(repo, logger),
		cfg:         cfg,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.cfg.Server.AllowedOrigins))

	s.router.GET("/health", s.healthCheck)

	// Local attachments are served from disk; hosted ones carry absolute URLs.
	if base := s.cfg.Attachments.BaseURL; strings.HasPrefix(base, "/") && s.cfg.Attachments.Dir != "" {
		s.router.Static(base, s.cfg.Attachments.Dir)
	}

	requireAuth := s.authService.Middleware()
	perm := auth.RequirePermission

	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/register", s.register)
		}

		// ==================== AUTH (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(requireAuth)
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
			authProtected.PATCH("/me", s.updateCurrentUser)
			authProtected.POST("/password", s.changePassword)
		}

		// ==================== STRUCTURE ====================
		v1.GET("/structure", requireAuth, s.getStructure)

		sites := v1.Group("/sites")
		sites.Use(requireAuth)
		{
			sites.GET("", s.listSites)
			sites.POST("", perm(types.PermManageStructure), s.createSite)
			sites.PATCH("/:id", perm(types.PermManageStructure), s.updateSite)
			sites.DELETE("/:id", perm(types.PermManageStructure), s.deleteSite)
		}

		labs := v1.Group("/labs")
		labs.Use(requireAuth)
		{
			labs.GET("", s.listLabs)
			labs.POST("", perm(types.PermManageStructure), s.createLab)
			labs.PATCH("/:id", perm(types.PermManageStructure), s.updateLab)
			labs.DELETE("/:id", perm(types.PermManageStructure), s.deleteLab)
		}

		// ==================== DEVICES ====================
		devices := v1.Group("/devices")
		devices.Use(requireAuth)
		{
			devices.GET("", s.listDevices)
			devices.GET("/export", s.exportDevices)
			devices.GET("/template", s.deviceTemplate)
			devices.GET("/:id", s.getDevice)
			devices.POST("/:id/checks", s.submitChecklist)
			devices.POST("/:id/logs", s.addLogEntry)
			devices.POST("/:id/analysis", s.analyzeIssue)

			devices.POST("", perm(types.PermManageInventory), s.createDevice)
			devices.POST("/import", perm(types.PermManageInventory), s.importDevices)
			devices.PATCH("/:id", perm(types.PermManageInventory), s.updateDevice)
			devices.DELETE("/:id", perm(types.PermManageInventory), s.deleteDevice)
		}

		// ==================== USERS & GROUPS ====================
		users := v1.Group("/users")
		users.Use(requireAuth)
		{
			users.GET("", s.listUsers)
			users.POST("", perm(types.PermManageUsers), s.createUser)
			users.PATCH("/:id", perm(types.PermManageUsers), s.updateUser)
			users.DELETE("/:id", perm(types.PermManageUsers), s.deleteUser)
		}

		groups := v1.Group("/groups")
		groups.Use(requireAuth)
		{
			groups.GET("", s.listGroups)
			groups.POST("", perm(types.PermManageGroups), s.createGroup)
			groups.PATCH("/:id", perm(types.PermManageGroups), s.updateGroup)
			groups.DELETE("/:id", perm(types.PermManageGroups), s.deleteGroup)
		}

		// ==================== TASKS ====================
		tasks := v1.Group("/tasks")
		tasks.Use(requireAuth)
		{
			tasks.GET("", s.listTasks)
			tasks.GET("/:id", s.getTask)
			tasks.POST("", perm(types.PermCreateTasks, types.PermManageTasks), s.createTask)
			tasks.PATCH("/:id", perm(types.PermCreateTasks, types.PermManageTasks), s.updateTask)
			tasks.DELETE("/:id", perm(types.PermManageTasks), s.deleteTask)

			tasks.GET("/:id/subtasks", s.listSubtasks)
			tasks.POST("/:id/subtasks", perm(types.PermCreateTasks, types.PermManageTasks), s.addSubtask)
			tasks.GET("/:id/comments", s.listComments)
			tasks.POST("/:id/comments", perm(types.PermCreateTasks, types.PermManageTasks), s.addComment)
			tasks.GET("/:id/attachments", s.listAttachments)
			tasks.POST("/:id/attachments", perm(types.PermCreateTasks, types.PermManageTasks), s.addAttachment)
		}

		subtasks := v1.Group("/subtasks")
		subtasks.Use(requireAuth)
		{
			subtasks.PATCH("/:id", perm(types.PermCreateTasks, types.PermManageTasks), s.updateSubtask)
			subtasks.DELETE("/:id", perm(types.PermCreateTasks, types.PermManageTasks), s.deleteSubtask)
		}

		// ==================== CHAT ====================
		messages := v1.Group("/messages")
		messages.Use(requireAuth)
		{
			messages.GET("", s.listMessages)
			messages.POST("", s.sendMessage)
		}

		// ==================== REPORTS ====================
		reports := v1.Group("/reports")
		reports.Use(requireAuth)
		{
			reports.GET("/dashboard", s.dashboard)
			reports.GET("/maintenance", perm(types.PermViewReports), s.maintenanceReport)
		}

		// ==================== SYSTEM (ADMIN) ====================
		system := v1.Group("/system")
		system.Use(requireAuth, auth.RequireAdmin())
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/reset", s.resetStore)
		}

		// ==================== WEBSOCKET (auth via first message) ====================
		v1.GET("/ws/live", s.wsLiveConnection)
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request, s.checkOrigin)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || originAllowed(s.cfg.Server.AllowedOrigins, origin)
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "ok",
		"backend":   s.repo.Backend().Name(),
		"timestamp": time.Now().Unix(),
	}
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}
