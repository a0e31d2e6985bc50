package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/reports"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/reports/dashboard
func (s *Server) dashboard(c *gin.Context) {
	devices, err := s.repo.Devices(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports.Dashboard(devices))
}

// GET /api/v1/reports/maintenance?period=day|week|month|semester|year
func (s *Server) maintenanceReport(c *gin.Context) {
	period, err := reports.ParsePeriod(c.Query("period"))
	if err != nil {
		badRequest(c, "invalid period", err)
		return
	}
	devices, err := s.repo.Devices(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reports.Maintenance(devices, period, time.Now()))
}
