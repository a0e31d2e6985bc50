package rest

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenLabManager/internal/analysis"
	"github.com/KevinKickass/OpenLabManager/internal/auth"
	"github.com/KevinKickass/OpenLabManager/internal/importexport"
	"github.com/KevinKickass/OpenLabManager/internal/repository"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.repo.Devices(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// GET /api/v1/devices/:id
func (s *Server) getDevice(c *gin.Context) {
	device, err := s.repo.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// POST /api/v1/devices
func (s *Server) createDevice(c *gin.Context) {
	var device types.Device
	if err := c.ShouldBindJSON(&device); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	if err := s.repo.CreateDevice(ctx, device); err != nil {
		s.respondError(c, err)
		return
	}
	created, err := s.repo.GetDevice(ctx, strings.TrimSpace(device.ID))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// PATCH /api/v1/devices/:id
func (s *Server) updateDevice(c *gin.Context) {
	var patch types.DevicePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.repo.UpdateDevice(ctx, id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	device, err := s.repo.GetDevice(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// DELETE /api/v1/devices/:id
func (s *Server) deleteDevice(c *gin.Context) {
	if err := s.repo.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device deleted"})
}

// POST /api/v1/devices/:id/checks
func (s *Server) submitChecklist(c *gin.Context) {
	var in repository.CheckInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	device, err := s.repo.SubmitChecklist(c.Request.Context(), c.Param("id"), in, auth.CurrentSession(c).User)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, device)
}

// POST /api/v1/devices/:id/logs
func (s *Server) addLogEntry(c *gin.Context) {
	var in repository.LogInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	entry, err := s.repo.AddLogEntry(c.Request.Context(), c.Param("id"), in, auth.CurrentSession(c).User)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// POST /api/v1/devices/:id/analysis
func (s *Server) analyzeIssue(c *gin.Context) {
	var req struct {
		Issue string `json:"issue" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	device, err := s.repo.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	text := analysis.MessageMissingKey
	if s.analyzer != nil {
		text = s.analyzer.Analyze(c.Request.Context(), req.Issue, device.Model)
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": device.ID, "analysis": text})
}

// POST /api/v1/devices/import (multipart field "file")
func (s *Server) importDevices(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file", err)
		return
	}
	format, err := importexport.FormatFromName(header.Filename)
	if err != nil {
		badRequest(c, "unsupported file type", err)
		return
	}

	f, err := header.Open()
	if err != nil {
		badRequest(c, "unreadable file", err)
		return
	}
	defer f.Close()

	rows, parseErrs, err := importexport.Parse(f, format)
	if err != nil {
		if errors.Is(err, importexport.ErrMissingColumns) {
			badRequest(c, "sheet has no id or lab column", nil)
			return
		}
		badRequest(c, "unreadable sheet", err)
		return
	}

	report, err := s.importer.Import(c.Request.Context(), rows, parseErrs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.logger.Info("Devices imported",
		zap.String("file", header.Filename),
		zap.Int("imported", report.Imported),
		zap.Int("updated", report.Updated),
		zap.Int("errors", report.Errors))
	c.JSON(http.StatusOK, report)
}

// GET /api/v1/devices/export?format=csv|xlsx
func (s *Server) exportDevices(c *gin.Context) {
	format, ok := formatParam(c)
	if !ok {
		return
	}
	devices, err := s.repo.Devices(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := importexport.Export(&buf, format, devices); err != nil {
		s.respondError(c, err)
		return
	}
	sendSheet(c, "devices", format, buf.Bytes())
}

// GET /api/v1/devices/template?format=csv|xlsx
func (s *Server) deviceTemplate(c *gin.Context) {
	format, ok := formatParam(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := importexport.Template(&buf, format); err != nil {
		s.respondError(c, err)
		return
	}
	sendSheet(c, "devices-template", format, buf.Bytes())
}

func formatParam(c *gin.Context) (importexport.Format, bool) {
	switch f := importexport.Format(strings.ToLower(c.DefaultQuery("format", string(importexport.FormatCSV)))); f {
	case importexport.FormatCSV, importexport.FormatXLSX:
		return f, true
	}
	badRequest(c, "format must be csv or xlsx", nil)
	return "", false
}

func sendSheet(c *gin.Context, name string, format importexport.Format, data []byte) {
	contentType := contentTypeCSV
	if format == importexport.FormatXLSX {
		contentType = contentTypeXLSX
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, format))
	c.Data(http.StatusOK, contentType, data)
}
