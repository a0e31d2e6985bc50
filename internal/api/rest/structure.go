package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/structure
func (s *Server) getStructure(c *gin.Context) {
	st, err := s.repo.LoadStructure(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listSites(c *gin.Context) {
	sites, err := s.repo.ListSites(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sites": sites})
}

func (s *Server) createSite(c *gin.Context) {
	var site types.Site
	if err := c.ShouldBindJSON(&site); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	id, err := s.repo.CreateSite(c.Request.Context(), site)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateSite(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch types.SitePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if err := s.repo.UpdateSite(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "site updated"})
}

// Labs of the site must be removed first.
func (s *Server) deleteSite(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteSite(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "site deleted"})
}

func (s *Server) listLabs(c *gin.Context) {
	labs, err := s.repo.ListLabs(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"labs": labs})
}

func (s *Server) createLab(c *gin.Context) {
	var lab types.Lab
	if err := c.ShouldBindJSON(&lab); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	id, err := s.repo.CreateLab(c.Request.Context(), lab)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) updateLab(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var patch types.LabPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if err := s.repo.UpdateLab(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "lab updated"})
}

func (s *Server) deleteLab(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.repo.DeleteLab(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "lab deleted"})
}
