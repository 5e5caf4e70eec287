package server

import (
	"net/http"

	"refinery/internal/model"

	"github.com/gin-gonic/gin"
)

// listVersionsHandler lists a batch's versions, optionally filtered by
// status
func (s *Server) listVersionsHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	status := model.VersionStatus(c.Query("status"))
	if status != "" && !isValidVersionStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version status"})
		return
	}

	versions, err := s.rc.ListVersions(c.Request.Context(), c.Param("id"), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"versions": versions, "count": len(versions)})
}

// getVersionHandler returns one content version
func (s *Server) getVersionHandler(c *gin.Context) {
	version, err := s.rc.GetVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, version)
}

// approveVersionHandler approves a pending version
func (s *Server) approveVersionHandler(c *gin.Context) {
	version, err := s.rc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, version)
}

// rejectVersionHandler rejects a pending version
func (s *Server) rejectVersionHandler(c *gin.Context) {
	version, err := s.rc.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, version)
}

// applyVersionHandler writes an approved version to the live clinic record
func (s *Server) applyVersionHandler(c *gin.Context) {
	version, err := s.rc.Apply(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, version)
}

// isValidVersionStatus checks if a version status is valid
func isValidVersionStatus(status model.VersionStatus) bool {
	validStatuses := []model.VersionStatus{
		model.VersionPending,
		model.VersionApproved,
		model.VersionRejected,
		model.VersionApplied,
		model.VersionRolledBack,
	}

	for _, s := range validStatuses {
		if status == s {
			return true
		}
	}
	return false
}
