package server

import (
	"net/http"
	"strconv"

	"refinery/internal/model"

	"github.com/gin-gonic/gin"
)

// listClinicsHandler lists clinics, optionally filtered by city, specialty
// and optimization state
func (s *Server) listClinicsHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	includeOptimized := true
	if v := c.Query("includeOptimized"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid includeOptimized parameter"})
			return
		}
		includeOptimized = parsed
	}

	filter := model.ClinicFilter{
		City:             c.Query("city"),
		Specialty:        c.Query("specialty"),
		IncludeOptimized: includeOptimized,
	}

	clinics, err := s.cc.ListClinics(c.Request.Context(), filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"clinics": clinics, "count": len(clinics)})
}

// getClinicHandler returns one clinic
func (s *Server) getClinicHandler(c *gin.Context) {
	clinic, err := s.cc.GetClinic(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, clinic)
}
