package server

import (
	"errors"
	"net/http"
	"strconv"

	"refinery/internal/model"

	"github.com/gin-gonic/gin"
)

func (s *Server) healthHandler(c *gin.Context) {
	checks := map[string]string{
		"database": "ok",
		"cache":    "ok",
		"rabbitmq": "ok",
	}
	healthy := true

	if err := s.sc.DBHealth(); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := s.sc.CacheHealth(); err != nil {
		checks["cache"] = err.Error()
		healthy = false
	}
	if err := s.sc.RabbitHealth(); err != nil {
		checks["rabbitmq"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}

func (s *Server) onlineHandler(c *gin.Context) {
	c.String(http.StatusOK, s.sc.Online())
}

// respondError maps domain sentinel errors onto HTTP status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// getPaginationParams extracts pagination parameters from request
func getPaginationParams(c *gin.Context) (int, int) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	return limit, offset
}

// getTokenID gets the token ID from the context (set by auth middleware)
func getTokenID(c *gin.Context) string {
	tokenID, exists := c.Get("tokenID")
	if !exists {
		return ""
	}
	return tokenID.(string)
}
