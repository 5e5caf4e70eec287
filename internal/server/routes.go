package server

import (
	"net/http"
	"time"

	"refinery/internal/model"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)
	r.GET("/online", s.onlineHandler)

	api := r.Group("/", s.AuthMiddleware())
	{
		api.POST("/batches", s.createBatchHandler)
		api.GET("/batches", s.listBatchesHandler)
		api.GET("/batches/:id", s.getBatchHandler)
		api.DELETE("/batches/:id", s.cancelBatchHandler)

		api.POST("/batches/:id/execute", s.executeBatchHandler)
		api.POST("/batches/:id/pause", s.pauseBatchHandler)
		api.POST("/batches/:id/rollback", s.rollbackBatchHandler)
		api.POST("/batches/:id/export", s.exportBatchHandler)

		api.GET("/batches/:id/versions", s.listVersionsHandler)
		api.GET("/versions/:id", s.getVersionHandler)
		api.POST("/versions/:id/approve", s.approveVersionHandler)
		api.POST("/versions/:id/reject", s.rejectVersionHandler)
		api.POST("/versions/:id/apply", s.applyVersionHandler)

		api.GET("/clinics", s.listClinicsHandler)
		api.GET("/clinics/:id", s.getClinicHandler)
	}

	admin := r.Group("/tokens", s.AuthMiddleware(model.RoleAdmin))
	{
		admin.POST("", s.createTokenHandler)
		admin.GET("", s.listTokensHandler)
		admin.DELETE("/:id", s.revokeTokenHandler)
	}

	return r
}
