package server

import (
	"net/http"
	"time"

	"aidimport/internal/controller"

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

	api := r.Group("/api")
	api.Use(s.AuthMiddleware(controller.RoleAdmin, controller.RoleService))
	{
		api.GET("/activities/search", s.SearchActivitiesHandler)

		api.POST("/batches", s.CreateBatchHandler)
		api.GET("/batches", s.ListBatchesHandler)
		api.GET("/batches/:id", s.GetBatchHandler)
		api.POST("/batches/:id/chunks", s.ProcessChunkHandler)
		api.POST("/batches/:id/abort", s.AbortBatchHandler)
		api.POST("/batches/:id/reopen", s.ReopenBatchHandler)
		api.POST("/batches/:id/run", s.RunBatchHandler)

		api.GET("/imports/logs", s.ListImportLogsHandler)
	}

	admin := r.Group("/admin")
	admin.Use(s.AuthMiddleware(controller.RoleAdmin))
	{
		admin.POST("/tokens", s.CreateTokenHandler)
		admin.GET("/tokens", s.ListTokensHandler)
		admin.GET("/tokens/:id", s.GetTokenHandler)
		admin.DELETE("/tokens/:id", s.RevokeTokenHandler)
	}

	return r
}
