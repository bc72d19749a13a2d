package api

import (
	"github.com/gin-gonic/gin"
	v1 "github.com/ledgerdesk/backoffice/internal/api/v1"
	"github.com/ledgerdesk/backoffice/internal/config"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/rest/middleware"
	"github.com/ledgerdesk/backoffice/internal/types"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Health   *v1.HealthHandler
	Document *v1.DocumentHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode != types.ModeLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware(cfg.Server.AllowedOrigins),
		middleware.LoggingMiddleware(logger),
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// v1 routes
	v1Group := router.Group("/v1")
	v1Group.Use(middleware.UserMiddleware)
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	documents := router.Group("/documents/:kind")
	{
		documents.POST("", handlers.Document.CreateDocument)
		documents.GET("", handlers.Document.ListDocuments)
		documents.GET("/:id", handlers.Document.GetDocument)
		documents.PUT("/:id", handlers.Document.UpdateDocument)
		documents.DELETE("/:id", handlers.Document.DeleteDocument)
		documents.POST("/:id/artifact", handlers.Document.RegenerateArtifact)
		documents.GET("/:id/artifact", handlers.Document.GetArtifact)
	}
}
