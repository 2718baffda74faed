package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/anicol/peokops-sub001/internal/handlers"
	"github.com/anicol/peokops-sub001/internal/middleware"
)

type RouterConfig struct {
	ServiceName        string
	AllowOrigins       []string
	RunHandler         *handlers.RunHandler
	TemplateHandler    *handlers.TemplateHandler
	CoverageHandler    *handlers.CoverageHandler
	RunTokenMiddleware *middleware.RunTokenMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID", "X-Responder-Label"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// Operator/management surface. Authentication for operators lives in
	// the external identity layer fronting this service.
	api := router.Group("/api")
	{
		api.POST("/templates", cfg.TemplateHandler.CreateTemplate)
		api.GET("/templates/:id", cfg.TemplateHandler.GetTemplate)
		api.POST("/templates/:id/publish", cfg.TemplateHandler.PublishNewVersion)
		api.POST("/templates/:id/archive", cfg.TemplateHandler.ArchiveTemplate)

		api.GET("/stores/:id/templates", cfg.TemplateHandler.ListEligibleForStore)
		api.POST("/stores/:id/runs/today", cfg.RunHandler.EnsureRunForToday)
		api.POST("/stores/:id/runs/instant", cfg.RunHandler.CreateInstantRun)
		api.GET("/stores/:id/coverage", cfg.CoverageHandler.GetCoverageSnapshot)
		api.GET("/stores/:id/streaks", cfg.CoverageHandler.GetStreaks)
	}

	// Responder surface, guarded by the per-run access token.
	responder := router.Group("/api")
	responder.Use(cfg.RunTokenMiddleware.RequireRunToken())
	{
		responder.GET("/runs/:id", cfg.RunHandler.GetRun)
		responder.POST("/run-items/:id/response", cfg.RunHandler.SubmitResponse)
	}

	return router
}
