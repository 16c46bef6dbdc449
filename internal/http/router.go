package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rglservice/mediation-strapi-import-export/internal/config"
	"github.com/rglservice/mediation-strapi-import-export/internal/importer"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
	"github.com/rglservice/mediation-strapi-import-export/internal/tasks"
)

// RouterConfig carries the dependencies of the HTTP layer.
type RouterConfig struct {
	Importer   *importer.Importer
	Store      *store.Store
	TaskClient *tasks.Client
	AuthMode   config.AuthMode
	Logger     *zap.Logger
	Version    string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if cfg.AuthMode == config.AuthModeToken {
		router.Use(TokenAuthMiddleware(cfg.Store))
	} else {
		router.Use(AnonymousMiddleware())
	}

	healthController := NewHealthController(cfg.Store, cfg.Version)
	router.GET("/health", healthController.Status)

	importController := NewImportController(cfg.Importer, cfg.Store, cfg.TaskClient, cfg.Logger)
	api := router.Group("/api")
	{
		api.GET("/models", importController.ListModels)
		api.POST("/import", importController.Import)
		api.POST("/import/parse", importController.Parse)
		api.POST("/import/v2", importController.ImportV2)
		api.POST("/import/async", importController.ImportAsync)
		api.GET("/import/sessions/:id", importController.SessionStatus)
	}

	return router
}
