package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rglservice/mediation-strapi-import-export/internal/config"
	http_controllers "github.com/rglservice/mediation-strapi-import-export/internal/http"
	"github.com/rglservice/mediation-strapi-import-export/internal/importer"
	"github.com/rglservice/mediation-strapi-import-export/internal/media"
	"github.com/rglservice/mediation-strapi-import-export/internal/scheduler"
	"github.com/rglservice/mediation-strapi-import-export/internal/schema"
	"github.com/rglservice/mediation-strapi-import-export/internal/store"
	"github.com/rglservice/mediation-strapi-import-export/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background workers before the HTTP server drains.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting mediation import service v%s", version)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load the model schema governing the entity store.
	registry, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}
	log.Printf("Loaded %d models from %s", len(registry.ModelIDs()), cfg.Schema.Path)

	// Initialize the entity store.
	entityStore, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer func() {
		if err := entityStore.Close(); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	mediaLibrary := media.NewLibrary(entityStore)

	imp := importer.New(registry, entityStore, mediaLibrary, logger).
		WithSessions(entityStore)

	// Initialize task queue if enabled.
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:         cfg.Tasks.Workers,
			MaxRetries:      cfg.Tasks.MaxRetries,
			RetryDelay:      cfg.Tasks.RetryDelay,
			TaskTimeout:     cfg.Tasks.TaskTimeout,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewImportDataQueue(imp, entityStore),
			tasks.NewCleanupSessionsQueue(entityStore),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Schedule periodic import-session cleanup.
	var cleanupScheduler *scheduler.SessionCleanupScheduler
	if cfg.Sessions.CleanupEnabled {
		cleanupScheduler = scheduler.NewSessionCleanupScheduler(
			entityStore, taskClient, cfg.Sessions.CleanupSchedule, cfg.Sessions.RetentionDays)
		if err := cleanupScheduler.Start(); err != nil {
			log.Printf("WARNING: session cleanup not scheduled: %v", err)
		}
	}

	routerCfg := http_controllers.RouterConfig{
		Importer:   imp,
		Store:      entityStore,
		TaskClient: taskClient,
		AuthMode:   cfg.Auth.Mode,
		Logger:     logger,
		Version:    version,
	}
	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if cleanupScheduler != nil {
			cleanupScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
