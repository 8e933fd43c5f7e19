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
	"github.com/mrlokans/readalong/internal/config"
	"github.com/mrlokans/readalong/internal/database"
	"github.com/mrlokans/readalong/internal/database/devices"
	progressdb "github.com/mrlokans/readalong/internal/database/progress"
	http_controllers "github.com/mrlokans/readalong/internal/http"
	"github.com/mrlokans/readalong/internal/progress"
	"github.com/mrlokans/readalong/internal/remote"
	"github.com/mrlokans/readalong/internal/scheduler"
	"github.com/mrlokans/readalong/internal/tasks"
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
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		// service connections
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	// Wait for interrupt signal to gracefully shutdown the server with
	// a timeout of 1 second.
	quit := make(chan os.Signal, 1)
	// kill (no param) default send syscanll.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall. SIGKILL but can"t be catch, so don't need add it
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Readalong v%s", version)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	progressRepo := progressdb.NewRepository(db.DB)
	devicesRepo := devices.NewRepository(db.DB)

	// With an upstream server configured this node runs in relay mode:
	// positions saved through its API are forwarded upstream and the
	// offline queue is drained on a schedule. Without an upstream the
	// node is the server of record and there is nothing to forward.
	var syncEngine *progress.Engine
	var flushScheduler *scheduler.PendingFlushScheduler
	if cfg.Sync.ServerURL != "" {
		if cfg.Sync.DeviceToken == "" {
			log.Printf("WARNING: SYNC_SERVER_URL is set but SYNC_DEVICE_TOKEN is empty. Upstream syncs will be rejected.")
		}
		remoteClient := remote.NewClient(cfg.Sync.ServerURL, cfg.Sync.DeviceToken)
		syncEngine = progress.NewEngine(remoteClient, progressRepo, progress.Config{
			Debounce: cfg.Sync.Debounce,
			Source:   cfg.Sync.DeviceName,
		})

		flushScheduler = scheduler.NewPendingFlushScheduler(syncEngine, cfg.Sync.FlushSchedule)
		if err := flushScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start pending flush scheduler: %v", err)
		}
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled && syncEngine != nil {
		taskCfg := tasks.Config{
			Workers:         cfg.Tasks.Workers,
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

		// Register task queues
		taskClient.Register(
			tasks.NewFlushPendingSyncsQueue(syncEngine),
		)

		// Start task workers in background
		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Build router configuration with all dependencies
	routerCfg := http_controllers.RouterConfig{
		Database:       db,
		ProgressStore:  progressRepo,
		DeviceStore:    devicesRepo,
		Authenticator:  devicesRepo,
		PendingCounter: progressRepo,
		TaskClient:     taskClient,
		Version:        version,
	}

	router := http_controllers.NewRouter(routerCfg)

	// Shutdown callback for graceful cleanup
	onShutdown := func(ctx context.Context) {
		if flushScheduler != nil {
			flushScheduler.Stop()
		}
		if syncEngine != nil {
			syncEngine.Close()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
