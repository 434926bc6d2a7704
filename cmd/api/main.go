package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"student-bulk-import/internal/api"
	"student-bulk-import/internal/config"
	"student-bulk-import/internal/db"
	"student-bulk-import/internal/dispatch"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/notify"
	"student-bulk-import/internal/queue"
	"student-bulk-import/internal/storage"
	"student-bulk-import/internal/tracker"
	"student-bulk-import/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background(), database); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	var archive storage.Storage
	if cfg.Storage.S3.Enabled {
		s3Storage, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		archive = s3Storage
	}

	// Batch tracking lives in this process; workers report back over an
	// event queue owned by this instance.
	eventQueue := queue.InstanceEventQueue(cfg, uuid.NewString())
	publisher := notify.NewRedisPublisher(redisClient.Client(), cfg.Redis.NotificationChannel)
	emitter := notify.NewEmitter(repo, publisher)
	batchTracker := tracker.New(tracker.NewMemoryStore(), emitter, cfg.Tracker.BatchTimeout)
	dispatcher := dispatch.NewDispatcher(queue.NewProducer(redisClient, cfg).WithReplyTo(eventQueue), batchTracker)
	completionWorker := worker.NewCompletionWorker(cfg, batchTracker, redisClient, eventQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := completionWorker.Start(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("Completion worker failed")
		}
	}()

	handler := api.NewHandler(cfg, repo, dispatcher, batchTracker, archive)
	push := api.NewPushHandler(publisher, cfg.Server.AllowedOrigin)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware(cfg.Server.AllowedOrigin))
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	api.SetupRoutes(router, handler, push, api.AdminAuth(cfg.Auth.JWTSecret, cfg.Auth.AdminRole))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	handler.WaitForArchives()
	cancel()

	log.Info().Int("open_batches", batchTracker.OpenBatches()).Msg("Server exited")
}
