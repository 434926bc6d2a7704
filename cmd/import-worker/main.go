package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/db"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/queue"
	"student-bulk-import/internal/worker"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting import worker")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	importWorker := worker.NewImportWorker(cfg, repo, redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- importWorker.Start(ctx)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down import worker...")
		cancel()
		// The consumer must be gone before the pool closes its job channel.
		if err := <-done; err != nil && !stderrors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Import worker stopped with error")
		}
	case err := <-done:
		log.Error().Err(err).Msg("Import worker failed")
	}

	importWorker.Stop()

	log.Info().Msg("Import worker exited")
}
