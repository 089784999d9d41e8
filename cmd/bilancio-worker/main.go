package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	"bilancio/internal/drive"
	gdrive "bilancio/internal/drive/google"
	"bilancio/internal/drive/memory"
	"bilancio/internal/log"
	"bilancio/internal/storage"
	"bilancio/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(os.Stdout, "bilancio-worker", slog.LevelInfo)
	log.SetDefault(logger)

	logger.Info("Starting bilancio-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqliteRepo.Close()

	// Snapshot destination: Google Drive when configured, otherwise an
	// in-memory store so the worker still drains the queue.
	var uploader drive.SnapshotUploader
	if cfg.DriveFolderID != "" {
		client, err := gdrive.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Drive client", "error", err)
			os.Exit(1)
		}
		uploader = client
		logger.Info("Google Drive client initialized", "folder_id", cfg.DriveFolderID)
	} else {
		uploader = memory.New()
		logger.Info("Google Drive disabled - no GOOGLE_DRIVE_FOLDER_ID provided, using in-memory store")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncWorker := worker.NewSyncWorker(sqliteRepo, uploader)

	go func() {
		if err := amqpClient.ConsumePeriodsSync(ctx, func(msg *amqp.PeriodsSyncMessage) error {
			return syncWorker.HandleSyncMessage(ctx, msg)
		}); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Periodic sweep recovers snapshots missed while the worker was down
	// or when messages were lost.
	go func() {
		if err := syncWorker.RunPeriodicSweep(ctx, cfg.SweepInterval); err != nil && err != context.Canceled {
			logger.Error("Periodic sweep stopped", "error", err)
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	logger.Info("Shutting down worker...")
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
