package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/services"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Strs("camera_ids", cfg.CameraIDs).
		Float64("distance_threshold", cfg.DistanceThreshold).
		Dur("exit_timeout", cfg.ExitTimeout).
		Msg("Starting attendance worker")

	container, err := services.NewServiceContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// Background loops: sighting queue and auto-exit sweep
	runCtx, cancel := context.WithCancel(context.Background())
	go container.Tracker.Run(runCtx)
	go container.Reaper.Run(runCtx)

	if err := container.Worker.Start(runCtx, container.Messaging); err != nil {
		log.Fatal().Err(err).Msg("Failed to start worker")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	cancel()

	// Graceful shutdown
	ctx, cancelTimeout := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelTimeout()

	if err := container.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Worker forced to shutdown")
	} else {
		log.Info().Msg("Worker shutdown complete")
	}
}
