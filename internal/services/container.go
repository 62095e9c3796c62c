package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/helpers"
	"attendance-worker-go/internal/services/camera"
	"attendance-worker-go/internal/services/messaging"
	"attendance-worker-go/internal/services/presence"
	"attendance-worker-go/internal/services/recognition"
	"attendance-worker-go/internal/store/postgres"
	"attendance-worker-go/internal/worker"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config    *config.Config
	Store     *postgres.Store
	Messaging *messaging.Service
	Detector  *recognition.GocvDetector
	Cache     *recognition.SignatureCache
	Tracker   *presence.Tracker
	Reaper    *presence.Reaper
	Registry  *camera.Registry
	Streamer  *recognition.Streamer
	Worker    *worker.Worker
}

// NewServiceContainer creates a new service container
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	store, err := postgres.New(cfg)
	if err != nil {
		return nil, err
	}

	messagingSvc, err := messaging.NewService(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	detector, err := recognition.NewGocvDetector(cfg)
	if err != nil {
		messagingSvc.Shutdown(context.Background())
		store.Close()
		return nil, err
	}

	imageOps := helpers.NewImageOps()
	cache := recognition.NewSignatureCache(cfg, store)
	tracker := presence.NewTracker(cfg, store, messagingSvc)
	reaper := presence.NewReaper(cfg, store, messagingSvc, tracker)
	matcher := recognition.NewMatcher(cfg, cache, detector, imageOps, tracker)
	streamer := recognition.NewStreamer(cfg, matcher, imageOps, messagingSvc)
	registry := camera.NewRegistry(cfg, camera.OpenGocvSource)
	workerSvc := worker.NewWorker(cfg, registry, streamer)

	return &ServiceContainer{
		Config:    cfg,
		Store:     store,
		Messaging: messagingSvc,
		Detector:  detector,
		Cache:     cache,
		Tracker:   tracker,
		Reaper:    reaper,
		Registry:  registry,
		Streamer:  streamer,
		Worker:    workerSvc,
	}, nil
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	if sc.Worker != nil {
		sc.Worker.Stop()
	}

	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Messaging shutdown failed")
		}
	}

	if sc.Detector != nil {
		sc.Detector.Close()
	}

	if sc.Store != nil {
		if err := sc.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Store close failed")
		}
	}

	return nil
}
