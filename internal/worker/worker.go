// Package worker ties camera acquisition to streaming viewers and listens
// for start/stop commands on the control subject.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/services/camera"
	"attendance-worker-go/internal/services/recognition"
)

// Subscriber is the control-channel side of the messaging service.
type Subscriber interface {
	Subscribe(subject string, handler func([]byte)) (*nats.Subscription, error)
}

// ControlCommand is the JSON body accepted on the control subject.
type ControlCommand struct {
	Action   string `json:"action"` // "start" or "stop"
	CameraID string `json:"camera_id"`
}

type viewer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Worker runs one streaming viewer per active camera. Viewers for the
// configured cameras start at boot; further viewers start and stop in
// response to control commands.
type Worker struct {
	cfg      *config.Config
	registry *camera.Registry
	streamer *recognition.Streamer

	mu      sync.Mutex
	viewers map[string]*viewer
	stopped bool
}

func NewWorker(cfg *config.Config, registry *camera.Registry, streamer *recognition.Streamer) *Worker {
	return &Worker{
		cfg:      cfg,
		registry: registry,
		streamer: streamer,
		viewers:  make(map[string]*viewer),
	}
}

// Start launches viewers for the configured cameras and wires the control
// subject. A camera that fails to open at boot is reported and skipped;
// the rest keep running.
func (w *Worker) Start(ctx context.Context, sub Subscriber) error {
	for _, cameraID := range w.cfg.CameraIDs {
		if err := w.StartViewer(ctx, cameraID); err != nil {
			log.Error().Err(err).Str("camera_id", cameraID).Msg("Failed to start camera viewer")
		}
	}

	if sub != nil {
		if _, err := sub.Subscribe(w.cfg.ControlSubject, func(data []byte) {
			w.handleControl(ctx, data)
		}); err != nil {
			return fmt.Errorf("failed to subscribe to control subject: %w", err)
		}
		log.Info().Str("subject", w.cfg.ControlSubject).Msg("Control subscription active")
	}
	return nil
}

func (w *Worker) handleControl(ctx context.Context, data []byte) {
	var cmd ControlCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Warn().Err(err).Msg("Invalid control command")
		return
	}
	if cmd.CameraID == "" {
		log.Warn().Str("action", cmd.Action).Msg("Control command missing camera_id")
		return
	}

	switch cmd.Action {
	case "start":
		if err := w.StartViewer(ctx, cmd.CameraID); err != nil {
			log.Error().Err(err).Str("camera_id", cmd.CameraID).Msg("Control start failed")
		}
	case "stop":
		w.StopViewer(cmd.CameraID)
	default:
		log.Warn().Str("action", cmd.Action).Msg("Unknown control action")
	}
}

// StartViewer acquires the camera and runs a streaming loop for it until
// StopViewer or shutdown. Starting an already-running viewer is a no-op.
func (w *Worker) StartViewer(ctx context.Context, cameraID string) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return errors.New("worker is stopped")
	}
	if _, ok := w.viewers[cameraID]; ok {
		w.mu.Unlock()
		log.Debug().Str("camera_id", cameraID).Msg("Viewer already running")
		return nil
	}
	w.mu.Unlock()

	handle, err := w.registry.Acquire(cameraID)
	if err != nil {
		if errors.Is(err, camera.ErrCameraUnavailable) {
			w.streamer.PublishUnavailable(cameraID, err)
		}
		return err
	}

	viewerCtx, cancel := context.WithCancel(ctx)
	v := &viewer{cancel: cancel, done: make(chan struct{})}

	w.mu.Lock()
	if w.stopped || w.viewers[cameraID] != nil {
		w.mu.Unlock()
		cancel()
		w.registry.Release(handle)
		return nil
	}
	w.viewers[cameraID] = v
	w.mu.Unlock()

	go func() {
		defer close(v.done)
		defer w.registry.Release(handle)
		defer w.clearViewer(cameraID, v)

		w.streamer.Stream(viewerCtx, handle)
	}()

	log.Info().Str("camera_id", cameraID).Msg("Camera viewer started")
	return nil
}

// StopViewer cancels the camera's viewer and waits for its loop to exit.
func (w *Worker) StopViewer(cameraID string) {
	w.mu.Lock()
	v, ok := w.viewers[cameraID]
	w.mu.Unlock()
	if !ok {
		return
	}

	v.cancel()
	<-v.done
	log.Info().Str("camera_id", cameraID).Msg("Camera viewer stopped")
}

func (w *Worker) clearViewer(cameraID string, v *viewer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.viewers[cameraID] == v {
		delete(w.viewers, cameraID)
	}
}

// ViewerCount reports the number of running viewers.
func (w *Worker) ViewerCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.viewers)
}

// Stop cancels every viewer and waits for all loops to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	active := make([]*viewer, 0, len(w.viewers))
	for _, v := range w.viewers {
		active = append(active, v)
	}
	w.mu.Unlock()

	for _, v := range active {
		v.cancel()
	}
	for _, v := range active {
		<-v.done
	}
	log.Info().Msg("All camera viewers stopped")
}
