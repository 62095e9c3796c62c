// Package camera owns the camera resource pool: reader-counted handles,
// one background frame grabber per open device, and teardown when the last
// reader releases.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
)

// ErrCameraUnavailable reports that the underlying capture resource could
// not be opened. Callers surface it to the viewer instead of crashing.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Registry is the process-wide camera pool. At most one live Handle exists
// per camera id; subsequent acquires share it.
type Registry struct {
	cfg  *config.Config
	open SourceOpener

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates a registry using the given source opener.
func NewRegistry(cfg *config.Config, open SourceOpener) *Registry {
	return &Registry{
		cfg:     cfg,
		open:    open,
		handles: make(map[string]*Handle),
	}
}

// Acquire returns a shared handle for cameraID, opening the device and
// starting its grabber on first use. When a teardown for the same id is in
// flight, Acquire waits for it to finish and then opens fresh — a handle is
// never returned after its resource has been closed.
func (r *Registry) Acquire(cameraID string) (*Handle, error) {
	for {
		r.mu.Lock()
		if h, ok := r.handles[cameraID]; ok {
			if h.readers > 0 {
				h.readers++
				readers := h.readers
				r.mu.Unlock()
				log.Debug().Str("camera_id", cameraID).Int("readers", readers).Msg("Camera handle shared")
				return h, nil
			}

			// Last reader just left and teardown is still running.
			done := h.done
			r.mu.Unlock()
			<-done
			continue
		}

		source, err := r.open(cameraID, r.cfg)
		if err != nil {
			r.mu.Unlock()
			log.Error().Err(err).Str("camera_id", cameraID).Msg("Failed to open camera")
			return nil, fmt.Errorf("%w: %s", ErrCameraUnavailable, cameraID)
		}

		ctx, cancel := context.WithCancel(context.Background())
		h := &Handle{
			cameraID: cameraID,
			source:   source,
			readers:  1,
			cancel:   cancel,
			done:     make(chan struct{}),
		}
		r.handles[cameraID] = h
		r.mu.Unlock()

		go h.runGrabber(ctx, r.cfg.FrameInterval)

		log.Info().Str("camera_id", cameraID).Msg("Camera opened, frame grabber started")
		return h, nil
	}
}

// Release drops one reader. When the count reaches zero the grabber is
// cancelled and the handle removed from the pool once the capture resource
// has been closed. Releasing an already-torn-down handle is a no-op.
func (r *Registry) Release(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if h.readers <= 0 {
		r.mu.Unlock()
		return
	}
	h.readers--
	if h.readers > 0 {
		readers := h.readers
		r.mu.Unlock()
		log.Debug().Str("camera_id", h.cameraID).Int("readers", readers).Msg("Camera handle released")
		return
	}
	h.cancel()
	r.mu.Unlock()

	// Teardown completes asynchronously; the handle stays in the map with
	// zero readers so a racing Acquire waits instead of sharing a dead handle.
	go func() {
		<-h.done
		r.mu.Lock()
		if cur, ok := r.handles[h.cameraID]; ok && cur == h {
			delete(r.handles, h.cameraID)
		}
		r.mu.Unlock()
		log.Info().Str("camera_id", h.cameraID).Msg("Camera closed")
	}()
}

// OpenCount reports how many camera handles are currently open.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
