package camera

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/models"
)

// Handle is one shared, reader-counted camera. The registry guarantees at
// most one live Handle per camera id; readers share the latest-frame slot
// fed by the background grabber loop.
type Handle struct {
	cameraID string
	source   VideoSource

	mu     sync.RWMutex
	latest models.Frame
	has    bool

	readers int // guarded by the registry mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// ID returns the camera identifier.
func (h *Handle) ID() string {
	return h.cameraID
}

// LatestFrame returns the most recently grabbed frame. The bool is false
// until the grabber has produced its first frame.
func (h *Handle) LatestFrame() (models.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.has
}

// runGrabber continuously refreshes the latest-frame slot until cancelled.
// A single failed read keeps the previous frame visible and is not fatal.
func (h *Handle) runGrabber(ctx context.Context, interval time.Duration) {
	defer close(h.done)
	defer h.source.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("camera_id", h.cameraID).Msg("Frame grabber panic recovered")
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("camera_id", h.cameraID).Msg("Frame grabber stopped")
			return
		case <-ticker.C:
			frame, err := h.source.Read()
			if err != nil {
				failures++
				log.Warn().Err(err).Str("camera_id", h.cameraID).Int("failures", failures).
					Msg("Frame read failed, keeping previous frame")
				continue
			}

			h.mu.Lock()
			h.latest = frame
			h.has = true
			h.mu.Unlock()
		}
	}
}
