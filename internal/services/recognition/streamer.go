package recognition

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
	"attendance-worker-go/internal/services/camera"
)

// Streamer runs one viewer's matching pass: it reads the shared latest
// frame, matches faces, and publishes the annotated frame plus match list
// to the stream transport.
type Streamer struct {
	cfg       *config.Config
	matcher   *Matcher
	ops       ImageOps
	publisher models.MessagePublisher
}

// NewStreamer wires a streamer for the given matcher and transport.
func NewStreamer(cfg *config.Config, matcher *Matcher, ops ImageOps, publisher models.MessagePublisher) *Streamer {
	return &Streamer{
		cfg:       cfg,
		matcher:   matcher,
		ops:       ops,
		publisher: publisher,
	}
}

// FrameSubject returns the transport subject for one camera's frames.
func (s *Streamer) FrameSubject(cameraID string) string {
	return fmt.Sprintf("%s.%s", s.cfg.FrameSubjectPrefix, cameraID)
}

// Stream processes frames from the handle until the context is cancelled.
// Matching errors are logged and the loop continues with the next frame.
func (s *Streamer) Stream(ctx context.Context, h *camera.Handle) error {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("camera_id", h.ID()).Msg("Stream loop panic recovered")
		}
	}()

	subject := s.FrameSubject(h.ID())
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	var lastSeq int64 = -1
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("camera_id", h.ID()).Msg("Viewer stream stopped")
			return nil
		case <-ticker.C:
			frame, ok := h.LatestFrame()
			if !ok || frame.Seq == lastSeq {
				continue
			}
			lastSeq = frame.Seq

			matches, err := s.matcher.ProcessFrame(ctx, frame)
			if err != nil {
				log.Warn().Err(err).Str("camera_id", h.ID()).Msg("Matching pass failed")
				continue
			}

			encoded, err := s.ops.EncodeJPEG(frame, s.cfg.StreamQuality)
			if err != nil {
				log.Warn().Err(err).Str("camera_id", h.ID()).Msg("Frame encode failed")
				continue
			}

			payload := models.FramePayload{
				Type:      "frame",
				CameraID:  h.ID(),
				Frame:     encoded,
				Matches:   matches,
				Timestamp: frame.Timestamp,
			}
			if err := s.publisher.Publish(subject, payload); err != nil {
				log.Warn().Err(err).Str("camera_id", h.ID()).Msg("Frame publish failed")
			}
		}
	}
}

// PublishUnavailable tells viewers on the frame subject that the camera
// could not be served, instead of leaving a silently empty stream.
func (s *Streamer) PublishUnavailable(cameraID string, reason error) {
	notice := models.StreamNotice{
		Type:     "error",
		CameraID: cameraID,
		Message:  fmt.Sprintf("camera %s unavailable: %v", cameraID, reason),
	}
	if err := s.publisher.Publish(s.FrameSubject(cameraID), notice); err != nil {
		log.Warn().Err(err).Str("camera_id", cameraID).Msg("Unavailable notice publish failed")
	}
}
