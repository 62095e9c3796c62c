package camera

import (
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
)

// VideoSource is one open capture device or stream.
type VideoSource interface {
	// Read returns the next frame. A failed read returns an error and the
	// caller decides whether it is fatal.
	Read() (models.Frame, error)
	Close() error
}

// SourceOpener opens the underlying capture resource for a camera id.
// Injected into the registry so tests run without hardware.
type SourceOpener func(cameraID string, cfg *config.Config) (VideoSource, error)

type gocvSource struct {
	cameraID string
	cap      *gocv.VideoCapture
	mat      gocv.Mat
	seq      int64
}

// OpenGocvSource opens a camera via OpenCV. Numeric ids select a local
// device, anything else is treated as a stream URL. Resolution and FPS are
// requested, not required; unsupported values fall back to device defaults.
func OpenGocvSource(cameraID string, cfg *config.Config) (VideoSource, error) {
	var cap *gocv.VideoCapture
	var err error

	if idx, convErr := strconv.Atoi(cameraID); convErr == nil {
		cap, err = gocv.OpenVideoCapture(idx)
	} else {
		cap, err = gocv.OpenVideoCapture(cameraID)
	}
	if err != nil {
		return nil, fmt.Errorf("opening capture %s: %w", cameraID, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("capture %s is not opened", cameraID)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.CaptureWidth))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.CaptureHeight))
	cap.Set(gocv.VideoCaptureFPS, float64(cfg.CaptureFPS))
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	return &gocvSource{cameraID: cameraID, cap: cap, mat: gocv.NewMat()}, nil
}

func (s *gocvSource) Read() (models.Frame, error) {
	if ok := s.cap.Read(&s.mat); !ok {
		return models.Frame{}, fmt.Errorf("read failed on camera %s", s.cameraID)
	}
	if s.mat.Empty() {
		return models.Frame{}, fmt.Errorf("empty frame from camera %s", s.cameraID)
	}

	s.seq++
	// ToBytes copies, so the returned frame does not alias the capture buffer.
	return models.Frame{
		CameraID:  s.cameraID,
		Data:      s.mat.ToBytes(),
		Width:     s.mat.Cols(),
		Height:    s.mat.Rows(),
		Seq:       s.seq,
		Timestamp: time.Now(),
	}, nil
}

func (s *gocvSource) Close() error {
	s.mat.Close()
	return s.cap.Close()
}
