package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Application
	Version     string
	Environment string
	WorkerID    string
	LogLevel    string

	// Cameras started at boot. Each entry is a device index ("0") or a
	// stream URL ("rtsp://...").
	CameraIDs []string

	// Capture
	CaptureWidth  int
	CaptureHeight int
	CaptureFPS    int
	FrameInterval time.Duration

	// Face matching
	WorkingWidth      int     // frames are downscaled to this width before detection
	MinFaceSize       int     // minimum face side in source-frame pixels
	DistanceThreshold float64 // maximum accepted distance between unit vectors
	ConfidenceFloor   float64 // minimum 1-distance required to accept
	SignatureDim      int
	SignatureRefresh  time.Duration

	// Detector models
	CascadeFile      string
	FaceEncoderModel string

	// Presence
	ExitTimeout       time.Duration
	ExitSweepInterval time.Duration
	SnapshotInterval  time.Duration
	SightingQueueSize int

	// Image output
	SnapshotQuality int // stored face crops
	CropQuality     int // per-face crops in the stream payload
	CropSize        int // side of the square stream crop
	StreamQuality   int // full annotated frames

	// Durable store
	DatabaseURL  string
	MaxOpenConns int
	MaxIdleConns int
	SnapshotDir  string

	// NATS (stream transport collaborator)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int

	// Subjects
	FrameSubjectPrefix string
	PresenceSubject    string
	ControlSubject     string

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	return &Config{
		// Application
		Version:     getEnv("VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		WorkerID:    getEnv("WORKER_ID", "attendance-worker-1"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		CameraIDs: getEnvList("CAMERA_IDS", []string{"0"}),

		// Capture
		CaptureWidth:  getEnvInt("CAPTURE_WIDTH", 1280),
		CaptureHeight: getEnvInt("CAPTURE_HEIGHT", 720),
		CaptureFPS:    getEnvInt("CAPTURE_FPS", 30),
		FrameInterval: getEnvDuration("FRAME_INTERVAL", 30*time.Millisecond),

		// Face matching
		WorkingWidth:      getEnvInt("WORKING_WIDTH", 500),
		MinFaceSize:       getEnvInt("MIN_FACE_SIZE", 70),
		DistanceThreshold: getEnvFloat("DISTANCE_THRESHOLD", 0.60),
		ConfidenceFloor:   getEnvFloat("CONFIDENCE_FLOOR", 0.55),
		SignatureDim:      getEnvInt("SIGNATURE_DIM", 128),
		SignatureRefresh:  getEnvDuration("SIGNATURE_REFRESH_INTERVAL", time.Minute),

		// Detector models
		CascadeFile:      getEnv("CASCADE_FILE", "models/haarcascade_frontalface_default.xml"),
		FaceEncoderModel: getEnv("FACE_ENCODER_MODEL", "models/nn4.small2.v1.t7"),

		// Presence
		ExitTimeout:       getEnvDuration("EXIT_TIMEOUT", 3*time.Minute),
		ExitSweepInterval: getEnvDuration("EXIT_SWEEP_INTERVAL", 30*time.Second),
		SnapshotInterval:  getEnvDuration("SNAPSHOT_INTERVAL", 20*time.Second),
		SightingQueueSize: getEnvInt("SIGHTING_QUEUE_SIZE", 64),

		// Image output
		SnapshotQuality: getEnvInt("SNAPSHOT_QUALITY", 95),
		CropQuality:     getEnvInt("CROP_QUALITY", 85),
		CropSize:        getEnvInt("CROP_SIZE", 120),
		StreamQuality:   getEnvInt("STREAM_QUALITY", 80),

		// Durable store
		DatabaseURL:  getEnv("DATABASE_URL", "postgres://localhost:5432/attendance?sslmode=disable"),
		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		SnapshotDir:  getEnv("SNAPSHOT_DIR", "attendance_photos"),

		// NATS
		NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
		NatsConnectTimeout: getEnvDuration("NATS_CONNECT_TIMEOUT", 10*time.Second),
		NatsReconnectWait:  getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		NatsMaxReconnects:  getEnvInt("NATS_MAX_RECONNECTS", -1), // -1 = unlimited

		// Subjects
		FrameSubjectPrefix: getEnv("FRAME_SUBJECT_PREFIX", "attendance.frames"),
		PresenceSubject:    getEnv("PRESENCE_SUBJECT", "attendance.presence"),
		ControlSubject:     getEnv("CONTROL_SUBJECT", "attendance.control"),

		// Graceful Shutdown
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
