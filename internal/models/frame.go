package models

import "time"

// Frame is one captured video frame in BGR byte layout (3 bytes per pixel,
// row-major). Data is owned by the frame; producers hand out fresh slices so
// readers never observe a torn frame.
type Frame struct {
	CameraID  string
	Data      []byte
	Width     int
	Height    int
	Seq       int64
	Timestamp time.Time
}

// Empty reports whether the frame carries no pixel data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// MatchResult is the per-detected-face output of one matching pass.
// PersonID is nil for faces that did not clear both acceptance gates.
// BBox is [x0, y0, x1, y1] in source-frame coordinates.
type MatchResult struct {
	PersonID   *int64  `json:"person_id"`
	Name       string  `json:"name,omitempty"`
	Role       string  `json:"role,omitempty"`
	DisplayID  string  `json:"id,omitempty"`
	BBox       [4]int  `json:"bbox"`
	Confidence float64 `json:"confidence"`
	Crop       []byte  `json:"crop,omitempty"`
}

// FramePayload is published to the stream transport for every processed frame.
type FramePayload struct {
	Type      string        `json:"type"`
	CameraID  string        `json:"camera_id"`
	Frame     []byte        `json:"frame"`
	Matches   []MatchResult `json:"detected_faces"`
	Timestamp time.Time     `json:"timestamp"`
}

// StreamNotice is published instead of frames when a camera cannot be served.
type StreamNotice struct {
	Type     string `json:"type"`
	CameraID string `json:"camera_id"`
	Message  string `json:"message"`
}

// PresenceEventType enumerates presence transitions.
type PresenceEventType string

const (
	PresenceEntered PresenceEventType = "entered"
	PresenceExited  PresenceEventType = "exited"
)

// PresenceEvent is published on every presence change.
type PresenceEvent struct {
	Event     PresenceEventType `json:"event"`
	PersonID  int64             `json:"person_id"`
	Timestamp time.Time         `json:"timestamp"`
}

// MessagePublisher abstracts the outward pub/sub transport so services never
// depend on a concrete broker.
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}
