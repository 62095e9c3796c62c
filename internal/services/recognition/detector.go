package recognition

import (
	"image"

	"attendance-worker-go/internal/models"
)

// Detector finds faces and computes their feature vectors. Locate and
// Describe are split so that too-small boxes can be rejected before the
// expensive descriptor pass.
type Detector interface {
	// Locate returns face bounding boxes in the coordinates of the given frame.
	Locate(frame models.Frame) ([]image.Rectangle, error)

	// Describe computes one feature vector per box, in order.
	Describe(frame models.Frame, boxes []image.Rectangle) ([][]float32, error)
}

// ImageOps covers the pixel-level operations the matching pipeline needs.
// The production implementation is backed by OpenCV; tests supply fakes.
type ImageOps interface {
	// Downscale resizes the frame to the target width, preserving aspect ratio.
	Downscale(frame models.Frame, targetWidth int) (models.Frame, error)

	// EncodeJPEG encodes the whole frame as JPEG.
	EncodeJPEG(frame models.Frame, quality int) ([]byte, error)

	// CropJPEG encodes the boxed region as JPEG. When maxSide > 0 the crop
	// is resized to a maxSide square first.
	CropJPEG(frame models.Frame, box image.Rectangle, maxSide, quality int) ([]byte, error)
}
