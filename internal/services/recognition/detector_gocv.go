package recognition

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
)

const encoderInputSize = 96 // OpenFace nn4.small2 input resolution

// GocvDetector detects faces with a Haar cascade and embeds them with the
// OpenFace Torch network (128-dimensional descriptors). OpenCV handles are
// not safe for concurrent use, so calls are serialized.
type GocvDetector struct {
	mu      sync.Mutex
	cascade gocv.CascadeClassifier
	net     gocv.Net
}

// NewGocvDetector loads the cascade and encoder models from disk.
func NewGocvDetector(cfg *config.Config) (*GocvDetector, error) {
	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cfg.CascadeFile) {
		cascade.Close()
		return nil, fmt.Errorf("loading face cascade %s", cfg.CascadeFile)
	}

	net := gocv.ReadNetFromTorch(cfg.FaceEncoderModel)
	if net.Empty() {
		cascade.Close()
		return nil, fmt.Errorf("loading face encoder model %s", cfg.FaceEncoderModel)
	}

	return &GocvDetector{cascade: cascade, net: net}, nil
}

func (d *GocvDetector) Locate(frame models.Frame) ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	return d.cascade.DetectMultiScale(gray), nil
}

func (d *GocvDetector) Describe(frame models.Frame, boxes []image.Rectangle) ([][]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mat, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	bounds := image.Rect(0, 0, frame.Width, frame.Height)
	vectors := make([][]float32, 0, len(boxes))

	for _, box := range boxes {
		face := mat.Region(box.Intersect(bounds))
		blob := gocv.BlobFromImage(face, 1.0/255.0,
			image.Pt(encoderInputSize, encoderInputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
		face.Close()

		d.net.SetInput(blob, "")
		out := d.net.Forward("")
		blob.Close()

		data, err := out.DataPtrFloat32()
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("reading descriptor: %w", err)
		}
		vec := make([]float32, len(data))
		copy(vec, data)
		out.Close()

		vectors = append(vectors, vec)
	}

	return vectors, nil
}

// Close releases the OpenCV models.
func (d *GocvDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cascade.Close()
	return d.net.Close()
}

func matFromFrame(f models.Frame) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
}
