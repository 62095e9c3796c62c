// Package helpers holds small gocv-backed utilities shared by the services.
package helpers

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"attendance-worker-go/internal/models"
)

// ImageOps performs frame resizing and JPEG encoding with gocv.
type ImageOps struct{}

func NewImageOps() *ImageOps {
	return &ImageOps{}
}

// Downscale resizes the frame to targetWidth, preserving aspect ratio.
// Frames at or below the target are returned unchanged.
func (o *ImageOps) Downscale(frame models.Frame, targetWidth int) (models.Frame, error) {
	if frame.Width <= targetWidth {
		return frame, nil
	}

	src, err := matFromFrame(frame)
	if err != nil {
		return models.Frame{}, err
	}
	defer src.Close()

	targetHeight := frame.Height * targetWidth / frame.Width
	if targetHeight < 1 {
		targetHeight = 1
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(targetWidth, targetHeight), 0, 0, gocv.InterpolationArea)

	out := frame
	out.Width = targetWidth
	out.Height = targetHeight
	out.Data = dst.ToBytes()
	return out, nil
}

// EncodeJPEG encodes the frame as JPEG at the given quality.
func (o *ImageOps) EncodeJPEG(frame models.Frame, quality int) ([]byte, error) {
	src, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return encodeMat(src, quality)
}

// CropJPEG extracts the box from the frame and encodes it as JPEG. When
// maxSide is positive the crop is resized to a maxSide square first, which
// keeps stream payloads small.
func (o *ImageOps) CropJPEG(frame models.Frame, box image.Rectangle, maxSide, quality int) ([]byte, error) {
	src, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	box = box.Intersect(image.Rect(0, 0, frame.Width, frame.Height))
	if box.Empty() {
		return nil, fmt.Errorf("crop box outside frame bounds")
	}

	region := src.Region(box)
	crop := region.Clone()
	region.Close()

	if maxSide > 0 {
		resized := gocv.NewMat()
		gocv.Resize(crop, &resized, image.Pt(maxSide, maxSide), 0, 0, gocv.InterpolationArea)
		crop.Close()
		crop = resized
	}
	defer crop.Close()

	return encodeMat(crop, quality)
}

func encodeMat(m gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	defer buf.Close()

	data := append([]byte(nil), buf.GetBytes()...)
	return data, nil
}

func matFromFrame(frame models.Frame) (gocv.Mat, error) {
	m, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to build mat from frame: %w", err)
	}
	if m.Empty() {
		m.Close()
		return gocv.Mat{}, fmt.Errorf("empty mat from frame data")
	}
	return m, nil
}
