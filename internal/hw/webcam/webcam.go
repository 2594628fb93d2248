// Package webcam implements a camera on top of an OpenCV video device.
package webcam

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrNoFrame is returned when the device delivers an empty frame.
var ErrNoFrame = errors.New("webcam: no frame read from device")

// Webcam grabs stills and preview frames from a V4L2/UVC device.
// Capture and PreviewFrame share the device and are serialized.
type Webcam struct {
	mu     sync.Mutex
	device int
	vc     *gocv.VideoCapture
	frame  gocv.Mat
}

// Open opens device id and requests a width x height stream. The driver
// may pick the nearest supported size.
func Open(id, width, height int) (*Webcam, error) {
	vc, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, fmt.Errorf("open video device %d: %w", id, err)
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	debug.Info("Using webcam device %d", id)
	debug.Verbose("Webcam: requested %dx%d, got %.0fx%.0f", width, height,
		vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight))

	return &Webcam{device: id, vc: vc, frame: gocv.NewMat()}, nil
}

func (w *Webcam) readLocked() error {
	if ok := w.vc.Read(&w.frame); !ok || w.frame.Empty() {
		return fmt.Errorf("device %d: %w", w.device, ErrNoFrame)
	}
	return nil
}

// Capture writes the next frame into dir as JPEG.
func (w *Webcam) Capture(ctx context.Context, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readLocked(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+".jpg")
	if ok := gocv.IMWrite(path, w.frame); !ok {
		return "", fmt.Errorf("webcam: failed to write %s", path)
	}
	debug.Verbose("Camera: webcam frame saved to %s", path)
	return path, nil
}

// PreviewFrame returns the next frame encoded as JPEG.
func (w *Webcam) PreviewFrame() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readLocked(); err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, w.frame)
	if err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame.Close()
	return w.vc.Close()
}
