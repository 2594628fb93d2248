package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Mock is a synthetic camera for development on a PC or in tests. Every
// frame is a solid colour that changes between shots.
type Mock struct {
	width, height int

	mu    sync.Mutex
	shots int
}

// NewMock creates a synthetic camera producing width x height frames.
func NewMock(width, height int) *Mock {
	debug.Info("Using MOCK camera (development mode)")
	return &Mock{width: width, height: height}
}

var palette = []color.NRGBA{
	{R: 0xd9, G: 0x48, B: 0x3b, A: 0xff},
	{R: 0x3b, G: 0x7d, B: 0xd9, A: 0xff},
	{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff},
	{R: 0xf2, G: 0xb1, B: 0x34, A: 0xff},
}

func (m *Mock) frame() image.Image {
	m.mu.Lock()
	c := palette[m.shots%len(palette)]
	m.mu.Unlock()
	return imaging.New(m.width, m.height, c)
}

// Capture writes a JPEG frame into dir.
func (m *Mock) Capture(ctx context.Context, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, uuid.NewString()+".jpg")
	if err := imaging.Save(m.frame(), path, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("save mock frame: %w", err)
	}

	m.mu.Lock()
	m.shots++
	m.mu.Unlock()
	debug.Verbose("Camera: mock frame saved to %s", path)
	return path, nil
}

// PreviewFrame returns the current frame as JPEG.
func (m *Mock) PreviewFrame() ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, m.frame(), imaging.JPEG, imaging.JPEGQuality(70)); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Mock) Close() error { return nil }
