// Package media turns captured image references into something a screen
// can show.
package media

import (
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/SnapGo/internal/capture"
	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrNothingToRender means the reference does not point at a readable
// image. Callers draw nothing.
var ErrNothingToRender = errors.New("media: nothing to render")

// DisplayJPEGQuality is the quality of rendered photos.
const DisplayJPEGQuality = 85

// Renderer fits photos into the display box.
type Renderer struct {
	maxWidth, maxHeight int
}

// NewRenderer creates a renderer for a maxWidth x maxHeight display.
func NewRenderer(maxWidth, maxHeight int) *Renderer {
	return &Renderer{maxWidth: maxWidth, maxHeight: maxHeight}
}

// Render writes the photo behind ref to w as JPEG, scaled down to fit the
// display. Images already inside the box are not enlarged.
func (r *Renderer) Render(w io.Writer, ref string) error {
	path, err := capture.RefPath(ref)
	if err != nil {
		debug.Verbose("Render: %v", err)
		return fmt.Errorf("%w: %v", ErrNothingToRender, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		debug.Verbose("Render: cannot open %s: %v", path, err)
		return fmt.Errorf("%w: %v", ErrNothingToRender, err)
	}

	b := img.Bounds()
	if r.maxWidth > 0 && r.maxHeight > 0 && (b.Dx() > r.maxWidth || b.Dy() > r.maxHeight) {
		img = imaging.Fit(img, r.maxWidth, r.maxHeight, imaging.Lanczos)
	}
	if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(DisplayJPEGQuality)); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
