package camera

import (
	"context"
	"io"
)

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (GPIO, USB, synthetic, etc.).
type Camera interface {
	// Capture takes one photo, stores it in dir and returns its path.
	// Callers serialize calls; implementations need not be goroutine-safe
	// for concurrent captures.
	Capture(ctx context.Context, dir string) (string, error)
	io.Closer
}

// Previewer is implemented by cameras that can produce live preview frames.
type Previewer interface {
	// PreviewFrame returns the current frame encoded as JPEG.
	PreviewFrame() ([]byte, error)
}
