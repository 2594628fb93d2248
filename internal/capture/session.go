package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/queue"
)

// Result is the outcome of one capture request: either a reference to the
// saved image or the cause of the failure, never both.
type Result struct {
	Ref string
	Err error
}

// Succeeded returns a successful Result.
func Succeeded(ref string) Result { return Result{Ref: ref} }

// Failed returns a failed Result.
func Failed(err error) Result { return Result{Err: err} }

// Recorder is notified of every successful capture (e.g. the catalog).
type Recorder interface {
	Record(ctx context.Context, ref string) error
}

// Session binds a camera to the output location and to the serial queue
// all capture work runs on.
type Session struct {
	camera    camera.Camera
	queue     *queue.Serial
	outputDir string
	recorder  Recorder
}

// NewSession creates a session. recorder may be nil.
func NewSession(c camera.Camera, q *queue.Serial, outputDir string, recorder Recorder) *Session {
	return &Session{
		camera:    c,
		queue:     q,
		outputDir: outputDir,
		recorder:  recorder,
	}
}

// Capture queues one capture request without blocking. The returned channel
// receives exactly one Result and is then closed. Requests run one at a time
// in submission order; an in-flight capture is not cancelled by later
// requests. A full or stopped queue is reported as an error wrapping
// queue.ErrBusy or queue.ErrShutdown, and no channel is returned.
func (s *Session) Capture(ctx context.Context) (<-chan Result, error) {
	out := make(chan Result, 1)
	err := s.queue.Submit(func() {
		out <- s.shoot(ctx)
		close(out)
	})
	if err != nil {
		return nil, fmt.Errorf("submit capture: %w", err)
	}
	return out, nil
}

func (s *Session) shoot(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Failed(err)
	}
	debug.Live("Capture: shooting into %s", s.outputDir)

	path, err := s.camera.Capture(ctx, s.outputDir)
	if err != nil {
		return Failed(err)
	}
	if path == "" {
		return Failed(errors.New("camera returned no file"))
	}

	ref, err := FileRef(path)
	if err != nil {
		return Failed(err)
	}
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, ref); err != nil {
			// The photo exists; a missing catalog entry does not fail the capture.
			debug.Errorf(err, "Capture: recording %s failed", ref)
		}
	}
	return Succeeded(ref)
}

// FileRef turns a filesystem path into a file:// reference.
func FileRef(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve image path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

// RefPath is the inverse of FileRef.
func RefPath(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse image reference: %w", err)
	}
	if u.Scheme != "file" || u.Path == "" {
		return "", fmt.Errorf("unsupported image reference %q", ref)
	}
	return filepath.FromSlash(u.Path), nil
}
