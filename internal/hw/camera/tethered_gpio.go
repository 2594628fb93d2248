package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
)

// DefaultSettleDelay is how long a new file in the tether directory must stay
// unchanged before it is considered complete.
const DefaultSettleDelay = 300 * time.Millisecond

// TetheredGPIO drives a DSLR through its 3-pin remote connector and picks
// up the resulting file from a tether directory the camera (or a tethering
// daemon) writes into:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Capture sequence:
// 1. FOCUS to LOW, wait for autofocus
// 2. SHUTTER to LOW, hold
// 3. SHUTTER and FOCUS back to HIGH
// 4. Wait for a new image file in the tether directory to settle
// 5. Move it into the output directory
type TetheredGPIO struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
	settleDelay  time.Duration
	tetherDir    string
	watcher      *fsnotify.Watcher
}

// NewTetheredGPIO creates a GPIO-triggered camera watching tetherDir.
func NewTetheredGPIO(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration, tetherDir string) (*TetheredGPIO, error) {
	if err := os.MkdirAll(tetherDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tether dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(tetherDir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", tetherDir, err)
	}

	// Lines are HIGH (inactive) until a shot.
	for _, pin := range []int{focusPin, shutterPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			w.Close()
			return nil, fmt.Errorf("setup pin %d: %w", pin, err)
		}
		if err := g.WritePin(pin, gpio.High); err != nil {
			w.Close()
			return nil, fmt.Errorf("release pin %d: %w", pin, err)
		}
	}

	return &TetheredGPIO{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
		settleDelay:  DefaultSettleDelay,
		tetherDir:    tetherDir,
		watcher:      w,
	}, nil
}

// Capture triggers a shot and waits for the camera to deliver the file.
// There is no timeout: only ctx ends the wait.
func (t *TetheredGPIO) Capture(ctx context.Context, dir string) (string, error) {
	t.drain()

	if err := t.trigger(); err != nil {
		return "", fmt.Errorf("trigger shutter: %w", err)
	}

	src, err := t.awaitFile(ctx)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(src)))
	if err := moveFile(src, dst); err != nil {
		return "", fmt.Errorf("move %s: %w", src, err)
	}
	debug.Verbose("Camera: moved %s -> %s", src, dst)
	return dst, nil
}

// trigger runs FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (t *TetheredGPIO) trigger() error {
	debug.Printf("Camera: triggering shot (focus=%d, shutter=%d)", t.focusPin, t.shutterPin)

	if err := t.gpio.WritePin(t.focusPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(t.focusDelay)

	if err := t.gpio.WritePin(t.shutterPin, gpio.Low); err != nil {
		_ = t.gpio.WritePin(t.focusPin, gpio.High)
		return err
	}
	time.Sleep(t.shutterDelay)

	if err := t.gpio.WritePin(t.shutterPin, gpio.High); err != nil {
		return err
	}
	return t.gpio.WritePin(t.focusPin, gpio.High)
}

// drain discards events left over from earlier shots.
func (t *TetheredGPIO) drain() {
	for {
		select {
		case <-t.watcher.Events:
		case <-t.watcher.Errors:
		default:
			return
		}
	}
}

func (t *TetheredGPIO) awaitFile(ctx context.Context) (string, error) {
	var pending string
	var settled <-chan time.Time
	for {
		select {
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return "", errors.New("tether watcher closed")
			}
			if !isImage(ev.Name) || !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			debug.Trace("Camera: tether event %s", ev)
			pending = ev.Name
			settled = time.After(t.settleDelay)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return "", errors.New("tether watcher closed")
			}
			return "", fmt.Errorf("tether watcher: %w", err)
		case <-settled:
			return pending, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Close stops watching the tether directory and releases the lines.
func (t *TetheredGPIO) Close() error {
	_ = t.gpio.WritePin(t.shutterPin, gpio.High)
	_ = t.gpio.WritePin(t.focusPin, gpio.High)
	return t.watcher.Close()
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
