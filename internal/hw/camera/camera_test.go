package camera

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification. onWrite, if set, is
// called after every write (used to emulate the camera dropping a file).
type recordingDriver struct {
	mu      sync.Mutex
	calls   []gpioCall
	onWrite func(pin int, level gpio.Level)
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.mu.Lock()
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	hook := d.onWrite
	d.mu.Unlock()
	if hook != nil {
		hook(pin, level)
	}
	return nil
}

func (d *recordingDriver) ReadPin(pin int) (gpio.Level, error) {
	return gpio.Low, nil
}

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func (d *recordingDriver) reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

func newTestTethered(t *testing.T, drv *recordingDriver) (*TetheredGPIO, string) {
	t.Helper()
	tether := t.TempDir()
	cam, err := NewTetheredGPIO(drv, 24, 25, time.Microsecond, time.Microsecond, tether)
	if err != nil {
		t.Fatalf("NewTetheredGPIO: %v", err)
	}
	cam.settleDelay = 20 * time.Millisecond
	t.Cleanup(func() { cam.Close() })
	return cam, tether
}

func TestTetheredGPIO_PinsInitializedHigh(t *testing.T) {
	drv := &recordingDriver{}
	newTestTethered(t, drv)

	focusHigh, shutterHigh := false, false
	for _, c := range drv.writeCalls() {
		if c.pin == 24 && c.level == gpio.High {
			focusHigh = true
		}
		if c.pin == 25 && c.level == gpio.High {
			shutterHigh = true
		}
	}
	if !focusHigh {
		t.Error("focus pin should be initialized to HIGH")
	}
	if !shutterHigh {
		t.Error("shutter pin should be initialized to HIGH")
	}
}

func TestTetheredGPIO_CaptureSequenceAndFileMove(t *testing.T) {
	drv := &recordingDriver{}
	cam, tether := newTestTethered(t, drv)
	drv.reset()

	// The "camera" writes its file when the shutter is released.
	drv.onWrite = func(pin int, level gpio.Level) {
		if pin == 25 && level == gpio.High {
			os.WriteFile(filepath.Join(tether, "DSC_0001.JPG"), []byte("jpeg"), 0o644)
		}
	}

	out := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path, err := cam.Capture(ctx, out)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if filepath.Dir(path) != out {
		t.Errorf("captured file in %s, want %s", filepath.Dir(path), out)
	}
	if filepath.Ext(path) != ".jpg" {
		t.Errorf("extension = %q, want .jpg", filepath.Ext(path))
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "jpeg" {
		t.Errorf("moved file content = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(tether, "DSC_0001.JPG")); !os.IsNotExist(err) {
		t.Error("file should have been moved out of the tether dir")
	}

	expected := []struct {
		pin   int
		level gpio.Level
		desc  string
	}{
		{24, gpio.Low, "focus LOW (activate AF)"},
		{25, gpio.Low, "shutter LOW (trigger)"},
		{25, gpio.High, "shutter HIGH (release)"},
		{24, gpio.High, "focus HIGH (release)"},
	}
	writes := drv.writeCalls()
	if len(writes) != len(expected) {
		t.Fatalf("expected %d writes, got %d: %v", len(expected), len(writes), writes)
	}
	for i, exp := range expected {
		if writes[i].pin != exp.pin || writes[i].level != exp.level {
			t.Errorf("step %d (%s): pin=%d level=%v, want pin=%d level=%v",
				i, exp.desc, writes[i].pin, writes[i].level, exp.pin, exp.level)
		}
	}
}

func TestTetheredGPIO_IgnoresNonImages(t *testing.T) {
	drv := &recordingDriver{}
	cam, tether := newTestTethered(t, drv)

	drv.onWrite = func(pin int, level gpio.Level) {
		if pin == 25 && level == gpio.High {
			os.WriteFile(filepath.Join(tether, "camera.log"), []byte("x"), 0o644)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := cam.Capture(ctx, t.TempDir()); err != context.DeadlineExceeded {
		t.Errorf("Capture error = %v, want context.DeadlineExceeded", err)
	}
}

func TestTetheredGPIO_ImplementsCamera(t *testing.T) {
	var _ Camera = (*TetheredGPIO)(nil)
}

func TestMock_CaptureWritesDecodableJPEG(t *testing.T) {
	cam := NewMock(64, 48)
	dir := t.TempDir()

	first, err := cam.Capture(context.Background(), dir)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	second, err := cam.Capture(context.Background(), dir)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if first == second {
		t.Error("each capture should produce a new file")
	}

	img, err := imaging.Open(first)
	if err != nil {
		t.Fatalf("decode captured frame: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("frame size = %dx%d, want 64x48", b.Dx(), b.Dy())
	}
}

func TestMock_CaptureHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMock(8, 8).Capture(ctx, t.TempDir()); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMock_PreviewFrame(t *testing.T) {
	var _ Previewer = (*Mock)(nil)

	data, err := NewMock(32, 16).PreviewFrame()
	if err != nil {
		t.Fatalf("PreviewFrame: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if format != "jpeg" || cfg.Width != 32 || cfg.Height != 16 {
		t.Errorf("preview = %s %dx%d, want jpeg 32x16", format, cfg.Width, cfg.Height)
	}
}
