package main

import (
	"fmt"

	"github.com/cjeanneret/SnapGo/internal/capture"
	"github.com/cjeanneret/SnapGo/internal/catalog"
	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/flow"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/webcam"
	"github.com/cjeanneret/SnapGo/internal/permission"
	"github.com/cjeanneret/SnapGo/internal/queue"
	"github.com/cjeanneret/SnapGo/internal/storage"
	"github.com/cjeanneret/SnapGo/internal/web"
)

// app holds the collaborators shared by the commands that take photos.
type app struct {
	cfg       *config.Config
	gpio      gpio.Driver
	camera    camera.Camera
	queue     *queue.Serial
	catalog   *catalog.Catalog
	session   *capture.Session
	grants    *permission.Store
	outputDir string
}

// newApp opens the hardware, storage and catalog. The caller must call Close.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, grants: permission.NewStore(cfg.Permission.StorePath)}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open() error {
	cfg := a.cfg
	var err error
	if cfg.Camera.Type == config.CameraTetheredGPIO {
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		debug.Step(1, "Initializing GPIO driver")
		if a.gpio, err = gpio.NewDriver(cfg.Defaults.MockGPIO); err != nil {
			return fmt.Errorf("init GPIO failed: %w", err)
		}
	}

	debug.Step(2, "Initializing camera")
	if a.camera, err = newCameraFromConfig(a.gpio, cfg); err != nil {
		return fmt.Errorf("init camera failed: %w", err)
	}
	debug.PrintStruct("Camera config", cfg.Camera)

	debug.Step(3, "Resolving output location")
	a.outputDir = storage.ResolveOutputLocation(storage.Dirs{
		ExternalMedia: cfg.Storage.ExternalMediaDirs,
		AppName:       cfg.Storage.AppName,
		Files:         cfg.Storage.FilesDir,
	})
	debug.Value("Output dir", a.outputDir)

	debug.Step(4, "Opening capture catalog")
	if a.catalog, err = catalog.Open(cfg.Storage.CatalogPath); err != nil {
		return fmt.Errorf("open catalog failed: %w", err)
	}

	a.queue = queue.NewSerial("capture", cfg.Defaults.QueueDepth)
	a.session = capture.NewSession(a.camera, a.queue, a.outputDir, a.catalog)
	return nil
}

// controller creates the view-state controller asking through prompter.
func (a *app) controller(prompter permission.Prompter) *flow.Controller {
	src := permission.NewStoreSource(permission.Camera, a.grants, prompter)
	return flow.NewController(src, a.session)
}

// Close waits for queued captures, then releases everything in reverse order.
func (a *app) Close() {
	if a.queue != nil {
		a.queue.Shutdown()
	}
	if a.camera != nil {
		if err := a.camera.Close(); err != nil {
			debug.Errorf(err, "closing camera failed")
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			debug.Errorf(err, "closing catalog failed")
		}
	}
	if a.gpio != nil {
		if err := a.gpio.Close(); err != nil {
			debug.Errorf(err, "closing GPIO driver failed")
		}
	}
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(g gpio.Driver, cfg *config.Config) (camera.Camera, error) {
	switch cfg.Camera.Type {
	case config.CameraMock:
		return camera.NewMock(cfg.Camera.WidthPx, cfg.Camera.HeightPx), nil
	case config.CameraWebcam:
		w, err := webcam.Open(cfg.Camera.DeviceID, cfg.Camera.WidthPx, cfg.Camera.HeightPx)
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.CameraTetheredGPIO:
		if g == nil {
			return nil, fmt.Errorf("%s needs a GPIO driver", cfg.Camera.Type)
		}
		t, err := camera.NewTetheredGPIO(
			g,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
			cfg.Camera.TetherDir,
		)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// newPrompter maps permission.prompt to a Prompter. The bridge is non-nil
// only for the web prompt.
func newPrompter(kind string, b *web.StatusBroadcaster) (permission.Prompter, *web.PromptBridge) {
	switch kind {
	case config.PromptTerminal:
		return permission.NewTerminalPrompter(), nil
	case config.PromptGrant:
		return permission.Static(true), nil
	case config.PromptDeny:
		return permission.Static(false), nil
	default:
		bridge := web.NewPromptBridge(b)
		return bridge, bridge
	}
}
