package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 << 10

// Camera types understood by the application.
const (
	CameraMock         = "mock"
	CameraWebcam       = "webcam"
	CameraTetheredGPIO = "tethered_gpio"
)

// Permission prompt surfaces.
const (
	PromptWeb      = "web"
	PromptTerminal = "terminal"
	PromptGrant    = "grant"
	PromptDeny     = "deny"
)

// CameraConfig describes how to communicate with the camera.
// Type selects a concrete implementation (e.g., "webcam").
type CameraConfig struct {
	Type           string `yaml:"type"`             // "mock", "webcam" or "tethered_gpio"
	DeviceID       int    `yaml:"device_id"`        // webcam: OpenCV device index
	FocusPin       int    `yaml:"focus_pin"`        // tethered_gpio: GPIO pin for FOCUS line
	ShutterPin     int    `yaml:"shutter_pin"`      // tethered_gpio: GPIO pin for SHUTTER line
	FocusDelayMs   int    `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int    `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	TetherDir      string `yaml:"tether_dir"`       // tethered_gpio: directory where the camera drops files
	WidthPx        int    `yaml:"width_px"`         // mock/webcam frame width
	HeightPx       int    `yaml:"height_px"`        // mock/webcam frame height
}

// StorageConfig describes where captured images are persisted.
type StorageConfig struct {
	AppName           string   `yaml:"app_name"`            // subdirectory created under the external media dir
	ExternalMediaDirs []string `yaml:"external_media_dirs"` // preferred locations, first one wins
	FilesDir          string   `yaml:"files_dir"`           // internal fallback location
	CatalogPath       string   `yaml:"catalog_path"`        // SQLite capture catalog; empty = <files_dir>/captures.db
}

// PermissionConfig describes how camera access is granted.
type PermissionConfig struct {
	StorePath string `yaml:"store_path"` // TOML file holding persisted answers
	Prompt    string `yaml:"prompt"`     // "web", "terminal", "grant" or "deny"
}

// DisplayConfig is the box the captured photo is fitted into.
type DisplayConfig struct {
	MaxWidthPx  int `yaml:"max_width_px"`
	MaxHeightPx int `yaml:"max_height_px"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel   int      `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO     bool     `yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	QueueDepth   int      `yaml:"queue_depth"`   // pending capture requests accepted by the capture queue
	PreviewFPS   int      `yaml:"preview_fps"`   // live preview frame rate
	WebPort      int      `yaml:"web_port"`      // default port for `run`
	AllowOrigins []string `yaml:"allow_origins"` // CORS origins for the web UI
}

// Config aggregates all application configuration.
type Config struct {
	Camera     CameraConfig     `yaml:"camera"`
	Storage    StorageConfig    `yaml:"storage"`
	Permission PermissionConfig `yaml:"permission"`
	Display    DisplayConfig    `yaml:"display"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files that live directly in a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be in a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
// Environment variables (SNAPGO_*) override values from the file.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case CameraMock, CameraWebcam, CameraTetheredGPIO:
	default:
		return fmt.Errorf("unsupported camera.type: %s", c.Camera.Type)
	}
	if c.Camera.Type == CameraTetheredGPIO && c.Camera.TetherDir == "" {
		return fmt.Errorf("camera.tether_dir is required for %s", CameraTetheredGPIO)
	}
	switch c.Permission.Prompt {
	case "", PromptWeb, PromptTerminal, PromptGrant, PromptDeny:
	default:
		return fmt.Errorf("unsupported permission.prompt: %s", c.Permission.Prompt)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if strings.ContainsAny(c.Storage.AppName, `/\`) {
		return fmt.Errorf("storage.app_name must not contain path separators: %q", c.Storage.AppName)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Storage.AppName == "" {
		c.Storage.AppName = "SnapGo"
	}
	if c.Storage.FilesDir == "" {
		c.Storage.FilesDir = filepath.Join(".", "data")
	}
	if c.Storage.CatalogPath == "" {
		c.Storage.CatalogPath = filepath.Join(c.Storage.FilesDir, "captures.db")
	}
	if c.Permission.StorePath == "" {
		c.Permission.StorePath = filepath.Join(c.Storage.FilesDir, "permissions.toml")
	}
	if c.Permission.Prompt == "" {
		c.Permission.Prompt = PromptWeb
	}
	if c.Camera.FocusDelayMs <= 0 {
		c.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.Camera.ShutterDelayMs <= 0 {
		c.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}
	if c.Camera.WidthPx <= 0 {
		c.Camera.WidthPx = 1280
	}
	if c.Camera.HeightPx <= 0 {
		c.Camera.HeightPx = 720
	}
	if c.Display.MaxWidthPx <= 0 {
		c.Display.MaxWidthPx = 1920
	}
	if c.Display.MaxHeightPx <= 0 {
		c.Display.MaxHeightPx = 1080
	}
	if c.Defaults.QueueDepth <= 0 {
		c.Defaults.QueueDepth = 1
	}
	if c.Defaults.PreviewFPS <= 0 {
		c.Defaults.PreviewFPS = 10
	}
	if c.Defaults.WebPort <= 0 {
		c.Defaults.WebPort = 8080
	}
}

// applyEnv overrides file values with SNAPGO_* environment variables.
func applyEnv(c *Config) error {
	c.Camera.Type = getEnvOrDefault("SNAPGO_CAMERA_TYPE", c.Camera.Type)
	c.Camera.TetherDir = getEnvOrDefault("SNAPGO_TETHER_DIR", c.Camera.TetherDir)
	c.Storage.FilesDir = getEnvOrDefault("SNAPGO_FILES_DIR", c.Storage.FilesDir)
	if dir := os.Getenv("SNAPGO_EXTERNAL_MEDIA_DIR"); dir != "" {
		c.Storage.ExternalMediaDirs = []string{dir}
	}
	c.Permission.Prompt = getEnvOrDefault("SNAPGO_PERMISSION_PROMPT", c.Permission.Prompt)
	level, err := getEnvIntOrDefault("SNAPGO_DEBUG_LEVEL", c.Defaults.DebugLevel)
	if err != nil {
		return err
	}
	c.Defaults.DebugLevel = level
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) (int, error) {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envVar, valStr, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", envVar, valStr)
	}
	return val, nil
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// PreviewInterval returns the delay between two live preview frames.
func (c *Config) PreviewInterval() time.Duration {
	return time.Second / time.Duration(c.Defaults.PreviewFPS)
}
