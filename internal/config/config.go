package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ProjectConfig struct {
	Version int `yaml:"version"`
	Project struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"project"`
	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
	Runtime struct {
		TickRate int    `yaml:"tick_rate"`
		Scene    string `yaml:"scene"`
	} `yaml:"runtime"`
	Canvas  CanvasConfig  `yaml:"canvas"`
	Storage StorageConfig `yaml:"storage"`
	MQTT    struct {
		Enabled     bool   `yaml:"enabled"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Devices map[string]DeviceDefinition `yaml:"devices"`
}

// CanvasConfig holds editor geometry. Sizes are render pixels unless noted.
type CanvasConfig struct {
	CellSize     float64 `yaml:"cell_size"`
	MinZoom      int     `yaml:"min_zoom"`
	MaxZoom      int     `yaml:"max_zoom"`
	NodeWidth    int     `yaml:"node_width"`  // cells
	NodeHeight   int     `yaml:"node_height"` // cells
	SocketRadius float64 `yaml:"socket_radius"`
	ScrollStep   float64 `yaml:"scroll_step"`
	// Margin is extra graph space, in cells, kept around the nodes' bounds.
	Margin         int     `yaml:"margin"`
	ViewportWidth  float64 `yaml:"viewport_width"`
	ViewportHeight float64 `yaml:"viewport_height"`
}

type StorageConfig struct {
	Driver    string `yaml:"driver"`
	ScenesDir string `yaml:"scenes_dir"`
	Codec     string `yaml:"codec"`
	CacheSize int    `yaml:"cache_size"`
}

// DeviceDefinition lists the signals a device accepts.
type DeviceDefinition struct {
	Type    string `yaml:"type"`
	Signals struct {
		Inputs  []string `yaml:"inputs"`
		Outputs []string `yaml:"outputs"`
	} `yaml:"signals"`
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *ProjectConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// TickRate returns ticks per second, defaulting to 60.
func (c *ProjectConfig) TickRate() int {
	if c.Runtime.TickRate <= 0 {
		return 60
	}
	return c.Runtime.TickRate
}

func (c *ProjectConfig) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "devices"
	}
	return c.MQTT.TopicPrefix
}

func (c *ProjectConfig) ClientID() string {
	if c.MQTT.ClientID == "" {
		return "actiongraph-" + c.ProjectID()
	}
	return c.MQTT.ClientID
}

func (c *ProjectConfig) ProjectID() string {
	if c.Project.ID == "" {
		return "default"
	}
	return c.Project.ID
}

func (c CanvasConfig) Cell() float64 {
	if c.CellSize <= 0 {
		return 24
	}
	return c.CellSize
}

// ZoomRange returns the zoom level limits. An unset range is [-6, 4].
func (c CanvasConfig) ZoomRange() (int, int) {
	if c.MinZoom == 0 && c.MaxZoom == 0 {
		return -6, 4
	}
	if c.MinZoom > c.MaxZoom {
		return c.MaxZoom, c.MinZoom
	}
	return c.MinZoom, c.MaxZoom
}

// NodeSize returns the node box in cells.
func (c CanvasConfig) NodeSize() (int, int) {
	w, h := c.NodeWidth, c.NodeHeight
	if w <= 0 {
		w = 6
	}
	if h <= 0 {
		h = 2
	}
	return w, h
}

func (c CanvasConfig) Socket() float64 {
	if c.SocketRadius <= 0 {
		return 8
	}
	return c.SocketRadius
}

func (c CanvasConfig) Scroll() float64 {
	if c.ScrollStep <= 0 {
		return 40
	}
	return c.ScrollStep
}

func (c CanvasConfig) MarginCells() int {
	if c.Margin <= 0 {
		return 8
	}
	return c.Margin
}

// Viewport returns the render area used for headless editor sessions.
func (c CanvasConfig) Viewport() (float64, float64) {
	w, h := c.ViewportWidth, c.ViewportHeight
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 720
	}
	return w, h
}

func (s StorageConfig) DriverName() string {
	if s.Driver == "" {
		return "file"
	}
	return s.Driver
}

func (s StorageConfig) Dir() string {
	if s.ScenesDir == "" {
		return "scenes"
	}
	return s.ScenesDir
}

func (s StorageConfig) CodecName() string {
	if s.Codec == "" {
		return "json"
	}
	return s.Codec
}

func (s StorageConfig) Cache() int {
	if s.CacheSize <= 0 {
		return 32
	}
	return s.CacheSize
}

// Default returns a configuration with every value at its default.
func Default() *ProjectConfig {
	return &ProjectConfig{Version: 1}
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported project.yaml version: %d", cfg.Version)
	}

	switch cfg.Storage.DriverName() {
	case "file", "postgres":
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}

	return &cfg, nil
}

// LoadEnv loads .env files into the process environment. Missing files are ignored;
// variables already set are left alone.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}
