package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/FrameScope/internal/camera"
	"github.com/bryanchriswhite/FrameScope/internal/logger"
	"github.com/bryanchriswhite/FrameScope/internal/mjpeg"
)

// Config represents the application configuration
type Config struct {
	Camera    CameraConfig    `json:"camera" yaml:"camera" mapstructure:"camera"`
	Stream    StreamConfig    `json:"stream" yaml:"stream" mapstructure:"stream"`
	Processor ProcessorConfig `json:"processor" yaml:"processor" mapstructure:"processor"`
	Display   DisplayConfig   `json:"display" yaml:"display" mapstructure:"display"`
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	LogLevel  string          `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool            `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// CameraConfig describes the camera endpoint, credentials and the settings
// pushed to it before streaming.
type CameraConfig struct {
	Host      string `json:"host" yaml:"host" mapstructure:"host"`
	Port      int    `json:"port" yaml:"port" mapstructure:"port"`
	Username  string `json:"username" yaml:"username" mapstructure:"username"`
	Password  string `json:"password" yaml:"password" mapstructure:"password"`
	AuthToken string `json:"auth_token,omitempty" yaml:"auth_token,omitempty" mapstructure:"auth_token"`

	WhiteBalance     string `json:"white_balance" yaml:"white_balance" mapstructure:"white_balance"`
	Exposure         string `json:"exposure" yaml:"exposure" mapstructure:"exposure"`
	ExposurePriority int    `json:"exposure_priority" yaml:"exposure_priority" mapstructure:"exposure_priority"`
	Brightness       int    `json:"brightness" yaml:"brightness" mapstructure:"brightness"`
	ColorLevel       int    `json:"color_level" yaml:"color_level" mapstructure:"color_level"`

	FPS         int    `json:"fps" yaml:"fps" mapstructure:"fps"`
	Compression int    `json:"compression" yaml:"compression" mapstructure:"compression"`
	Resolution  string `json:"resolution" yaml:"resolution" mapstructure:"resolution"`
	Rotation    int    `json:"rotation" yaml:"rotation" mapstructure:"rotation"`

	Configure   bool          `json:"configure" yaml:"configure" mapstructure:"configure"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
}

// StreamConfig sizes the MJPEG demultiplexer
type StreamConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size" mapstructure:"buffer_size"`
}

// ProcessorConfig selects the analysis step run on every frame
type ProcessorConfig struct {
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Plane string `json:"plane,omitempty" yaml:"plane,omitempty" mapstructure:"plane"`
}

// DisplayConfig represents the native viewer window
type DisplayConfig struct {
	X11    bool `json:"x11" yaml:"x11" mapstructure:"x11"`
	Width  int  `json:"width" yaml:"width" mapstructure:"width"`
	Height int  `json:"height" yaml:"height" mapstructure:"height"`
}

// ServerConfig represents the HTTP viewer
type ServerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" yaml:"port" mapstructure:"port"`
}

// Auth returns the Basic credential sent to the camera. An explicit token
// wins over username and password.
func (c CameraConfig) Auth() string {
	if c.AuthToken != "" {
		return c.AuthToken
	}
	if c.Username == "" && c.Password == "" {
		return ""
	}
	return camera.BasicAuth(c.Username, c.Password)
}

// ClientConfig converts the camera section for camera.NewClient
func (c CameraConfig) ClientConfig() camera.Config {
	return camera.Config{
		Host: c.Host,
		Port: c.Port,
		Auth: c.Auth(),
		Settings: camera.Settings{
			WhiteBalance:     c.WhiteBalance,
			Exposure:         c.Exposure,
			ExposurePriority: c.ExposurePriority,
			Brightness:       c.Brightness,
			ColorLevel:       c.ColorLevel,
		},
		Stream: camera.StreamParams{
			FPS:         c.FPS,
			Compression: c.Compression,
			Resolution:  c.Resolution,
			Rotation:    c.Rotation,
		},
		DialTimeout: c.DialTimeout,
		ReadTimeout: c.ReadTimeout,
	}
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	if c.Camera.Host == "" {
		return fmt.Errorf("camera.host is required")
	}
	if c.Camera.Port <= 0 || c.Camera.Port > 65535 {
		return fmt.Errorf("camera.port out of range: %d", c.Camera.Port)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive")
	}
	if c.Stream.BufferSize < 1024 {
		return fmt.Errorf("stream.buffer_size too small: %d", c.Stream.BufferSize)
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display size must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Camera: CameraConfig{
			Host:             "192.168.0.90",
			Port:             80,
			Username:         "FRC",
			Password:         "FRC",
			WhiteBalance:     "fixed_fluor2",
			Exposure:         "hold",
			ExposurePriority: 0,
			Brightness:       50,
			ColorLevel:       50,
			FPS:              5,
			Compression:      20,
			Resolution:       "640x280",
			Rotation:         0,
			Configure:        true,
			DialTimeout:      5 * time.Second,
		},
		Stream: StreamConfig{
			BufferSize: mjpeg.DefaultBufferSize,
		},
		Processor: ProcessorConfig{
			Name: "detect-ellipses",
		},
		Display: DisplayConfig{
			X11:    true,
			Width:  1280,
			Height: 680,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		LogLevel: "info",
	}
}

// Manager handles configuration persistence
type Manager struct {
	configPath string
	config     *Config
	v          *viper.Viper
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/framescope/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "framescope", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty. A missing
// file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("camera", m.config.Camera.Host).
		Str("processor", m.config.Processor.Name).
		Msg("Config loaded")

	return m, nil
}

// load reads the YAML file over the defaults, so keys missing from older
// files keep their default values.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.v = nil
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// GetViper exposes the configuration as dotted keys ("camera.host").
// Values set on it are written back by Save.
func (m *Manager) GetViper() *viper.Viper {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.v != nil {
		return m.v
	}

	v := viper.New()
	v.SetConfigType("yaml")
	data, err := yaml.Marshal(m.config)
	if err == nil {
		err = v.ReadConfig(bytes.NewReader(data))
	}
	if err != nil {
		logger.WithComponent("config").Warn().Err(err).Msg("Failed to index config keys")
	}
	m.v = v
	return v
}

// Keys lists every dotted configuration key
func (m *Manager) Keys() []string {
	return m.GetViper().AllKeys()
}

// Save writes the configuration to disk, folding in any values set through
// GetViper first.
func (m *Manager) Save() error {
	m.mu.Lock()
	if m.v != nil {
		cfg := Defaults()
		if err := m.v.Unmarshal(cfg); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to apply config values: %w", err)
		}
		m.config = cfg
	}
	if m.config == nil {
		m.config = Defaults()
	}
	cfg := *m.config
	m.mu.Unlock()

	log := logger.WithComponent("config")
	log.Debug().Str("path", m.configPath).Msg("Saving config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write via a temp file so a crash never leaves a truncated config.
	tmp := m.configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, m.configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyOverrides copies keys set on v (typically the global viper bound to
// command-line flags) over the loaded configuration. Nothing is saved.
func (m *Manager) ApplyOverrides(v *viper.Viper) error {
	cfgView := m.GetViper()
	changed := false
	for _, key := range v.AllKeys() {
		if v.IsSet(key) {
			cfgView.Set(key, v.Get(key))
			changed = true
		}
	}
	if !changed {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := Defaults()
	if err := cfgView.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	m.config = cfg
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}
