package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, path
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m, path := newTestManager(t)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	for _, want := range []string{"host: 192.168.0.90", "resolution: 640x280", "white_balance: fixed_fluor2", "dial_timeout: 5s"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config file missing %q:\n%s", want, data)
		}
	}

	cfg := m.Get()
	if cfg.Camera.Port != 80 || cfg.Camera.FPS != 5 || cfg.Camera.Compression != 20 {
		t.Errorf("camera defaults = %+v", cfg.Camera)
	}
	if cfg.Processor.Name != "detect-ellipses" || cfg.Stream.BufferSize != 512*1024 {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	if m.GetConfigPath() != path {
		t.Error("config path accessors")
	}
}

func TestDefaultAuth(t *testing.T) {
	cam := Defaults().Camera
	if got := cam.Auth(); got != "RlJDOkZSQw==" {
		t.Errorf("Auth() = %q", got)
	}
	cam.AuthToken = "dG9rZW4="
	if got := cam.Auth(); got != "dG9rZW4=" {
		t.Errorf("explicit token ignored: %q", got)
	}
	cam.AuthToken, cam.Username, cam.Password = "", "", ""
	if cam.Auth() != "" {
		t.Error("no credentials should give no auth")
	}

	cc := Defaults().Camera.ClientConfig()
	if cc.Stream.Resolution != "640x280" || cc.Settings.Exposure != "hold" || cc.DialTimeout != 5*time.Second {
		t.Errorf("ClientConfig = %+v", cc)
	}
}

func TestSetThroughViperAndReload(t *testing.T) {
	m, path := newTestManager(t)

	v := m.GetViper()
	if !v.IsSet("camera.host") {
		t.Fatal("camera.host not indexed")
	}
	v.Set("camera.port", "8081")
	v.Set("camera.read_timeout", "2s")
	v.Set("display.x11", "false")
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := m2.Get()
	if cfg.Camera.Port != 8081 {
		t.Errorf("port = %d", cfg.Camera.Port)
	}
	if cfg.Camera.ReadTimeout != 2*time.Second {
		t.Errorf("read_timeout = %v", cfg.Camera.ReadTimeout)
	}
	if cfg.Display.X11 {
		t.Error("display.x11 should be false")
	}
	if cfg.Camera.Host != "192.168.0.90" {
		t.Errorf("untouched key changed: %q", cfg.Camera.Host)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("camera:\n  host: 10.0.0.2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	if cfg.Camera.Host != "10.0.0.2" || cfg.Camera.Port != 80 || cfg.Server.Port != 8080 {
		t.Errorf("merged config = %+v", cfg)
	}
}

func TestBrokenFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("camera: [unterminated"), 0644)
	if _, err := NewManager(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestApplyOverrides(t *testing.T) {
	m, path := newTestManager(t)

	flags := viper.New()
	flags.Set("server.port", 9090)
	flags.Set("processor.name", "color-threshold")
	if err := m.ApplyOverrides(flags); err != nil {
		t.Fatal(err)
	}

	cfg := m.Get()
	if cfg.Server.Port != 9090 || cfg.Processor.Name != "color-threshold" {
		t.Errorf("overrides not applied: %+v", cfg)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "9090") {
		t.Error("overrides must not be persisted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no host", func(c *Config) { c.Camera.Host = "" }},
		{"bad port", func(c *Config) { c.Camera.Port = 70000 }},
		{"zero fps", func(c *Config) { c.Camera.FPS = 0 }},
		{"tiny buffer", func(c *Config) { c.Stream.BufferSize = 10 }},
		{"bad server port", func(c *Config) { c.Server.Port = -1 }},
		{"bad level", func(c *Config) { c.LogLevel = "verbose" }},
		{"no display size", func(c *Config) { c.Display.Width = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestApplyOverridesKeyMissingFromFile(t *testing.T) {
	m, _ := newTestManager(t)

	// processor.plane is omitted from the file while empty.
	flags := viper.New()
	flags.Set("processor.plane", "blue")
	if err := m.ApplyOverrides(flags); err != nil {
		t.Fatal(err)
	}
	if got := m.Get().Processor.Plane; got != "blue" {
		t.Errorf("plane = %q", got)
	}
}
