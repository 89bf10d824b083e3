package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Engine.BaseURL != "http://localhost:5100" {
		t.Errorf("unexpected engine url %q", cfg.Engine.BaseURL)
	}
	if cfg.Jobs.PollInterval != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %v", cfg.Jobs.PollInterval)
	}
	if cfg.Jobs.HistoryLimit != 20 {
		t.Errorf("expected history limit 20, got %d", cfg.Jobs.HistoryLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	data := `
server:
  port: 9000
engine:
  base_url: "http://engine:5100"
jobs:
  poll_interval: 5s
log_level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Engine.BaseURL != "http://engine:5100" {
		t.Errorf("unexpected engine url %q", cfg.Engine.BaseURL)
	}
	if cfg.Jobs.PollInterval != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %v", cfg.Jobs.PollInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.LogLevel)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Store.DataDir != "./data" {
		t.Errorf("expected default data dir, got %q", cfg.Store.DataDir)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	if err := os.WriteFile(path, []byte("server: ["), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DASHBOARD_PORT", "7000")
	t.Setenv("DASHBOARD_ENGINE_URL", "http://other:5100")
	t.Setenv("DASHBOARD_DATA_DIR", "/var/lib/dashboard")
	t.Setenv("DASHBOARD_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Engine.BaseURL != "http://other:5100" {
		t.Errorf("unexpected engine url %q", cfg.Engine.BaseURL)
	}
	if cfg.Store.DataDir != "/var/lib/dashboard" {
		t.Errorf("unexpected data dir %q", cfg.Store.DataDir)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("unexpected log level %q", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing engine url", func(c *Config) { c.Engine.BaseURL = "" }},
		{"zero request timeout", func(c *Config) { c.Engine.RequestTimeout = 0 }},
		{"missing data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"zero poll interval", func(c *Config) { c.Jobs.PollInterval = 0 }},
		{"zero history limit", func(c *Config) { c.Jobs.HistoryLimit = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := defaults()
	if cfg.Addr() != ":8090" {
		t.Errorf("unexpected addr %q", cfg.Addr())
	}
}
