package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Engine   EngineConfig `yaml:"engine"`
	Store    StoreConfig  `yaml:"store"`
	Jobs     JobsConfig   `yaml:"jobs"`
	LogLevel string       `yaml:"log_level"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type EngineConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

type JobsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	HistoryLimit int           `yaml:"history_limit"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8090,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Engine: EngineConfig{
			BaseURL:        "http://localhost:5100",
			RequestTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			DataDir: "./data",
		},
		Jobs: JobsConfig{
			PollInterval: 2 * time.Second,
			HistoryLimit: 20,
		},
		LogLevel: "info",
	}
}

// Load reads the optional yaml config file, then applies environment
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := getEnvInt("DASHBOARD_PORT", 0); v != 0 {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DASHBOARD_ENGINE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("DASHBOARD_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("DASHBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Engine.BaseURL == "" {
		return fmt.Errorf("engine base url is required")
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine request timeout must be positive")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store data dir is required")
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Jobs.HistoryLimit < 1 {
		return fmt.Errorf("history limit must be at least 1")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
