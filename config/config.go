// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "mai-live"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	ServerHost string `json:"server_host"`
	ServerPort int    `json:"server_port"`
	// Username is sent to the server as the requested speaker name.
	Username string `json:"username"`
	Model    string `json:"model"`
	UseVAD   bool   `json:"use_vad"`
	// DeviceID selects the capture device; empty means the system default.
	DeviceID string `json:"device_id,omitempty"`
	// DisplayLanguages are the language codes shown in the caption view.
	DisplayLanguages []string `json:"display_languages"`
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return loadFrom(path)
}

func loadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}
	return c.saveTo(path)
}

func (c *Config) saveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DataDir returns the application's config/data directory, creating it if
// needed. The session archive lives under it.
func DataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	path := filepath.Join(dir, appName)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return path, nil
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Default returns a fully usable configuration for a fresh install or as a
// fallback when the saved file cannot be read.
func Default() *Config {
	cfg := &Config{UseVAD: true}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ServerHost == "" {
		c.ServerHost = "localhost"
	}
	if c.ServerPort == 0 {
		c.ServerPort = 9090
	}
	if c.Model == "" {
		c.Model = "large-v3"
	}
	if c.Username == "" {
		c.Username = "guest"
	}
	if len(c.DisplayLanguages) == 0 {
		c.DisplayLanguages = defaultDisplayLanguages()
	}
}

func defaultDisplayLanguages() []string {
	return []string{"en", "zh", "es", "fr", "de", "ja", "ko"}
}
