// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the crema YAML configuration.
//
// The file lives at $XDG_CONFIG_HOME/crema/config.yaml (or the platform
// equivalent) and is optional: a missing file yields Default(). Values are
// layered file < environment < command-line flags; the flag layer is
// applied by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/crema/pkg/crema"
)

const (
	appName    = "crema"
	configFile = "config.yaml"

	// CurrentVersion is the only file version this build understands
	CurrentVersion = 1

	// SerialPortEnvVar overrides serial.port from the file
	SerialPortEnvVar = "CREMA_SERIAL_PORT"
)

// Config is the whole configuration file
type Config struct {
	Version   int             `yaml:"version"`
	LogLevel  string          `yaml:"log_level,omitempty"`
	Serial    SerialConfig    `yaml:"serial"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Session   SessionConfig   `yaml:"session"`
	Backflush BackflushConfig `yaml:"backflush"`
	Exporter  ExporterConfig  `yaml:"exporter"`
}

// SerialConfig describes a directly attached controller
type SerialConfig struct {
	Port        string        `yaml:"port,omitempty"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// BridgeConfig describes a network serial bridge reached over WebSocket.
// The password is never stored; it comes from CREMA_PASSWORD or a prompt.
type BridgeConfig struct {
	URL         string `yaml:"url,omitempty"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify,omitempty"`
}

// SessionConfig tunes the device session timing
type SessionConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PumpRefresh  time.Duration `yaml:"pump_refresh"`
	BrewGrace    time.Duration `yaml:"brew_grace"`
	StopOpcode   string        `yaml:"stop_opcode"`
}

// BackflushConfig holds backflush defaults, in seconds
type BackflushConfig struct {
	Interval float64 `yaml:"interval"`
	Pause    float64 `yaml:"pause"`
}

// ExporterConfig configures the status exporter
type ExporterConfig struct {
	Listen        string        `yaml:"listen"`
	Interval      time.Duration `yaml:"interval"`
	RedisAddr     string        `yaml:"redis_addr,omitempty"`
	RedisPassword string        `yaml:"redis_password,omitempty"`
	RedisDB       int           `yaml:"redis_db,omitempty"`
	RedisChannel  string        `yaml:"redis_channel"`
	HistoryKey    string        `yaml:"history_key"`
	HistoryLen    int64         `yaml:"history_len"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Serial: SerialConfig{
			Baud:        9600,
			ReadTimeout: crema.DefaultReadTimeout,
		},
		Bridge: BridgeConfig{
			Username: "admin",
		},
		Session: SessionConfig{
			PollInterval: 100 * time.Millisecond,
			PumpRefresh:  time.Second,
			BrewGrace:    5 * time.Second,
			StopOpcode:   crema.StopDistinct.String(),
		},
		Backflush: BackflushConfig{
			Interval: 12,
			Pause:    6,
		},
		Exporter: ExporterConfig{
			Listen:       ":9120",
			Interval:     5 * time.Second,
			RedisChannel: "crema:status",
			HistoryKey:   "crema:history",
			HistoryLen:   1000,
		},
	}
}

// GetConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/crema or $HOME/.config/crema
//   - macOS: $HOME/.config/crema
//   - Windows: %LOCALAPPDATA%\crema
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName), nil
		}
		profile := os.Getenv("USERPROFILE")
		if profile == "" {
			return "", errors.New("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(profile, "AppData", "Local", appName), nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the configuration at path, or at GetConfigPath when path is
// empty. A missing file is not an error. Environment overrides are
// applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		// Unmarshal over the defaults so omitted keys keep their values.
		// The version must come from the file itself.
		cfg.Version = 0
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Version != CurrentVersion {
			return nil, fmt.Errorf("unsupported config version: %d (expected %d)", cfg.Version, CurrentVersion)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides
func (c *Config) ApplyEnv() {
	if port := os.Getenv(SerialPortEnvVar); port != "" {
		c.Serial.Port = port
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeout < 0 {
		return fmt.Errorf("serial.read_timeout must not be negative, got %v", c.Serial.ReadTimeout)
	}
	if c.Session.PollInterval <= 0 || c.Session.PumpRefresh <= 0 || c.Session.BrewGrace <= 0 {
		return errors.New("session intervals must be positive")
	}
	if c.Session.PumpRefresh >= 5*time.Second {
		return fmt.Errorf("session.pump_refresh %v would let the 5s keep-alive lapse", c.Session.PumpRefresh)
	}
	if _, err := c.StopEncoding(); err != nil {
		return err
	}
	if c.Backflush.Pause < 0 {
		return fmt.Errorf("backflush.pause must not be negative, got %v", c.Backflush.Pause)
	}
	if c.Exporter.Interval <= 0 {
		return fmt.Errorf("exporter.interval must be positive, got %v", c.Exporter.Interval)
	}
	return nil
}

// StopEncoding parses session.stop_opcode
func (c *Config) StopEncoding() (crema.StopEncoding, error) {
	return crema.ParseStopEncoding(c.Session.StopOpcode)
}

// Save writes the configuration to path atomically
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# crema configuration\n# The bridge password is never stored here; set CREMA_PASSWORD or enter it when prompted.\n\n")
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
