// Package config loads the kb1ctl configuration file.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Control   ControlConfig   `yaml:"control"`
	Profile   ProfileConfig   `yaml:"profile"`
	Log       LogConfig       `yaml:"log"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	// MAC address on Linux, CoreBluetooth identifier on macOS.
	Address        string        `yaml:"address"`
	NamePrefix     string        `yaml:"name_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ---- HEARTBEAT ----

type HeartbeatConfig struct {
	Enabled    *bool         `yaml:"enabled"` // nil means on
	Interval   time.Duration `yaml:"interval"`
	StartDelay time.Duration `yaml:"start_delay"`
}

// ---- CONTROL STREAM ----

type ControlConfig struct {
	MinSpacing time.Duration `yaml:"min_spacing"`
}

// ---- PROFILE ----

// ProfileConfig overrides the service and characteristic UUIDs. Keys of
// Characteristics are role names such as "lever-1-settings".
type ProfileConfig struct {
	Service         string            `yaml:"service"`
	InfoService     string            `yaml:"info_service"`
	Characteristics map[string]string `yaml:"characteristics"`
}

// ---- LOGGING ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// ---- MONITOR ----

type MonitorConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns an empty configuration. Run Normalize to fill in the
// defaults.
func Default() *Config {
	return &Config{}
}

// Load reads a YAML configuration file. Unknown keys are rejected. An empty
// file yields the default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}
