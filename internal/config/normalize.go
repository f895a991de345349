package config

import (
	"time"

	kb1 "github.com/PocketMidi/KB1-config"
)

// Defaults filled in by Normalize.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultMonitorListen  = "127.0.0.1:8765"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Device.Address == "" && cfg.Device.NamePrefix == "" {
		cfg.Device.NamePrefix = kb1.DefaultNamePrefix
	}
	if cfg.Device.ConnectTimeout == 0 {
		cfg.Device.ConnectTimeout = DefaultConnectTimeout
	}

	if cfg.Heartbeat.Enabled == nil {
		enabled := true
		cfg.Heartbeat.Enabled = &enabled
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = kb1.DefaultHeartbeatInterval
	}
	if cfg.Heartbeat.StartDelay == 0 {
		cfg.Heartbeat.StartDelay = kb1.DefaultHeartbeatStartDelay
	}
	if cfg.Control.MinSpacing == 0 {
		cfg.Control.MinSpacing = kb1.DefaultControlSpacing
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Monitor.Listen == "" {
		cfg.Monitor.Listen = DefaultMonitorListen
	}
}
