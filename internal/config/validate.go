package config

import (
	"fmt"
	"net"

	kb1 "github.com/PocketMidi/KB1-config"
	"github.com/sirupsen/logrus"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if a := cfg.Device.Address; a != "" {
		_, macErr := kb1.ParseMAC(a)
		_, uuidErr := kb1.ParseUUID(a)
		if macErr != nil && (uuidErr != nil || len(a) != 36) {
			return fmt.Errorf("device.address %q: not a MAC address or peripheral identifier", a)
		}
	}
	if cfg.Device.ConnectTimeout < 0 {
		return fmt.Errorf("device.connect_timeout must not be negative")
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	if cfg.Heartbeat.Interval < 0 || cfg.Heartbeat.Interval >= kb1.HeartbeatGraceWindow {
		return fmt.Errorf(
			"heartbeat.interval %s must be below the %s grace window",
			cfg.Heartbeat.Interval,
			kb1.HeartbeatGraceWindow,
		)
	}
	if cfg.Heartbeat.StartDelay < 0 {
		return fmt.Errorf("heartbeat.start_delay must not be negative")
	}
	if cfg.Control.MinSpacing < 0 {
		return fmt.Errorf("control.min_spacing must not be negative")
	}

	// ------------------------------------------------------------
	// PROFILE OVERRIDES
	// ------------------------------------------------------------

	for key, value := range map[string]string{
		"profile.service":      cfg.Profile.Service,
		"profile.info_service": cfg.Profile.InfoService,
	} {
		if value == "" {
			continue
		}
		if _, err := kb1.ParseUUID(value); err != nil {
			return fmt.Errorf("%s %q: %v", key, value, err)
		}
	}
	for name, value := range cfg.Profile.Characteristics {
		if _, ok := kb1.ParseRole(name); !ok {
			return fmt.Errorf("profile.characteristics: unknown role %q", name)
		}
		if _, err := kb1.ParseUUID(value); err != nil {
			return fmt.Errorf("profile.characteristics.%s %q: %v", name, value, err)
		}
	}

	// ------------------------------------------------------------
	// LOGGING / MONITOR
	// ------------------------------------------------------------

	if cfg.Log.Level != "" {
		if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %v", err)
		}
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", cfg.Log.Format)
	}

	if cfg.Monitor.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Monitor.Listen); err != nil {
			return fmt.Errorf("monitor.listen: %v", err)
		}
	}

	return nil
}
