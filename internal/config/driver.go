package config

import (
	"io"

	kb1 "github.com/PocketMidi/KB1-config"
	"github.com/sirupsen/logrus"
)

// Filter returns the discovery filter for the configured device.
func (c *Config) Filter() kb1.DiscoveryFilter {
	return kb1.DiscoveryFilter{
		Address:    c.Device.Address,
		NamePrefix: c.Device.NamePrefix,
	}
}

// UUIDProfile returns the default UUID layout with the configured overrides
// applied. The config must have passed Validate.
func (c *Config) UUIDProfile() kb1.Profile {
	p := kb1.DefaultProfile()
	if c.Profile.Service != "" {
		p.Service = kb1.MustParseUUID(c.Profile.Service)
	}
	if c.Profile.InfoService != "" {
		p.InfoService = kb1.MustParseUUID(c.Profile.InfoService)
	}
	for name, value := range c.Profile.Characteristics {
		if role, ok := kb1.ParseRole(name); ok {
			p.Characteristics[role] = kb1.MustParseUUID(value)
		}
	}
	return p
}

// DriverOptions translates the config into driver options. The config must
// have been validated and normalized.
func (c *Config) DriverOptions(log logrus.FieldLogger) []kb1.Option {
	enabled := c.Heartbeat.Enabled == nil || *c.Heartbeat.Enabled
	return []kb1.Option{
		kb1.WithLogger(log),
		kb1.WithProfile(c.UUIDProfile()),
		kb1.WithConnectTimeout(c.Device.ConnectTimeout),
		kb1.WithHeartbeat(enabled, c.Heartbeat.Interval, c.Heartbeat.StartDelay),
		kb1.WithControlSpacing(c.Control.MinSpacing),
	}
}

// NewLogger builds the logger described by the log section.
func (c *Config) NewLogger(w io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)
	level := c.Log.Level
	if level == "" {
		level = DefaultLogLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
