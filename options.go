package kb1

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultHeartbeatInterval is the keepalive period. The firmware drops
	// the link after HeartbeatGraceWindow without a keepalive write.
	DefaultHeartbeatInterval = 60 * time.Second

	// DefaultHeartbeatStartDelay is the pause between the link becoming
	// ready and the first keepalive.
	DefaultHeartbeatStartDelay = 3 * time.Second

	// HeartbeatGraceWindow is how long the firmware tolerates silence on the
	// keepalive characteristic.
	HeartbeatGraceWindow = 10 * time.Minute

	// DefaultControlSpacing is the minimum time between two control stream
	// messages.
	DefaultControlSpacing = 8 * time.Millisecond
)

// Options holds the tunables shared by the supervisor and the components
// built on top of it.
type Options struct {
	Logger  logrus.FieldLogger
	Profile Profile

	// ConnectTimeout bounds discovery plus connection when the caller's
	// context has no deadline. Zero means unbounded.
	ConnectTimeout time.Duration

	HeartbeatEnabled    bool
	HeartbeatInterval   time.Duration
	HeartbeatStartDelay time.Duration

	ControlSpacing time.Duration
}

// Option configures Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Logger:              logrus.StandardLogger(),
		Profile:             DefaultProfile(),
		HeartbeatEnabled:    true,
		HeartbeatInterval:   DefaultHeartbeatInterval,
		HeartbeatStartDelay: DefaultHeartbeatStartDelay,
		ControlSpacing:      DefaultControlSpacing,
	}
}

func buildOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used by every component.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Options) {
		if log != nil {
			o.Logger = log
		}
	}
}

// WithProfile overrides the characteristic UUID layout.
func WithProfile(p Profile) Option {
	return func(o *Options) { o.Profile = p }
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithHeartbeat sets whether the keepalive runs, and its period and start
// delay. Non-positive durations keep the defaults.
func WithHeartbeat(enabled bool, interval, startDelay time.Duration) Option {
	return func(o *Options) {
		o.HeartbeatEnabled = enabled
		if interval > 0 {
			o.HeartbeatInterval = interval
		}
		if startDelay > 0 {
			o.HeartbeatStartDelay = startDelay
		}
	}
}

// WithControlSpacing sets the minimum spacing of control stream messages.
func WithControlSpacing(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ControlSpacing = d
		}
	}
}
