package kb1

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Transport is the platform Bluetooth LE stack as seen by the supervisor.
type Transport interface {
	// Enable prepares the radio. It returns ErrTransportUnavailable when the
	// host has no Bluetooth LE capability.
	Enable() error

	// Discover blocks until a peripheral matching the filter is seen or the
	// context ends.
	Discover(ctx context.Context, filter DiscoveryFilter) (Peer, error)

	// Connect opens a link to a discovered peripheral.
	Connect(ctx context.Context, peer Peer) (Link, error)
}

// Link is one established connection to a peripheral.
type Link interface {
	// DiscoverCharacteristics looks up characteristics in a service. The
	// returned slice has the same length and order as uuids; characteristics
	// the peripheral does not expose are nil. An error is returned only when
	// the service itself could not be enumerated.
	DiscoverCharacteristics(service UUID, uuids []UUID) ([]Characteristic, error)

	// Disconnected is closed when the link drops, for any reason.
	Disconnected() <-chan struct{}

	// Disconnect closes the link. It is safe to call more than once.
	Disconnect() error
}

// Characteristic is a remote GATT characteristic on a Link.
type Characteristic interface {
	UUID() UUID

	// Read returns the current value.
	Read() ([]byte, error)

	// Write replaces the value and waits for the peripheral to acknowledge.
	Write(p []byte) error

	// WriteWithoutResponse replaces the value without waiting for an
	// acknowledgement (a "write command").
	WriteWithoutResponse(p []byte) error

	// CanNotify reports whether the characteristic supports notifications.
	CanNotify() bool

	// EnableNotifications subscribes to value changes. The callback runs on
	// a transport goroutine and must not block.
	EnableNotifications(callback func(buf []byte)) error
}

// Peer identifies a discovered peripheral. Address is a MAC address on
// Linux and a CoreBluetooth identifier on macOS.
type Peer struct {
	Address string
	Name    string
}

func (p Peer) String() string {
	if p.Name == "" {
		return p.Address
	}
	return p.Name + " (" + p.Address + ")"
}

// DefaultNamePrefix is the advertised local name prefix of KB1 units.
const DefaultNamePrefix = "KB1"

// DiscoveryFilter selects the peripheral to connect to. An Address match
// wins over a name match; with neither set, the first peripheral advertising
// DefaultNamePrefix is used.
type DiscoveryFilter struct {
	Address    string
	NamePrefix string
}

// Match reports whether a discovered peripheral satisfies the filter.
func (f DiscoveryFilter) Match(p Peer) bool {
	if f.Address != "" {
		return strings.EqualFold(f.Address, p.Address)
	}
	prefix := f.NamePrefix
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	return strings.HasPrefix(p.Name, prefix)
}

// DefaultTransport returns the Bluetooth LE stack of the host: BlueZ on
// Linux, CoreBluetooth on macOS. Elsewhere every operation fails with
// ErrTransportUnavailable.
func DefaultTransport(log logrus.FieldLogger) Transport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return newPlatformTransport(log.WithField("component", "transport"))
}
