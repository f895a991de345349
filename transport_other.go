//go:build !linux && !darwin

package kb1

import (
	"context"

	"github.com/sirupsen/logrus"
)

// unavailableTransport is used on hosts without a supported Bluetooth stack.
type unavailableTransport struct{}

func newPlatformTransport(logrus.FieldLogger) Transport {
	return unavailableTransport{}
}

func (unavailableTransport) Enable() error { return ErrTransportUnavailable }

func (unavailableTransport) Discover(context.Context, DiscoveryFilter) (Peer, error) {
	return Peer{}, ErrTransportUnavailable
}

func (unavailableTransport) Connect(context.Context, Peer) (Link, error) {
	return nil, ErrTransportUnavailable
}
