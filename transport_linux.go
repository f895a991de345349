//go:build linux

// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc

package kb1

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/sirupsen/logrus"
)

// bluezTransport talks to BlueZ over D-Bus. On Linux it uses the first
// adapter available.
type bluezTransport struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	adapter *adapter.Adapter1
}

func newPlatformTransport(log logrus.FieldLogger) Transport {
	return &bluezTransport{log: log}
}

func (t *bluezTransport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.adapter != nil {
		return nil
	}
	a, err := api.GetDefaultAdapter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	powered, err := a.GetPowered()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	if !powered {
		return fmt.Errorf("%w: adapter %s is powered off", ErrTransportUnavailable, a.Path())
	}
	t.adapter = a
	return nil
}

func (t *bluezTransport) getAdapter() (*adapter.Adapter1, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.adapter == nil {
		return nil, ErrTransportUnavailable
	}
	return t.adapter, nil
}

// Discover runs an LE discovery until a matching device shows up.
//
// BlueZ caches devices it has seen, so cached devices are checked first and
// then every device added while discovering.
func (t *bluezTransport) Discover(ctx context.Context, filter DiscoveryFilter) (Peer, error) {
	a, err := t.getAdapter()
	if err != nil {
		return Peer{}, err
	}

	// This appears to be necessary to receive any BLE discovery results at all.
	defer a.SetDiscoveryFilter(nil)
	err = a.SetDiscoveryFilter(map[string]interface{}{
		"Transport": "le",
	})
	if err != nil {
		return Peer{}, err
	}
	if err := a.StartDiscovery(); err != nil {
		return Peer{}, err
	}
	defer a.StopDiscovery()

	discovered, cancel, err := a.OnDeviceDiscovered()
	if err != nil {
		return Peer{}, err
	}
	defer cancel()

	devices, err := a.GetDevices()
	if err != nil {
		return Peer{}, err
	}
	for _, dev := range devices {
		if p := peerOf(dev); filter.Match(p) {
			return p, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return Peer{}, fmt.Errorf("%w: %v", ErrNoDevice, ctx.Err())
		case result, ok := <-discovered:
			if !ok {
				return Peer{}, ErrNoDevice
			}
			if result.Type != adapter.DeviceAdded {
				continue
			}
			// We only got a DBus object path, so turn that into a Device1 object.
			dev, err := device.NewDevice1(result.Path)
			if err != nil || dev == nil {
				continue
			}
			if p := peerOf(dev); filter.Match(p) {
				t.log.WithField("path", result.Path).Debug("device found")
				return p, nil
			}
		}
	}
}

func peerOf(dev *device.Device1) Peer {
	return Peer{Address: dev.Properties.Address, Name: dev.Properties.Name}
}

// Connect connects to the device and waits until BlueZ has resolved its
// services.
func (t *bluezTransport) Connect(ctx context.Context, peer Peer) (Link, error) {
	a, err := t.getAdapter()
	if err != nil {
		return nil, err
	}
	mac, err := ParseMAC(peer.Address)
	if err != nil {
		return nil, err
	}
	path := dbus.ObjectPath(string(a.Path()) + "/dev_" + strings.Replace(mac.String(), ":", "_", -1))
	dev, err := device.NewDevice1(path)
	if err != nil {
		return nil, err
	}

	props, err := dev.WatchProperties()
	if err != nil {
		return nil, err
	}
	l := &bluezLink{
		device:       dev,
		props:        props,
		unwatch:      func() error { return dev.UnwatchProperties(props) },
		resolved:     make(chan struct{}),
		disconnected: make(chan struct{}),
		log:          t.log.WithField("device", path),
	}
	go l.watch()

	connected := make(chan error, 1)
	go func() {
		connected <- dev.Connect()
	}()
	select {
	case err := <-connected:
		if err != nil {
			l.Disconnect()
			return nil, err
		}
	case <-ctx.Done():
		l.Disconnect()
		return nil, ctx.Err()
	}

	if resolved, err := dev.GetServicesResolved(); err == nil && resolved {
		l.markResolved()
	}
	select {
	case <-l.resolved:
	case <-l.disconnected:
		l.release()
		return nil, ErrNotConnected
	case <-ctx.Done():
		l.Disconnect()
		return nil, ctx.Err()
	}
	return l, nil
}

type bluezLink struct {
	device *device.Device1
	props  chan *bluez.PropertyChanged
	log    logrus.FieldLogger

	unwatch      func() error
	resolveOnce  sync.Once
	resolved     chan struct{}
	dropOnce     sync.Once
	disconnected chan struct{}
	unwatchOnce  sync.Once
}

// watch follows the Device1 properties until the link drops.
func (l *bluezLink) watch() {
	for change := range l.props {
		// we will receive a nil if UnwatchProperties is called
		if change == nil {
			return
		}
		switch change.Name {
		case "ServicesResolved":
			if v, ok := change.Value.(bool); ok && v {
				l.markResolved()
			}
		case "Connected":
			if v, ok := change.Value.(bool); ok && !v {
				l.log.Debug("device disconnected")
				l.drop()
				// Unwatching sends a nil change that ends this loop.
				go l.release()
			}
		}
	}
}

func (l *bluezLink) markResolved() {
	l.resolveOnce.Do(func() { close(l.resolved) })
}

func (l *bluezLink) drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

// release stops the property watch.
func (l *bluezLink) release() {
	l.unwatchOnce.Do(func() {
		if err := l.unwatch(); err != nil {
			l.log.WithError(err).Debug("unwatch properties failed")
		}
	})
}

func (l *bluezLink) Disconnected() <-chan struct{} { return l.disconnected }

func (l *bluezLink) Disconnect() error {
	defer l.release()
	select {
	case <-l.disconnected:
		return nil
	default:
	}
	err := l.device.Disconnect()
	l.drop()
	return err
}

// DiscoverCharacteristics iterates through all objects managed by BlueZ,
// looking for the service under this device and then for the requested
// characteristics under the service.
func (l *bluezLink) DiscoverCharacteristics(service UUID, uuids []UUID) ([]Characteristic, error) {
	chars := make([]Characteristic, len(uuids))

	om, err := bluez.GetObjectManager()
	if err != nil {
		return nil, err
	}
	list, err := om.GetManagedObjects()
	if err != nil {
		return nil, err
	}
	objects := make([]string, 0, len(list))
	for objectPath := range list {
		objects = append(objects, string(objectPath))
	}
	sort.Strings(objects)

	servicePath := ""
	for _, objectPath := range objects {
		if !directChild(objectPath, string(l.device.Path()), "service") {
			continue
		}
		s, err := gatt.NewGattService1(dbus.ObjectPath(objectPath))
		if err != nil {
			return nil, err
		}
		if suuid, err := ParseUUID(s.Properties.UUID); err == nil && suuid == service {
			servicePath = objectPath
			break
		}
	}
	if servicePath == "" {
		return chars, nil
	}

	for _, objectPath := range objects {
		if !directChild(objectPath, servicePath, "char") {
			continue
		}
		characteristic, err := gatt.NewGattCharacteristic1(dbus.ObjectPath(objectPath))
		if err != nil {
			return nil, err
		}
		cuuid, err := ParseUUID(characteristic.Properties.UUID)
		if err != nil {
			continue
		}
		for i, uuid := range uuids {
			// Keep the first match when a UUID appears more than once.
			if chars[i] == nil && cuuid == uuid {
				chars[i] = &bluezCharacteristic{uuid: cuuid, characteristic: characteristic}
				break
			}
		}
	}
	return chars, nil
}

func directChild(objectPath, parent, kind string) bool {
	if !strings.HasPrefix(objectPath, parent+"/"+kind) {
		return false
	}
	return !strings.Contains(objectPath[len(parent)+1:], "/")
}

type bluezCharacteristic struct {
	uuid           UUID
	characteristic *gatt.GattCharacteristic1
}

func (c *bluezCharacteristic) UUID() UUID { return c.uuid }

func (c *bluezCharacteristic) Read() ([]byte, error) {
	return c.characteristic.ReadValue(map[string]interface{}{})
}

func (c *bluezCharacteristic) Write(p []byte) error {
	return c.characteristic.WriteValue(p, map[string]interface{}{"type": "request"})
}

// WriteWithoutResponse issues a "write command"; BlueZ returns before the
// data is on air.
func (c *bluezCharacteristic) WriteWithoutResponse(p []byte) error {
	return c.characteristic.WriteValue(p, map[string]interface{}{"type": "command"})
}

func (c *bluezCharacteristic) CanNotify() bool {
	for _, flag := range c.characteristic.Properties.Flags {
		if flag == "notify" || flag == "indicate" {
			return true
		}
	}
	return false
}

// EnableNotifications enables notifications in the Client Characteristic
// Configuration Descriptor (CCCD).
func (c *bluezCharacteristic) EnableNotifications(callback func(buf []byte)) error {
	ch, err := c.characteristic.WatchProperties()
	if err != nil {
		return err
	}
	go func() {
		for update := range ch {
			if update == nil {
				return
			}
			if update.Interface == "org.bluez.GattCharacteristic1" && update.Name == "Value" {
				if buf, ok := update.Value.([]byte); ok {
					callback(buf)
				}
			}
		}
	}()
	return c.characteristic.StartNotify()
}
