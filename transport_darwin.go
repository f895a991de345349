//go:build darwin

package kb1

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JuulLabs-OSS/cbgo"
	"github.com/PocketMidi/KB1-config/macbt"
	"github.com/sirupsen/logrus"
)

// CoreBluetooth never times out GATT procedures on its own.
const cbTimeout = 10 * time.Second

// cbTransport drives CoreBluetooth through cbgo. Peer addresses are the
// peripheral identifiers CoreBluetooth assigns, not MAC addresses.
type cbTransport struct {
	log logrus.FieldLogger

	mu          sync.Mutex
	cm          cbgo.CentralManager
	cmd         *macbt.CMDelegate
	enabled     bool
	peripherals map[string]cbgo.Peripheral
}

func newPlatformTransport(log logrus.FieldLogger) Transport {
	return &cbTransport{log: log, peripherals: make(map[string]cbgo.Peripheral)}
}

func (t *cbTransport) Enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return nil
	}
	t.cmd = macbt.NewCMDelegate()
	t.cm = cbgo.NewCentralManager(nil)
	t.cm.SetDelegate(t.cmd)

	timer := time.NewTimer(cbTimeout)
	defer timer.Stop()
	for {
		select {
		case state := <-t.cmd.State():
			if state == cbgo.ManagerStatePoweredOn {
				t.enabled = true
				return nil
			}
			if state == cbgo.ManagerStateUnsupported || state == cbgo.ManagerStateUnauthorized ||
				state == cbgo.ManagerStatePoweredOff {
				return fmt.Errorf("%w: central manager state %d", ErrTransportUnavailable, state)
			}
		case <-timer.C:
			return fmt.Errorf("%w: central manager did not power on", ErrTransportUnavailable)
		}
	}
}

func (t *cbTransport) Discover(ctx context.Context, filter DiscoveryFilter) (Peer, error) {
	t.mu.Lock()
	cm, cmd, enabled := t.cm, t.cmd, t.enabled
	t.mu.Unlock()
	if !enabled {
		return Peer{}, ErrTransportUnavailable
	}

	cm.Scan(nil, &cbgo.CentralManagerScanOpts{})
	defer cm.StopScan()
	for {
		select {
		case <-ctx.Done():
			return Peer{}, fmt.Errorf("%w: %v", ErrNoDevice, ctx.Err())
		case d := <-cmd.Discoveries():
			p := Peer{Address: d.Peripheral.Identifier().String(), Name: d.Name}
			if !filter.Match(p) {
				continue
			}
			t.mu.Lock()
			t.peripherals[p.Address] = d.Peripheral
			t.mu.Unlock()
			return p, nil
		}
	}
}

func (t *cbTransport) Connect(ctx context.Context, peer Peer) (_ Link, err error) {
	t.mu.Lock()
	cm, cmd := t.cm, t.cmd
	prph, ok := t.peripherals[peer.Address]
	t.mu.Unlock()
	if !ok {
		id, err := cbgo.ParseUUID(peer.Address)
		if err != nil {
			return nil, err
		}
		found := cm.RetrievePeripheralsWithIdentifiers([]cbgo.UUID{id})
		if len(found) == 0 {
			return nil, ErrNoDevice
		}
		prph = found[0]
	}

	pd := macbt.NewPDelegate()
	prph.SetDelegate(pd)
	l := &cbLink{
		cm:           cm,
		prph:         prph,
		pd:           pd,
		disconnected: make(chan struct{}),
	}
	id := prph.Identifier().String()
	result := cmd.ExpectConnect(id)
	cmd.OnDisconnect(id, func(err error) {
		t.log.WithError(err).WithField("peer", id).Debug("peripheral disconnected")
		l.drop()
	})
	defer func() {
		if err != nil {
			cmd.Forget(id)
		}
	}()

	cm.Connect(prph, nil)
	select {
	case err := <-result:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		cm.CancelConnect(prph)
		return nil, ctx.Err()
	}

	prph.DiscoverServices(nil)
	select {
	case err := <-pd.Services():
		if err != nil {
			l.Disconnect()
			return nil, err
		}
	case <-l.disconnected:
		return nil, ErrNotConnected
	case <-ctx.Done():
		l.Disconnect()
		return nil, ctx.Err()
	}
	return l, nil
}

type cbLink struct {
	cm   cbgo.CentralManager
	prph cbgo.Peripheral
	pd   *macbt.PDelegate

	once         sync.Once
	disconnected chan struct{}
}

func (l *cbLink) drop() {
	l.once.Do(func() { close(l.disconnected) })
}

func (l *cbLink) Disconnected() <-chan struct{} { return l.disconnected }

func (l *cbLink) Disconnect() error {
	select {
	case <-l.disconnected:
		return nil
	default:
	}
	l.cm.CancelConnect(l.prph)
	l.drop()
	return nil
}

// wait blocks for a GATT procedure to complete.
func (l *cbLink) wait(op string, ch <-chan error) error {
	timer := time.NewTimer(cbTimeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-l.disconnected:
		return ErrNotConnected
	case <-timer.C:
		return errors.New("kb1: timeout on " + op)
	}
}

func (l *cbLink) DiscoverCharacteristics(service UUID, uuids []UUID) ([]Characteristic, error) {
	chars := make([]Characteristic, len(uuids))

	var svc cbgo.Service
	found := false
	for _, s := range l.prph.Services() {
		if u, err := ParseUUID(s.UUID().String()); err == nil && u == service {
			svc, found = s, true
			break
		}
	}
	if !found {
		return chars, nil
	}

	l.prph.DiscoverCharacteristics(nil, svc)
	if err := l.wait("DiscoverCharacteristics", l.pd.Characteristics()); err != nil {
		return nil, err
	}
	for _, dchar := range svc.Characteristics() {
		dcuuid, err := ParseUUID(dchar.UUID().String())
		if err != nil {
			continue
		}
		for i, uuid := range uuids {
			if chars[i] == nil && dcuuid == uuid {
				chars[i] = &cbCharacteristic{link: l, uuid: dcuuid, characteristic: dchar}
				break
			}
		}
	}
	return chars, nil
}

type cbCharacteristic struct {
	link           *cbLink
	uuid           UUID
	characteristic cbgo.Characteristic
}

func (c *cbCharacteristic) UUID() UUID { return c.uuid }

func (c *cbCharacteristic) key() string { return c.characteristic.UUID().String() }

func (c *cbCharacteristic) Read() ([]byte, error) {
	ch := c.link.pd.ExpectRead(c.key())
	c.link.prph.ReadCharacteristic(c.characteristic)

	timer := time.NewTimer(cbTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-c.link.disconnected:
		return nil, ErrNotConnected
	case <-timer.C:
		return nil, errors.New("kb1: timeout on Read()")
	}
}

func (c *cbCharacteristic) Write(p []byte) error {
	ch := c.link.pd.ExpectWrite(c.key())
	c.link.prph.WriteCharacteristic(p, c.characteristic, true)
	return c.link.wait("Write()", ch)
}

func (c *cbCharacteristic) WriteWithoutResponse(p []byte) error {
	c.link.prph.WriteCharacteristic(p, c.characteristic, false)
	return nil
}

func (c *cbCharacteristic) CanNotify() bool {
	props := c.characteristic.Properties()
	return props&(cbgo.CharacteristicPropertyNotify|cbgo.CharacteristicPropertyIndicate) != 0
}

func (c *cbCharacteristic) EnableNotifications(callback func(buf []byte)) error {
	if callback == nil {
		return errors.New("kb1: must provide a callback for EnableNotifications")
	}
	c.link.pd.SetNotifyHandler(c.key(), callback)
	c.link.prph.SetNotify(true, c.characteristic)
	return nil
}
