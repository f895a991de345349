//go:build darwin

// Implements the CentralManagerDelegate interface.  CoreBluetooth
// communicates events asynchronously via callbacks.  This file implements a
// synchronous interface by translating these callbacks into channel
// operations.

package macbt

import (
	"sync"

	"github.com/JuulLabs-OSS/cbgo"
)

// Discovery is one advertisement seen while scanning.
type Discovery struct {
	Peripheral cbgo.Peripheral
	Name       string
	RSSI       int
}

// CMDelegate to handle callbacks from CoreBluetooth.
type CMDelegate struct {
	cbgo.CentralManagerDelegateBase

	state       chan cbgo.ManagerState
	discoveries chan Discovery

	mu          sync.Mutex
	connects    map[string]chan error
	disconnects map[string]func(err error)
}

// NewCMDelegate returns a delegate ready to be passed to SetDelegate.
func NewCMDelegate() *CMDelegate {
	return &CMDelegate{
		state:       make(chan cbgo.ManagerState, 1),
		discoveries: make(chan Discovery, 16),
		connects:    make(map[string]chan error),
		disconnects: make(map[string]func(error)),
	}
}

// State receives the manager state on every change.
func (d *CMDelegate) State() <-chan cbgo.ManagerState { return d.state }

// Discoveries receives scan results. Results are dropped while nobody reads.
func (d *CMDelegate) Discoveries() <-chan Discovery { return d.discoveries }

// ExpectConnect returns a channel that receives the outcome of the next
// connection attempt to the peripheral with the given identifier.
func (d *CMDelegate) ExpectConnect(id string) <-chan error {
	ch := make(chan error, 1)
	d.mu.Lock()
	d.connects[id] = ch
	d.mu.Unlock()
	return ch
}

// OnDisconnect registers fn to run once when the peripheral disconnects.
func (d *CMDelegate) OnDisconnect(id string, fn func(err error)) {
	d.mu.Lock()
	d.disconnects[id] = fn
	d.mu.Unlock()
}

// Forget drops the pending connect and disconnect registrations for the
// peripheral.
func (d *CMDelegate) Forget(id string) {
	d.mu.Lock()
	delete(d.connects, id)
	delete(d.disconnects, id)
	d.mu.Unlock()
}

func (d *CMDelegate) CentralManagerDidUpdateState(cmgr cbgo.CentralManager) {
	select {
	case <-d.state:
	default:
	}
	d.state <- cmgr.State()
}

func (d *CMDelegate) DidDiscoverPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral,
	advFields cbgo.AdvFields, rssi int) {
	name := advFields.LocalName
	if name == "" {
		name = prph.Name()
	}
	select {
	case d.discoveries <- Discovery{Peripheral: prph, Name: name, RSSI: rssi}:
	default:
	}
}

func (d *CMDelegate) DidConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral) {
	d.connected(prph.Identifier().String(), nil)
}

func (d *CMDelegate) DidFailToConnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	d.connected(prph.Identifier().String(), err)
}

func (d *CMDelegate) connected(id string, err error) {
	d.mu.Lock()
	ch := d.connects[id]
	delete(d.connects, id)
	d.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}

func (d *CMDelegate) DidDisconnectPeripheral(cmgr cbgo.CentralManager, prph cbgo.Peripheral, err error) {
	id := prph.Identifier().String()
	d.mu.Lock()
	fn := d.disconnects[id]
	delete(d.disconnects, id)
	d.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
