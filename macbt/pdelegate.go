//go:build darwin

// Implements the PeripheralDelegate interface for one connected peripheral.
// Completion callbacks are delivered on channels keyed by characteristic
// UUID.

package macbt

import (
	"sync"

	"github.com/JuulLabs-OSS/cbgo"
)

// ReadResult is the outcome of a characteristic read.
type ReadResult struct {
	Value []byte
	Err   error
}

// PDelegate to handle callbacks from a peripheral.
type PDelegate struct {
	cbgo.PeripheralDelegateBase

	services chan error
	chars    chan error

	mu     sync.Mutex
	reads  map[string]chan ReadResult
	writes map[string]chan error
	notify map[string]func([]byte)
}

func NewPDelegate() *PDelegate {
	return &PDelegate{
		services: make(chan error, 1),
		chars:    make(chan error, 1),
		reads:    make(map[string]chan ReadResult),
		writes:   make(map[string]chan error),
		notify:   make(map[string]func([]byte)),
	}
}

// Services receives the outcome of service discovery.
func (d *PDelegate) Services() <-chan error { return d.services }

// Characteristics receives the outcome of characteristic discovery.
func (d *PDelegate) Characteristics() <-chan error { return d.chars }

// ExpectRead returns a channel for the next value of the characteristic.
func (d *PDelegate) ExpectRead(uuid string) <-chan ReadResult {
	ch := make(chan ReadResult, 1)
	d.mu.Lock()
	d.reads[uuid] = ch
	d.mu.Unlock()
	return ch
}

// ExpectWrite returns a channel for the acknowledgement of the next write.
func (d *PDelegate) ExpectWrite(uuid string) <-chan error {
	ch := make(chan error, 1)
	d.mu.Lock()
	d.writes[uuid] = ch
	d.mu.Unlock()
	return ch
}

// SetNotifyHandler routes value updates not claimed by a read to fn.
func (d *PDelegate) SetNotifyHandler(uuid string, fn func([]byte)) {
	d.mu.Lock()
	d.notify[uuid] = fn
	d.mu.Unlock()
}

func (d *PDelegate) DidDiscoverServices(prph cbgo.Peripheral, err error) {
	send(d.services, err)
}

func (d *PDelegate) DidDiscoverCharacteristics(prph cbgo.Peripheral, svc cbgo.Service, err error) {
	send(d.chars, err)
}

func (d *PDelegate) DidUpdateValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	uuid := chr.UUID().String()
	d.mu.Lock()
	read := d.reads[uuid]
	delete(d.reads, uuid)
	fn := d.notify[uuid]
	d.mu.Unlock()

	if read != nil {
		value := append([]byte(nil), chr.Value()...)
		read <- ReadResult{Value: value, Err: err}
		return
	}
	if fn != nil && err == nil {
		fn(chr.Value())
	}
}

func (d *PDelegate) DidWriteValueForCharacteristic(prph cbgo.Peripheral, chr cbgo.Characteristic, err error) {
	uuid := chr.UUID().String()
	d.mu.Lock()
	ch := d.writes[uuid]
	delete(d.writes, uuid)
	d.mu.Unlock()
	if ch != nil {
		ch <- err
	}
}

func send(ch chan error, err error) {
	select {
	case <-ch:
	default:
	}
	ch <- err
}
