package kb1

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeChar is an in-memory characteristic. Writes can be made to block
// until released, to stand in for a slow radio.
type fakeChar struct {
	link *fakeLink
	uuid UUID

	mu       sync.Mutex
	value    []byte
	writes   [][]byte
	commands [][]byte
	reads    int
	notify   bool
	callback func([]byte)
	readErr  error
	writeErr error
	block    chan struct{}
	entered  chan struct{}
}

func (c *fakeChar) UUID() UUID { return c.uuid }

func (c *fakeChar) enter() func() {
	n := atomic.AddInt32(&c.link.inflight, 1)
	for {
		m := atomic.LoadInt32(&c.link.maxInflight)
		if n <= m || atomic.CompareAndSwapInt32(&c.link.maxInflight, m, n) {
			break
		}
	}
	return func() { atomic.AddInt32(&c.link.inflight, -1) }
}

func (c *fakeChar) Read() ([]byte, error) {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return nil, c.readErr
	}
	return append([]byte(nil), c.value...), nil
}

func (c *fakeChar) Write(p []byte) error {
	defer c.enter()()
	c.mu.Lock()
	block, entered := c.block, c.entered
	c.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	buf := append([]byte(nil), p...)
	c.writes = append(c.writes, buf)
	c.value = buf
	return nil
}

func (c *fakeChar) WriteWithoutResponse(p []byte) error {
	defer c.enter()()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.commands = append(c.commands, append([]byte(nil), p...))
	return nil
}

func (c *fakeChar) CanNotify() bool { return c.notify }

func (c *fakeChar) EnableNotifications(callback func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = callback
	return nil
}

// emit delivers a notification as the transport would.
func (c *fakeChar) emit(buf []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(buf)
	}
}

func (c *fakeChar) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *fakeChar) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.commands...)
}

func (c *fakeChar) set(value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
}

type fakeLink struct {
	services map[UUID][]*fakeChar
	roles    map[Role]*fakeChar

	inflight    int32
	maxInflight int32

	once         sync.Once
	disconnected chan struct{}
}

func (l *fakeLink) DiscoverCharacteristics(service UUID, uuids []UUID) ([]Characteristic, error) {
	out := make([]Characteristic, len(uuids))
	for i, u := range uuids {
		for _, c := range l.services[service] {
			if c.uuid == u {
				out[i] = c
				break
			}
		}
	}
	return out, nil
}

func (l *fakeLink) Disconnected() <-chan struct{} { return l.disconnected }

func (l *fakeLink) Disconnect() error {
	l.drop()
	return nil
}

// drop simulates the peripheral going away.
func (l *fakeLink) drop() {
	l.once.Do(func() { close(l.disconnected) })
}

func (l *fakeLink) char(r Role) *fakeChar { return l.roles[r] }

// fakeDevice describes the peripheral the fake transport hands out. Every
// connection gets fresh characteristics.
type fakeDevice struct {
	missing    []Role
	firmware   string // defaults to 1.2.0
	noFirmware bool
	values     map[Role][]byte
}

func (d fakeDevice) newLink() *fakeLink {
	p := DefaultProfile()
	l := &fakeLink{
		services:     make(map[UUID][]*fakeChar),
		roles:        make(map[Role]*fakeChar),
		disconnected: make(chan struct{}),
	}
	missing := make(map[Role]bool)
	for _, r := range d.missing {
		missing[r] = true
	}
	for r := Role(0); r < numRoles; r++ {
		if missing[r] {
			continue
		}
		svc := p.Service
		c := &fakeChar{link: l, uuid: p.Characteristics[r], notify: r == RolePrimary}
		if r == RoleFirmwareVersion {
			if d.noFirmware {
				continue
			}
			fw := d.firmware
			if fw == "" {
				fw = "1.2.0"
			}
			svc = p.InfoService
			c.value = []byte(fw)
		}
		if v, ok := d.values[r]; ok {
			c.value = append([]byte(nil), v...)
		}
		l.services[svc] = append(l.services[svc], c)
		l.roles[r] = c
	}
	return l
}

type fakeTransport struct {
	device    fakeDevice
	peer      Peer
	enableErr error
	gate      chan struct{} // when set, Discover waits for it

	mu    sync.Mutex
	links []*fakeLink
}

func newFakeTransport(d fakeDevice) *fakeTransport {
	return &fakeTransport{
		device: d,
		peer:   Peer{Address: "11:22:33:44:55:66", Name: "KB1-test"},
	}
}

func (t *fakeTransport) Enable() error { return t.enableErr }

func (t *fakeTransport) Discover(ctx context.Context, filter DiscoveryFilter) (Peer, error) {
	if t.gate != nil {
		select {
		case <-t.gate:
		case <-ctx.Done():
			return Peer{}, ctx.Err()
		}
	}
	if !filter.Match(t.peer) {
		return Peer{}, ErrNoDevice
	}
	return t.peer, nil
}

func (t *fakeTransport) Connect(ctx context.Context, peer Peer) (Link, error) {
	l := t.device.newLink()
	t.mu.Lock()
	t.links = append(t.links, l)
	t.mu.Unlock()
	return l, nil
}

func (t *fakeTransport) last() *fakeLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.links[len(t.links)-1]
}

// quietLogger returns a logger that records entries instead of printing
// them.
func quietLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func connectFake(t *testing.T, tr *fakeTransport, opts ...Option) (*Supervisor, *Conn) {
	t.Helper()
	log, _ := quietLogger()
	sup := NewSupervisor(tr, append([]Option{WithLogger(log)}, opts...)...)
	conn, err := sup.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	return sup, conn
}
