package kb1

import (
	"context"
)

// Conn is the handle to one established connection. Components bind to a
// Conn; once the link drops every operation on it fails with
// ErrNotConnected, even after the supervisor has connected again.
//
// Transport operations issued through a Conn are serialized: at most one
// read, write or discovery is in flight on the link at any time.
type Conn struct {
	sup   *Supervisor
	gen   uint64
	peer  Peer
	link  Link
	table *CharacteristicTable

	firmware FirmwareVersion
	caps     Capabilities

	queue chan struct{}
	done  chan struct{}
}

func newConn(sup *Supervisor, gen uint64, peer Peer, link Link) *Conn {
	return &Conn{
		sup:   sup,
		gen:   gen,
		peer:  peer,
		link:  link,
		table: newCharacteristicTable(),
		caps:  CapabilitiesFor(FirmwareVersion{}),
		queue: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Valid reports whether the connection this handle belongs to is still the
// live one.
func (c *Conn) Valid() bool {
	select {
	case <-c.done:
		return false
	case <-c.link.Disconnected():
		return false
	default:
	}
	return c.sup.generation() == c.gen
}

// Done is closed when the connection is torn down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Peer returns the connected peripheral.
func (c *Conn) Peer() Peer { return c.peer }

// Table returns the characteristics resolved for this connection.
func (c *Conn) Table() *CharacteristicTable { return c.table }

// Supported reports whether the firmware exposes the role.
func (c *Conn) Supported(role Role) bool { return c.table.Supported(role) }

// Firmware returns the firmware version read while connecting.
func (c *Conn) Firmware() FirmwareVersion { return c.firmware }

// Capabilities returns the field domains of the connected firmware.
func (c *Conn) Capabilities() Capabilities { return c.caps }

// Read reads the characteristic bound to role.
func (c *Conn) Read(ctx context.Context, role Role) ([]byte, error) {
	return c.do(ctx, "read", role, func(ch Characteristic) ([]byte, error) {
		return ch.Read()
	})
}

// Write writes p to the characteristic bound to role and waits for the
// acknowledgement.
func (c *Conn) Write(ctx context.Context, role Role, p []byte) error {
	_, err := c.do(ctx, "write", role, func(ch Characteristic) ([]byte, error) {
		return nil, ch.Write(p)
	})
	return err
}

// WriteWithoutResponse writes p to the characteristic bound to role without
// waiting for an acknowledgement.
func (c *Conn) WriteWithoutResponse(ctx context.Context, role Role, p []byte) error {
	_, err := c.do(ctx, "write-command", role, func(ch Characteristic) ([]byte, error) {
		return nil, ch.WriteWithoutResponse(p)
	})
	return err
}

func (c *Conn) do(ctx context.Context, op string, role Role, fn func(Characteristic) ([]byte, error)) ([]byte, error) {
	ch, ok := c.table.Lookup(role)
	if !ok {
		return nil, &RoleError{Role: role, Err: ErrUnsupported}
	}
	return c.run(ctx, op, role, func() ([]byte, error) { return fn(ch) })
}

// run executes fn as the only transport operation on the link. It returns
// ErrNotConnected as soon as the link drops, without waiting for fn.
func (c *Conn) run(ctx context.Context, op string, role Role, fn func() ([]byte, error)) ([]byte, error) {
	notConnected := &OpError{Op: op, Role: role, Err: ErrNotConnected}
	if !c.Valid() {
		return nil, notConnected
	}

	select {
	case c.queue <- struct{}{}:
	case <-c.done:
		return nil, notConnected
	case <-c.link.Disconnected():
		return nil, notConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The generation may have moved on while queued.
	if !c.Valid() {
		<-c.queue
		return nil, notConnected
	}

	type result struct {
		buf []byte
		err error
	}
	res := make(chan result, 1)
	go func() {
		// The slot is released only when the transport call returns, so a
		// caller giving up early never lets a second operation overlap it.
		defer func() { <-c.queue }()
		buf, err := fn()
		res <- result{buf, err}
	}()

	select {
	case r := <-res:
		if !c.Valid() {
			return nil, notConnected
		}
		if r.err != nil {
			return nil, &OpError{Op: op, Role: role, Err: r.err}
		}
		return r.buf, nil
	case <-c.done:
		return nil, notConnected
	case <-c.link.Disconnected():
		return nil, notConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
