package kb1

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Session groups the components bound to one connection. A Session goes
// stale with its connection; connect again for a new one.
type Session struct {
	Conn     *Conn
	Settings *Settings
	Presets  *Presets
	Control  *ControlStream
}

// Driver owns a link supervisor and a heartbeat and hands out a Session per
// connection. The heartbeat is bound to every new connection and unbound
// after the disconnect status has been delivered.
type Driver struct {
	sup  *Supervisor
	hb   *Heartbeat
	opts Options
	log  logrus.FieldLogger

	mu      sync.Mutex
	session *Session

	unsubscribe func()
	wg          sync.WaitGroup
}

// NewDriver returns a driver using transport t.
func NewDriver(t Transport, opts ...Option) *Driver {
	o := buildOptions(opts)
	d := &Driver{
		sup:  newSupervisor(t, o),
		hb:   newHeartbeat(o),
		opts: o,
		log:  o.Logger.WithField("component", "driver"),
	}
	statuses, cancel := d.sup.Subscribe()
	d.unsubscribe = cancel
	d.wg.Add(1)
	go d.watch(statuses)
	return d
}

func (d *Driver) watch(statuses <-chan Status) {
	defer d.wg.Done()
	for st := range statuses {
		if st.Connected {
			continue
		}
		d.mu.Lock()
		if d.session != nil && !d.session.Conn.Valid() {
			d.session = nil
			d.hb.Unbind()
			d.log.Debug("session released")
		}
		d.mu.Unlock()
	}
}

// Supervisor returns the link supervisor.
func (d *Driver) Supervisor() *Supervisor { return d.sup }

// Heartbeat returns the keepalive scheduler.
func (d *Driver) Heartbeat() *Heartbeat { return d.hb }

// Connect connects to the first KB1 matching filter and returns its session.
func (d *Driver) Connect(ctx context.Context, filter DiscoveryFilter) (*Session, error) {
	conn, err := d.sup.Connect(ctx, filter)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Conn:     conn,
		Settings: NewSettings(conn),
		Presets:  NewPresets(conn, d.opts.Logger),
		Control:  NewControlStream(conn, d.opts.ControlSpacing),
	}
	d.mu.Lock()
	d.session = s
	d.hb.Bind(conn)
	d.mu.Unlock()
	return s, nil
}

// Session returns the session of the live connection.
func (d *Driver) Session() (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil || !d.session.Conn.Valid() {
		return nil, ErrNotConnected
	}
	return d.session, nil
}

// Disconnect tears the link down.
func (d *Driver) Disconnect() error {
	d.hb.Stop()
	return d.sup.Disconnect()
}

// SetForeground tells the driver whether the host application is in the
// foreground. The keepalive only runs in the foreground.
func (d *Driver) SetForeground(foreground bool) {
	d.hb.SetForeground(foreground)
}

// Subscribe returns a channel of connection status changes.
func (d *Driver) Subscribe() (<-chan Status, func()) {
	return d.sup.Subscribe()
}

// SubscribeInbound returns a channel of frames notified by the device.
func (d *Driver) SubscribeInbound() (<-chan []byte, func()) {
	return d.sup.SubscribeInbound()
}

// Close disconnects and stops every goroutine owned by the driver.
func (d *Driver) Close() error {
	d.hb.Unbind()
	err := d.sup.Close()
	d.unsubscribe()
	d.wg.Wait()
	return err
}
