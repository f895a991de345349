package kb1

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// State is a link supervisor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateResolving
	StateReady
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateResolving:
		return "resolving-characteristics"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Status is the connection status broadcast to observers.
type Status struct {
	Connected bool
	// Peer is the connected (or last attempted) peripheral, nil if none.
	Peer *Peer
	// Err is set when the status change was caused by a failure.
	Err error
}

// Supervisor owns the link to one KB1: it connects, resolves the
// characteristic table, watches for disconnects and publishes status. It is
// the single writer of connection state.
type Supervisor struct {
	transport Transport
	profile   Profile
	opts      Options
	log       logrus.FieldLogger

	gen uint64 // atomic; bumped on every attempt and every teardown

	mu      sync.Mutex
	state   State
	active  uint64 // attempt owning the current state, 0 when idle
	cancel  context.CancelFunc
	conn    *Conn
	status  Status
	lastErr error

	statuses *broadcaster[Status]
	inbound  *broadcaster[[]byte]
}

// NewSupervisor returns an idle supervisor using the given transport.
func NewSupervisor(t Transport, opts ...Option) *Supervisor {
	o := buildOptions(opts)
	return newSupervisor(t, o)
}

func newSupervisor(t Transport, o Options) *Supervisor {
	return &Supervisor{
		transport: t,
		profile:   o.Profile,
		opts:      o,
		log:       o.Logger.WithField("component", "supervisor"),
		statuses:  newBroadcaster[Status](16),
		inbound:   newBroadcaster[[]byte](64),
	}
}

func (s *Supervisor) generation() uint64 {
	return atomic.LoadUint64(&s.gen)
}

func (s *Supervisor) bump() uint64 {
	return atomic.AddUint64(&s.gen, 1)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the last published status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the reason of the most recent failed attempt.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Conn returns the handle of the live connection.
func (s *Supervisor) Conn() (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// Subscribe returns a channel of status changes. Call the returned function
// to unsubscribe.
func (s *Supervisor) Subscribe() (<-chan Status, func()) {
	return s.statuses.subscribe()
}

// SubscribeInbound returns a channel of frames notified by the primary
// characteristic.
func (s *Supervisor) SubscribeInbound() (<-chan []byte, func()) {
	return s.inbound.subscribe()
}

// Connect discovers a peripheral matching filter, connects, and resolves its
// characteristics. It is only valid while idle; otherwise it returns ErrBusy.
func (s *Supervisor) Connect(ctx context.Context, filter DiscoveryFilter) (*Conn, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	attempt := s.bump()
	if _, ok := ctx.Deadline(); !ok && s.opts.ConnectTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.active = attempt
	s.cancel = cancel
	s.state = StateDiscovering
	s.mu.Unlock()

	s.log.WithField("filter", filter).Debug("connecting")

	conn, err := s.connect(ctx, attempt, filter)
	if err != nil {
		return nil, s.fail(attempt, err)
	}
	return conn, nil
}

func (s *Supervisor) connect(ctx context.Context, attempt uint64, filter DiscoveryFilter) (*Conn, error) {
	if err := s.transport.Enable(); err != nil {
		if errors.Is(err, ErrTransportUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	peer, err := s.transport.Discover(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("kb1: discover: %w", err)
	}
	if !s.advance(attempt, StateConnecting) {
		return nil, context.Canceled
	}
	s.log.WithField("peer", peer.String()).Debug("discovered")

	link, err := s.transport.Connect(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("kb1: connect %s: %w", peer, err)
	}

	conn := newConn(s, attempt, peer, link)
	s.mu.Lock()
	if s.active != attempt {
		s.mu.Unlock()
		_ = link.Disconnect()
		return nil, context.Canceled
	}
	s.conn = conn
	s.state = StateResolving
	s.mu.Unlock()

	// Out-of-band disconnects are honoured from here on, in any state.
	go s.watch(conn)

	if err := s.resolve(ctx, conn); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != attempt || !conn.Valid() {
		return nil, &OpError{Op: "connect", Role: RolePrimary, Err: ErrNotConnected}
	}
	s.state = StateReady
	s.cancel = nil
	s.status = Status{Connected: true, Peer: &conn.peer}
	s.statuses.publish(s.status)
	s.log.WithFields(logrus.Fields{
		"peer":     peer.String(),
		"firmware": conn.firmware.String(),
		"missing":  roleList(conn.table.Missing()),
	}).Info("ready")
	return conn, nil
}

// advance moves an attempt to the next state if it still owns the
// supervisor.
func (s *Supervisor) advance(attempt uint64, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != attempt {
		return false
	}
	s.state = next
	return true
}

// fail ends a connection attempt. If the attempt still owns the supervisor
// the failure is published and the supervisor settles back to idle.
func (s *Supervisor) fail(attempt uint64, err error) error {
	s.mu.Lock()
	var link Link
	if s.conn != nil && s.conn.gen == attempt {
		link = s.conn.link
		close(s.conn.done)
		s.conn = nil
		s.bump()
	}
	owned := s.active == attempt
	if owned {
		s.state = StateFailed
		s.lastErr = err
		s.active = 0
		s.cancel = nil
		s.status = Status{Connected: false, Err: err}
		s.statuses.publish(s.status)
		s.state = StateIdle
	}
	s.mu.Unlock()

	if link != nil {
		_ = link.Disconnect()
	}
	if owned {
		s.log.WithError(err).Warn("connection attempt failed")
	}
	return err
}

// watch waits for the link to drop on its own.
func (s *Supervisor) watch(conn *Conn) {
	select {
	case <-conn.link.Disconnected():
	case <-conn.done:
		return
	}

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.bump()
	close(conn.done)
	s.conn = nil
	s.active = 0
	s.cancel = nil
	s.state = StateIdle
	s.status = Status{Connected: false, Peer: &conn.peer}
	s.statuses.publish(s.status)
	s.mu.Unlock()

	s.log.WithField("peer", conn.peer.String()).Info("link lost")
}

// Disconnect tears the link down. It is a no-op when idle. During a
// connection attempt it aborts the attempt.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateFailed, StateDisconnecting:
		s.mu.Unlock()
		return nil
	case StateDiscovering, StateConnecting, StateResolving:
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		return nil
	}

	conn := s.conn
	s.state = StateDisconnecting
	s.bump()
	close(conn.done)
	s.conn = nil
	s.active = 0
	s.mu.Unlock()

	err := conn.link.Disconnect()

	s.mu.Lock()
	s.state = StateIdle
	s.status = Status{Connected: false, Peer: &conn.peer}
	s.statuses.publish(s.status)
	s.mu.Unlock()

	s.log.WithField("peer", conn.peer.String()).Info("disconnected")
	if err != nil {
		return fmt.Errorf("kb1: disconnect: %w", err)
	}
	return nil
}

// Close disconnects and releases every subscriber.
func (s *Supervisor) Close() error {
	err := s.Disconnect()
	s.statuses.close()
	s.inbound.close()
	return err
}

// resolve fills the connection's characteristic table. Only the primary
// characteristic is required.
func (s *Supervisor) resolve(ctx context.Context, conn *Conn) error {
	if err := s.discover(ctx, conn, s.profile.Service, linkRoles); err != nil {
		return fmt.Errorf("kb1: resolve %s: %w", s.profile.Service, err)
	}
	for _, r := range linkRoles {
		if r.Required() && !conn.table.Supported(r) {
			return &RoleError{Role: r, Err: ErrRequiredCharacteristic}
		}
	}

	optional := append(append([]Role{}, settingsRoles...), presetRoles...)
	if err := s.discover(ctx, conn, s.profile.Service, optional); err != nil {
		if !conn.Valid() {
			return err
		}
		s.log.WithError(err).Warn("settings and preset characteristics unavailable")
	}
	if err := s.discover(ctx, conn, s.profile.InfoService, []Role{RoleFirmwareVersion}); err != nil {
		if !conn.Valid() {
			return err
		}
		s.log.WithError(err).Debug("device information service unavailable")
	}

	for r := Role(0); r < numRoles; r++ {
		if !conn.table.Supported(r) && r != RoleFirmwareVersion {
			s.log.WithField("role", r.String()).Warn("characteristic not found, feature unsupported")
		}
	}

	if conn.table.Supported(RoleFirmwareVersion) {
		buf, err := conn.Read(ctx, RoleFirmwareVersion)
		switch {
		case err == nil:
			conn.firmware = ParseFirmwareVersion(string(buf))
		case !conn.Valid():
			return err
		default:
			s.log.WithError(err).Warn("firmware version unreadable")
		}
	}
	conn.caps = CapabilitiesFor(conn.firmware)

	primary, _ := conn.table.Lookup(RolePrimary)
	if primary.CanNotify() {
		_, err := conn.run(ctx, "subscribe", RolePrimary, func() ([]byte, error) {
			return nil, primary.EnableNotifications(func(buf []byte) {
				if !conn.Valid() {
					return
				}
				frame := make([]byte, len(buf))
				copy(frame, buf)
				s.inbound.publish(frame)
			})
		})
		if err != nil {
			if !conn.Valid() {
				return err
			}
			s.log.WithError(err).Warn("primary notifications unavailable")
		}
	}
	return nil
}

// discover looks up the given roles in one service and records the ones
// found.
func (s *Supervisor) discover(ctx context.Context, conn *Conn, service UUID, roles []Role) error {
	var (
		want  []Role
		uuids []UUID
	)
	for _, r := range roles {
		if uuid, ok := s.profile.Characteristics[r]; ok {
			want = append(want, r)
			uuids = append(uuids, uuid)
		}
	}
	if len(want) == 0 {
		return nil
	}

	var chars []Characteristic
	_, err := conn.run(ctx, "discover", want[0], func() ([]byte, error) {
		var err error
		chars, err = conn.link.DiscoverCharacteristics(service, uuids)
		return nil, err
	})
	if err != nil {
		return err
	}
	for i, c := range chars {
		if i < len(want) && c != nil {
			conn.table.chars[want[i]] = c
		}
	}
	return nil
}

func roleList(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ",")
}
