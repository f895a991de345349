package kb1

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisorConnect(t *testing.T) {
	tr := newFakeTransport(fakeDevice{firmware: "v1.1.4\x00"})
	log, _ := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log))
	statuses, cancel := sup.Subscribe()
	defer cancel()

	conn, err := sup.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	assert.Equal(t, StateReady, sup.State())
	assert.True(t, conn.Valid())
	assert.Equal(t, tr.peer, conn.Peer())
	assert.Equal(t, FirmwareVersion{Major: 1, Minor: 1, Patch: 4, Known: true}, conn.Firmware())
	assert.Empty(t, conn.Table().Missing())

	st := <-statuses
	assert.True(t, st.Connected)
	require.NotNil(t, st.Peer)
	assert.Equal(t, tr.peer, *st.Peer)
	assert.NoError(t, st.Err)

	got, err := sup.Conn()
	require.NoError(t, err)
	assert.Same(t, conn, got)
}

func TestSupervisorConnectBusy(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	tr.gate = make(chan struct{})
	log, _ := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log))

	errc := make(chan error, 1)
	go func() {
		_, err := sup.Connect(context.Background(), DiscoveryFilter{})
		errc <- err
	}()
	require.Eventually(t, func() bool { return sup.State() == StateDiscovering },
		time.Second, time.Millisecond)

	_, err := sup.Connect(context.Background(), DiscoveryFilter{})
	assert.Equal(t, ErrBusy, err)

	// Disconnect aborts the pending attempt.
	require.NoError(t, sup.Disconnect())
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("connect did not return")
	}
	assert.Equal(t, StateIdle, sup.State())
}

func TestSupervisorMissingPrimary(t *testing.T) {
	tr := newFakeTransport(fakeDevice{missing: []Role{RolePrimary}})
	log, _ := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log))
	statuses, cancel := sup.Subscribe()
	defer cancel()

	_, err := sup.Connect(context.Background(), DiscoveryFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequiredCharacteristic), "got %v", err)
	var roleErr *RoleError
	require.True(t, errors.As(err, &roleErr))
	assert.Equal(t, RolePrimary, roleErr.Role)
	assert.Contains(t, err.Error(), "primary")

	assert.Equal(t, StateIdle, sup.State())
	assert.Equal(t, err, sup.LastError())
	st := <-statuses
	assert.False(t, st.Connected)
	assert.Equal(t, err, st.Err)

	select {
	case <-tr.last().Disconnected():
	default:
		t.Fatal("link left open after failed attempt")
	}

	// Idle again: a new attempt is accepted.
	tr.device.missing = nil
	_, err = sup.Connect(context.Background(), DiscoveryFilter{})
	assert.NoError(t, err)
}

func TestRoleRequired(t *testing.T) {
	for r := Role(0); r < numRoles; r++ {
		assert.Equal(t, r == RolePrimary, r.Required(), r.String())
	}
}

func TestSupervisorMissingKeepAliveNotFatal(t *testing.T) {
	tr := newFakeTransport(fakeDevice{missing: []Role{RoleKeepAlive}})
	_, conn := connectFake(t, tr)
	assert.False(t, conn.Supported(RoleKeepAlive))
	assert.True(t, conn.Supported(RolePrimary))
}

func TestSupervisorTransportUnavailable(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	tr.enableErr = errors.New("no adapter")
	log, _ := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log))

	_, err := sup.Connect(context.Background(), DiscoveryFilter{})
	assert.True(t, errors.Is(err, ErrTransportUnavailable), "got %v", err)
	assert.Equal(t, StateIdle, sup.State())
}

func TestSupervisorNoDevice(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	log, _ := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log))

	_, err := sup.Connect(context.Background(), DiscoveryFilter{NamePrefix: "Other"})
	assert.True(t, errors.Is(err, ErrNoDevice), "got %v", err)
	_, err = sup.Conn()
	assert.Equal(t, ErrNotConnected, err)
}

func TestSupervisorConnectTimeout(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	tr.gate = make(chan struct{})
	log, _ := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log), WithConnectTimeout(20*time.Millisecond))

	_, err := sup.Connect(context.Background(), DiscoveryFilter{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, StateIdle, sup.State())
}

func TestSupervisorOptionalMissingLogged(t *testing.T) {
	tr := newFakeTransport(fakeDevice{missing: []Role{RolePresetList, RoleKeepAlive}})
	log, hook := quietLogger()
	sup := NewSupervisor(tr, WithLogger(log))

	conn, err := sup.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleKeepAlive, RolePresetList}, conn.Table().Missing())
	assert.False(t, conn.Supported(RolePresetList))

	var warned []string
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = append(warned, e.Data["role"].(string))
		}
	}
	assert.ElementsMatch(t, []string{"keepalive", "preset-list"}, warned)
}

func TestSupervisorLinkLost(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	sup, conn := connectFake(t, tr)
	statuses, cancel := sup.Subscribe()
	defer cancel()

	tr.last().drop()

	select {
	case st := <-statuses:
		assert.False(t, st.Connected)
		assert.NoError(t, st.Err)
	case <-time.After(time.Second):
		t.Fatal("no status after link loss")
	}
	assert.Equal(t, StateIdle, sup.State())
	assert.False(t, conn.Valid())

	_, err := conn.Read(context.Background(), RoleSystem)
	assert.True(t, errors.Is(err, ErrNotConnected), "got %v", err)
}

func TestSupervisorDisconnect(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	sup, conn := connectFake(t, tr)

	require.NoError(t, sup.Disconnect())
	assert.Equal(t, StateIdle, sup.State())
	assert.False(t, conn.Valid())
	assert.False(t, sup.Status().Connected)

	// Idempotent.
	require.NoError(t, sup.Disconnect())
	require.NoError(t, sup.Disconnect())

	err := conn.Write(context.Background(), RolePrimary, []byte("1,2"))
	assert.True(t, errors.Is(err, ErrNotConnected), "got %v", err)
}

func TestSupervisorInboundFrames(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	sup, _ := connectFake(t, tr)
	frames, cancel := sup.SubscribeInbound()
	defer cancel()

	buf := []byte{0xb0, 0x01, 0x7f}
	tr.last().char(RolePrimary).emit(buf)
	buf[0] = 0 // the frame must be a copy

	select {
	case f := <-frames:
		assert.Equal(t, []byte{0xb0, 0x01, 0x7f}, f)
	case <-time.After(time.Second):
		t.Fatal("no inbound frame")
	}

	// Frames from a dead link are not forwarded.
	link := tr.last()
	link.drop()
	require.Eventually(t, func() bool { return sup.State() == StateIdle }, time.Second, time.Millisecond)
	link.char(RolePrimary).emit([]byte{1})
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame %v", f)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConnSerializesOperations(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	_, conn := connectFake(t, tr)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, conn.Write(context.Background(), RoleTouch, make([]byte, 16)))
			} else {
				_, err := conn.Read(context.Background(), RoleScale)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), tr.last().maxInflight)
}

func TestConnStaleAfterReconnect(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	sup, old := connectFake(t, tr)
	oldLink := tr.last()

	oldLink.drop()
	require.Eventually(t, func() bool { return sup.State() == StateIdle }, time.Second, time.Millisecond)

	conn, err := sup.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	assert.NotSame(t, old, conn)

	_, err = old.Read(context.Background(), RoleSystem)
	assert.True(t, errors.Is(err, ErrNotConnected), "got %v", err)

	for _, r := range conn.Table().Roles() {
		c, _ := conn.Table().Lookup(r)
		assert.NotSame(t, oldLink.char(r), c, "role %s reused a stale handle", r)
	}
	assert.Zero(t, oldLink.char(RoleSystem).reads)
}

func TestConnUnsupportedRole(t *testing.T) {
	tr := newFakeTransport(fakeDevice{missing: []Role{RoleTouch}})
	_, conn := connectFake(t, tr)

	_, err := conn.Read(context.Background(), RoleTouch)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
	var roleErr *RoleError
	require.True(t, errors.As(err, &roleErr))
	assert.Equal(t, RoleTouch, roleErr.Role)
}

func TestConnTransportErrorIsTemporary(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	_, conn := connectFake(t, tr)
	tr.last().char(RoleScale).readErr = errors.New("att error 0x0e")

	_, err := conn.Read(context.Background(), RoleScale)
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.True(t, opErr.Temporary())
	assert.Equal(t, RoleScale, opErr.Role)
	assert.True(t, conn.Valid())
}
