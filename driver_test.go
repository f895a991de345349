package kb1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(tr Transport, opts ...Option) *Driver {
	log, _ := quietLogger()
	return NewDriver(tr, append([]Option{WithLogger(log)}, opts...)...)
}

func TestDriverOptionalSettingsDegrade(t *testing.T) {
	tr := newFakeTransport(fakeDevice{missing: []Role{RoleScale}})
	d := newTestDriver(tr)
	defer d.Close()
	ctx := context.Background()

	s, err := d.Connect(ctx, DiscoveryFilter{})
	require.NoError(t, err)
	assert.Equal(t, StateReady, d.Supervisor().State())

	for _, r := range []Role{RoleLever1, RoleTouch, RoleSystem} {
		assert.True(t, s.Conn.Supported(r), "role %s", r)
	}
	assert.False(t, s.Conn.Supported(RoleScale))

	_, err = s.Settings.ReadLever(ctx, 1)
	assert.NoError(t, err)
	_, err = s.Settings.ReadScale(ctx)
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
	err = s.Settings.WriteScale(ctx, ScaleSettings{})
	assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
}

func TestDriverDisconnectMidWrite(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	d := newTestDriver(tr, WithHeartbeat(false, 0, 0))
	defer d.Close()
	ctx := context.Background()

	s, err := d.Connect(ctx, DiscoveryFilter{})
	require.NoError(t, err)

	link := tr.last()
	touch := link.char(RoleTouch)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	touch.mu.Lock()
	touch.block, touch.entered = release, entered
	touch.mu.Unlock()
	defer close(release)

	errc := make(chan error, 1)
	go func() {
		errc <- s.Settings.WriteTouch(ctx, TouchSettings{CCNumber: 1, MaxCC: 127})
	}()
	<-entered
	link.drop()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, ErrNotConnected), "got %v", err)
	case <-time.After(time.Second):
		t.Fatal("pending write did not resolve after disconnect")
	}

	require.Eventually(t, func() bool { return d.Supervisor().State() == StateIdle },
		time.Second, time.Millisecond)
	_, err = d.Session()
	assert.Equal(t, ErrNotConnected, err)

	s2, err := d.Connect(ctx, DiscoveryFilter{})
	require.NoError(t, err)
	assert.NotSame(t, s.Conn.Table(), s2.Conn.Table())
	c, ok := s2.Conn.Table().Lookup(RoleTouch)
	require.True(t, ok)
	assert.NotSame(t, touch, c)

	// The old session stays dead.
	_, err = s.Settings.ReadTouch(ctx)
	assert.True(t, errors.Is(err, ErrNotConnected), "got %v", err)
	_, err = s2.Settings.ReadTouch(ctx)
	assert.NoError(t, err)
}

func TestDriverFirmwareAbsent(t *testing.T) {
	tr := newFakeTransport(fakeDevice{noFirmware: true})
	d := newTestDriver(tr)
	defer d.Close()
	ctx := context.Background()

	s, err := d.Connect(ctx, DiscoveryFilter{})
	require.NoError(t, err)
	assert.False(t, s.Conn.Firmware().Known)
	assert.Equal(t, LegacyScaleTypes, s.Conn.Capabilities().ScaleTypes)

	err = s.Settings.WriteScale(ctx, ScaleSettings{ScaleType: LegacyScaleTypes})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "scale_type", verr.Field)
	assert.Empty(t, tr.last().char(RoleScale).written())

	assert.NoError(t, s.Settings.WriteScale(ctx, ScaleSettings{ScaleType: LegacyScaleTypes - 1}))
}

func TestDriverHeartbeatLifecycle(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	d := newTestDriver(tr, WithHeartbeat(true, time.Hour, time.Hour))
	defer d.Close()

	_, err := d.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	assert.True(t, d.Heartbeat().Running())

	d.SetForeground(false)
	assert.False(t, d.Heartbeat().Running())
	d.SetForeground(true)
	assert.True(t, d.Heartbeat().Running())

	tr.last().drop()
	require.Eventually(t, func() bool { return !d.Heartbeat().Running() }, time.Second, time.Millisecond)

	_, err = d.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	assert.True(t, d.Heartbeat().Running())

	require.NoError(t, d.Disconnect())
	assert.False(t, d.Heartbeat().Running())
}

func TestDriverClose(t *testing.T) {
	tr := newFakeTransport(fakeDevice{})
	d := newTestDriver(tr)
	statuses, _ := d.Subscribe()

	_, err := d.Connect(context.Background(), DiscoveryFilter{})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	var last Status
	for st := range statuses {
		last = st
	}
	assert.False(t, last.Connected)
	_, err = d.Session()
	assert.Equal(t, ErrNotConnected, err)
}
