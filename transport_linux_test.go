//go:build linux

package kb1

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/muka/go-bluetooth/bluez"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchedLink(t *testing.T) (*bluezLink, *int32) {
	t.Helper()
	log, _ := quietLogger()
	var unwatched int32
	l := &bluezLink{
		props:        make(chan *bluez.PropertyChanged),
		log:          log,
		resolved:     make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	l.unwatch = func() error {
		atomic.AddInt32(&unwatched, 1)
		l.props <- nil
		return nil
	}
	return l, &unwatched
}

func TestBluezLinkReleasesWatchOnDrop(t *testing.T) {
	l, unwatched := newWatchedLink(t)
	done := make(chan struct{})
	go func() {
		l.watch()
		close(done)
	}()

	l.props <- &bluez.PropertyChanged{Name: "ServicesResolved", Value: true}
	l.props <- &bluez.PropertyChanged{Name: "Connected", Value: false}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch still running after the link dropped")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(unwatched))
	select {
	case <-l.Disconnected():
	default:
		t.Fatal("link not marked disconnected")
	}
	select {
	case <-l.resolved:
	default:
		t.Fatal("services not marked resolved")
	}

	// Disconnect on a dropped link does not unwatch twice.
	require.NoError(t, l.Disconnect())
	assert.Equal(t, int32(1), atomic.LoadInt32(unwatched))
}

func TestBluezLinkDisconnectAfterDropReleasesWatch(t *testing.T) {
	l, unwatched := newWatchedLink(t)
	done := make(chan struct{})
	go func() {
		l.watch()
		close(done)
	}()

	l.drop()
	require.NoError(t, l.Disconnect())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch still running after Disconnect")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(unwatched))
}
