package kb1

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var heartbeatPing = []byte{0x01}

// Heartbeat keeps the link alive by writing to the keepalive characteristic
// well inside the firmware's grace window. At most one timer goroutine runs
// at a time.
type Heartbeat struct {
	log logrus.FieldLogger

	mu         sync.Mutex
	conn       *Conn
	enabled    bool
	foreground bool
	interval   time.Duration
	delay      time.Duration
	cancel     context.CancelFunc
	done       chan struct{}

	pings  uint64 // atomic
	active int32  // atomic; running timer goroutines
}

// NewHeartbeat returns an unbound heartbeat. The host application is assumed
// to be in the foreground.
func NewHeartbeat(opts ...Option) *Heartbeat {
	return newHeartbeat(buildOptions(opts))
}

func newHeartbeat(o Options) *Heartbeat {
	return &Heartbeat{
		log:        o.Logger.WithField("component", "heartbeat"),
		enabled:    o.HeartbeatEnabled,
		foreground: true,
		interval:   o.HeartbeatInterval,
		delay:      o.HeartbeatStartDelay,
	}
}

// Bind attaches the heartbeat to a ready connection and schedules the first
// ping after the start delay.
func (h *Heartbeat) Bind(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	h.conn = conn
	if !h.enabled || !h.foreground {
		return
	}
	if err := h.startLocked(); err != nil {
		h.log.WithError(err).Warn("keepalive not started")
	}
}

// Unbind stops the heartbeat and forgets the connection.
func (h *Heartbeat) Unbind() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	h.conn = nil
}

// Start (re)starts the schedule. A running schedule is cancelled first.
func (h *Heartbeat) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
	return h.startLocked()
}

// Stop cancels the schedule. Stopping a stopped heartbeat does nothing.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

// SetForeground suspends the schedule when the host goes to the background
// and resumes it, after the start delay, when it comes back while still
// connected.
func (h *Heartbeat) SetForeground(foreground bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.foreground == foreground {
		return
	}
	h.foreground = foreground
	h.stopLocked()
	if foreground && h.enabled && h.conn != nil && h.conn.Valid() {
		if err := h.startLocked(); err != nil {
			h.log.WithError(err).Warn("keepalive not resumed")
		}
	}
}

// SetInterval changes the ping period. A running schedule restarts with the
// new period.
func (h *Heartbeat) SetInterval(d time.Duration) error {
	if d <= 0 || d >= HeartbeatGraceWindow {
		return invalid("heartbeat", "interval", d.Milliseconds(),
			"must be positive and below %s", HeartbeatGraceWindow)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval = d
	if h.runningLocked() {
		h.stopLocked()
		return h.startLocked()
	}
	return nil
}

// SetEnabled turns the heartbeat on or off.
func (h *Heartbeat) SetEnabled(enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = enabled
	h.stopLocked()
	if !enabled || !h.foreground || h.conn == nil {
		return nil
	}
	return h.startLocked()
}

// Running reports whether a schedule is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runningLocked()
}

// Pings returns the number of successful keepalive writes.
func (h *Heartbeat) Pings() uint64 {
	return atomic.LoadUint64(&h.pings)
}

func (h *Heartbeat) runningLocked() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *Heartbeat) startLocked() error {
	conn := h.conn
	if conn == nil || !conn.Valid() {
		return ErrNotConnected
	}
	if !conn.Supported(RoleKeepAlive) {
		return &RoleError{Role: RoleKeepAlive, Err: ErrUnsupported}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	atomic.AddInt32(&h.active, 1)
	go h.run(ctx, conn, h.delay, h.interval, done)
	h.log.WithFields(logrus.Fields{"delay": h.delay, "interval": h.interval}).Debug("keepalive scheduled")
	return nil
}

// stopLocked cancels the running schedule and waits for its goroutine. The
// goroutine never takes h.mu.
func (h *Heartbeat) stopLocked() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
	h.done = nil
}

func (h *Heartbeat) run(ctx context.Context, conn *Conn, delay, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer atomic.AddInt32(&h.active, -1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case <-timer.C:
		}

		err := conn.Write(ctx, RoleKeepAlive, heartbeatPing)
		switch {
		case err == nil:
			atomic.AddUint64(&h.pings, 1)
		case errors.Is(err, ErrNotConnected):
			h.log.Debug("link gone, keepalive stopped")
			return
		case ctx.Err() != nil:
			return
		default:
			h.log.WithError(err).Warn("keepalive ping failed")
		}
		timer.Reset(interval)
	}
}
