package kb1

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// EncodeControl returns the primary channel message for a controller value.
func EncodeControl(cc, value int) []byte {
	buf := make([]byte, 0, 8)
	buf = strconv.AppendInt(buf, int64(cc), 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(value), 10)
	return buf
}

// ControlStream sends real-time controller values over the primary channel.
// Sends closer together than the minimum spacing are dropped, not queued.
type ControlStream struct {
	conn    *Conn
	spacing time.Duration
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewControlStream binds a control stream to conn. A non-positive spacing
// uses DefaultControlSpacing.
func NewControlStream(conn *Conn, spacing time.Duration) *ControlStream {
	if spacing <= 0 {
		spacing = DefaultControlSpacing
	}
	return &ControlStream{conn: conn, spacing: spacing, now: time.Now}
}

// Send transmits cc,value without waiting for an acknowledgement. It
// returns false when the send was dropped by the throttle. Failed writes are
// returned and never retried.
func (s *ControlStream) Send(ctx context.Context, cc, value int) (bool, error) {
	if cc < 0 || cc > CCVelocity {
		return false, invalid("control", "cc_number", int64(cc), "out of range 0..%d", CCVelocity)
	}
	if value < 0 || value > MaxCCValue {
		return false, invalid("control", "value", int64(value), "out of range 0..%d", MaxCCValue)
	}

	s.mu.Lock()
	now := s.now()
	if !s.last.IsZero() && now.Sub(s.last) < s.spacing {
		s.mu.Unlock()
		return false, nil
	}
	s.last = now
	s.mu.Unlock()

	if err := s.conn.WriteWithoutResponse(ctx, RolePrimary, EncodeControl(cc, value)); err != nil {
		return true, err
	}
	return true, nil
}
