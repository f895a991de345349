package kb1

import "sync"

// broadcaster fans values from a single producer out to subscriber channels.
// Subscribers receive values in publish order. A subscriber that falls more
// than its buffer behind loses its oldest pending value, never the newest.
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   []chan T
	buffer int
	closed bool
}

func newBroadcaster[T any](buffer int) *broadcaster[T] {
	return &broadcaster[T]{buffer: buffer}
}

// subscribe registers a new subscriber. The returned function unsubscribes
// and closes the channel.
func (b *broadcaster[T]) subscribe() (<-chan T, func()) {
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == ch {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
}

// publish delivers v to every subscriber, in subscription order.
func (b *broadcaster[T]) publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		// Full: make room by dropping the oldest pending value.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// close unsubscribes everyone.
func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.closed = true
}
