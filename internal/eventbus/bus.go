// Package eventbus is a small in-memory fan-out bus.
//
// Publish never blocks: each subscriber has a buffered channel and events
// that do not fit are dropped for that subscriber.
package eventbus

import (
	"sync"
	"time"
)

// Event is one notification. Data should be small.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// Option configures a bus.
type Option func(*MemBus)

// WithNow sets the function used to stamp events published without a Time.
func WithNow(now func() time.Time) Option {
	return func(b *MemBus) {
		if now != nil {
			b.now = now
		}
	}
}

// MemBus is the in-memory Bus. It owns no goroutines.
type MemBus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	seq    uint64
	now    func() time.Time
	closed bool
}

// New returns an empty bus.
func New(opts ...Option) *MemBus {
	b := &MemBus{subs: map[uint64]chan Event{}, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}
	// Sends happen under the read lock so unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber. A non-positive buffer defaults to 8.
// On a closed bus the returned channel is already closed.
func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *MemBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (b *MemBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
