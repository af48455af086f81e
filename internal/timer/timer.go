// Package timer fires callbacks after arbitrary delays.
//
// Long delays are split into chunks of at most MaxChunk. After each chunk the
// remaining time is recomputed from the clock, so a host that was suspended
// or whose clock jumped fires at the intended instant instead of a full delay
// late.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultMaxChunk is the longest single wait armed on the underlying clock.
const DefaultMaxChunk = time.Hour

// Timer is the primitive the scheduler arms for its earliest invocation.
type Timer interface {
	Schedule(delay time.Duration, fn func()) *Handle
	Cancel(h *Handle)
}

// Handle identifies one scheduled callback.
type Handle struct {
	mu       sync.Mutex
	t        clockwork.Timer
	deadline time.Time
	stopped  bool
}

// Long implements Timer on top of a clockwork.Clock.
type Long struct {
	clock    clockwork.Clock
	maxChunk time.Duration
}

// New returns a Long timer. A non-positive maxChunk disables chunking.
func New(clock clockwork.Clock, maxChunk time.Duration) *Long {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Long{clock: clock, maxChunk: maxChunk}
}

// Real returns a Long timer on the wall clock with DefaultMaxChunk.
func Real() *Long { return New(clockwork.NewRealClock(), DefaultMaxChunk) }

// Schedule runs fn on its own goroutine once delay has elapsed.
// A negative delay is treated as zero.
func (l *Long) Schedule(delay time.Duration, fn func()) *Handle {
	if delay < 0 {
		delay = 0
	}
	h := &Handle{deadline: l.clock.Now().Add(delay)}
	h.mu.Lock()
	l.armLocked(h, delay, fn)
	h.mu.Unlock()
	return h
}

// Cancel stops h. Callbacks already dispatched are not interrupted.
func (l *Long) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.t != nil {
		h.t.Stop()
		h.t = nil
	}
}

func (l *Long) armLocked(h *Handle, remaining time.Duration, fn func()) {
	step := remaining
	if l.maxChunk > 0 && step > l.maxChunk {
		step = l.maxChunk
	}
	// The clock may invoke the callback while holding its own lock, so the
	// callback hands off to a goroutine before touching the clock again.
	h.t = l.clock.AfterFunc(step, func() { go l.expire(h, fn) })
}

func (l *Long) expire(h *Handle, fn func()) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if left := l.clock.Until(h.deadline); left > 0 {
		l.armLocked(h, left, fn)
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.t = nil
	h.mu.Unlock()
	fn()
}
