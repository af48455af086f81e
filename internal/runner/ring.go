package runner

import "sync"

// RingBuffer is a fixed-size io.Writer that keeps only the most recent
// bytes written.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	pos  int
	full bool
}

// NewRingBuffer creates a RingBuffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultOutputLimit
	}
	return &RingBuffer{buf: make([]byte, size)}
}

func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n, size := len(p), len(rb.buf)
	if n >= size {
		copy(rb.buf, p[n-size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}
	c := copy(rb.buf[rb.pos:], p)
	if c < n {
		copy(rb.buf, p[c:])
		rb.full = true
	}
	rb.pos = (rb.pos + n) % size
	if rb.pos == 0 && n > 0 {
		rb.full = true
	}
	return n, nil
}

// String returns the buffered bytes oldest first.
func (rb *RingBuffer) String() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if !rb.full {
		return string(rb.buf[:rb.pos])
	}
	out := make([]byte, 0, len(rb.buf))
	out = append(out, rb.buf[rb.pos:]...)
	out = append(out, rb.buf[:rb.pos]...)
	return string(out)
}

// Truncated reports whether older output has been overwritten.
func (rb *RingBuffer) Truncated() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.full
}
