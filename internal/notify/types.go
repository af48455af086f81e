// Package notify delivers short operator alerts about job runs.
//
// Alerts go through a bounded queue drained by one supervised worker.
// Delivery is rate limited with golang.org/x/time/rate and retried with
// backoff. Identical alerts inside the dedup window are suppressed; when a
// storage.Store is attached the window survives restarts.
package notify

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notify disabled")
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

// Sender delivers one rendered alert.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

// Config controls the alert pipeline. Zero fields take defaults.
type Config struct {
	Enabled bool
	// OnSuccess also reports successful runs.
	OnSuccess bool

	QueueSize   int           // default 64
	RatePerMin  int           // default 10
	RetryMax    int           // extra attempts; default 0
	RetryBase   time.Duration // default 500ms
	DedupWindow time.Duration // default 10m; negative disables
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.RatePerMin <= 0 {
		c.RatePerMin = 10
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.DedupWindow == 0 {
		c.DedupWindow = 10 * time.Minute
	}
	return c
}

// Alert is one message. Alerts with the same Key are deduplicated; an
// empty Key is derived from Job and Text.
type Alert struct {
	Job  string
	Text string
	Key  string
}

// Event types published on the bus.
const (
	EventQueued  = "notify.queued"
	EventDeduped = "notify.deduped"
	EventDropped = "notify.dropped"
	EventSent    = "notify.sent"
	EventFailed  = "notify.failed"
)

// AlertEvent is the Data of every notify event.
type AlertEvent struct {
	Job   string `json:"job"`
	Key   string `json:"key"`
	Error string `json:"error,omitempty"`
}
