// Package cronexpr turns cron expression strings into occurrence cursors.
//
// Expressions use github.com/robfig/cron/v3 syntax with an optional leading
// seconds field and descriptors ("@hourly", "@every 5m").
package cronexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Options bound a Cursor.
type Options struct {
	// Start is the instant the search begins after. Zero means now.
	Start time.Time
	// End, when set, is the last instant the cursor may yield.
	End time.Time
	// Location overrides the zone the expression is evaluated in.
	Location *time.Location
}

// ParseSchedule parses expr into a stateless cron.Schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return s, nil
}

// Validate reports whether expr parses.
func Validate(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

// Cursor walks the occurrences of a schedule forward in time.
type Cursor struct {
	sched cron.Schedule
	cur   time.Time
	end   time.Time
	done  bool
}

// Parse parses expr and positions a cursor at opts.Start.
func Parse(expr string, opts Options) (*Cursor, error) {
	s, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if opts.Location != nil {
		if ss, ok := s.(*cron.SpecSchedule); ok {
			ss.Location = opts.Location
		}
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	return &Cursor{sched: s, cur: start, end: opts.End}, nil
}

// Schedule exposes the underlying stateless schedule.
func (c *Cursor) Schedule() cron.Schedule { return c.sched }

// Next returns the next occurrence, or false once the schedule is exhausted
// or the next occurrence falls after End.
func (c *Cursor) Next() (time.Time, bool) {
	if c.done {
		return time.Time{}, false
	}
	n := c.sched.Next(c.cur)
	if n.IsZero() || (!c.end.IsZero() && n.After(c.end)) {
		c.done = true
		return time.Time{}, false
	}
	c.cur = n
	return n, true
}

// Take returns up to n upcoming occurrences.
func (c *Cursor) Take(n int) []time.Time {
	out := make([]time.Time, 0, n)
	for len(out) < n {
		t, ok := c.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}
