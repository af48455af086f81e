package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tickwork/internal/eventbus"
	"tickwork/internal/sortedset"
	logx "tickwork/pkg/logx"
)

// Event types published by a Job. Scheduled and canceled events carry the
// invocation's fire date as Data.
const (
	EventScheduled = "scheduled"
	EventCanceled  = "canceled"
	EventRun       = "run"
)

// Event is a job notification.
type Event = eventbus.Event

// Job is a named unit of work with its own set of pending invocations.
type Job struct {
	s        *Scheduler
	name     string
	work     Work
	callback func()

	// pending is guarded by s.mu.
	pending   *sortedset.Set[*invocation]
	triggered atomic.Uint64
	bus       *eventbus.MemBus
}

func newJob(s *Scheduler, name string, work Work, callback func()) *Job {
	return &Job{
		s:        s,
		name:     name,
		work:     work,
		callback: callback,
		pending:  sortedset.New(byFireDate),
		bus:      eventbus.New(eventbus.WithNow(s.clock.Now)),
	}
}

// Name returns the job's registry key.
func (j *Job) Name() string { return j.name }

// TriggeredCount is the number of times Func work has run since the job was
// last rescheduled.
func (j *Job) TriggeredCount() uint64 { return j.triggered.Load() }

// Subscribe returns a channel of the job's events. Slow readers lose events.
func (j *Job) Subscribe(buffer int) (<-chan Event, func()) { return j.bus.Subscribe(buffer) }

func (j *Job) emit(typ string, date time.Time) {
	j.bus.Publish(Event{Type: typ, Data: date})
}

// Schedule adds the job's first invocation for spec and registers the job
// by name. It returns false without error when spec yields no future
// firing: a past instant, an invalid or exhausted recurrence, or a cron
// expression that does not parse.
func (j *Job) Schedule(spec Spec) (bool, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	return j.scheduleLocked(spec)
}

func (j *Job) scheduleLocked(spec Spec) (bool, error) {
	s := j.s
	if s.closed {
		return false, ErrClosed
	}
	if _, taken := s.jobs[j.name]; taken {
		return false, fmt.Errorf("%w: %s", ErrDuplicateName, j.name)
	}

	now := s.clock.Now()
	switch {
	case spec.Kind == KindAt:
		if spec.At.IsZero() || spec.At.Before(now) {
			return false, nil
		}
		inv := &invocation{job: j, fireDate: spec.At}
		s.scheduleInvocationLocked(inv)
		j.pending.Insert(inv)
	case spec.Recurring():
		recur, err := s.recurrenceFor(spec)
		if err != nil {
			s.log.Debug("spec rejected", logx.String("job", j.name), logx.Err(err))
			return false, nil
		}
		base := now
		if spec.Start.After(base) {
			base = spec.Start
		}
		inv := s.nextRecurrenceLocked(j, recur, base, spec.End)
		if inv == nil {
			return false, nil
		}
		j.pending.Insert(inv)
	default:
		return false, nil
	}

	s.jobs[j.name] = j
	return true, nil
}

// Cancel cancels every pending invocation and deregisters the job.
// It always returns true.
func (j *Job) Cancel() bool {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	j.cancelLocked()
	return true
}

func (j *Job) cancelLocked() {
	for _, inv := range j.pending.Items() {
		j.s.cancelInvocationLocked(inv)
	}
	j.pending.Clear()
	if cur, ok := j.s.jobs[j.name]; ok && cur == j {
		delete(j.s.jobs, j.name)
	}
}

// Reschedule replaces the job's schedule with spec. On success the
// triggered count is reset. On failure the previous invocations are
// restored and re-armed and the job stays registered.
func (j *Job) Reschedule(spec Spec) (bool, error) {
	s := j.s
	s.mu.Lock()
	defer s.mu.Unlock()

	_, wasRegistered := s.jobs[j.name]
	snapshot := j.pending.Items()
	j.cancelLocked()

	ok, err := j.scheduleLocked(spec)
	if ok {
		j.triggered.Store(0)
		return true, nil
	}

	for _, inv := range snapshot {
		s.scheduleInvocationLocked(inv)
		j.pending.Insert(inv)
	}
	if _, taken := s.jobs[j.name]; wasRegistered && !taken {
		s.jobs[j.name] = j
	}
	return false, err
}

// Invoke runs the job's work, then its callback, then publishes a run event.
// A work error is returned at once and skips the callback and the event.
// Panics are not recovered.
func (j *Job) Invoke(ctx context.Context) error {
	if j.work != nil {
		if j.work.counted() {
			j.triggered.Add(1)
		}
		if err := j.work.run(ctx); err != nil {
			return err
		}
	}
	if j.callback != nil {
		j.callback()
	}
	j.bus.Publish(Event{Type: EventRun})
	return nil
}

// NextInvocation returns the earliest pending fire date.
func (j *Job) NextInvocation() (time.Time, bool) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	inv, ok := j.pending.First()
	if !ok {
		return time.Time{}, false
	}
	return inv.fireDate, true
}

// PendingInvocations returns the fire dates of every pending invocation in
// ascending order.
func (j *Job) PendingInvocations() []time.Time {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	out := make([]time.Time, 0, j.pending.Len())
	for _, inv := range j.pending.Items() {
		out = append(out, inv.fireDate)
	}
	return out
}
