package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"tickwork/internal/cronexpr"
	"tickwork/internal/sortedset"
	"tickwork/internal/timer"
	logx "tickwork/pkg/logx"
	"tickwork/pkg/recurrence"
)

var _ cron.Schedule = (*recurrence.Rule)(nil)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for "now" and, unless WithTimer is also
// given, for arming timers.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTimer sets the timer primitive used to arm the earliest invocation.
func WithTimer(t timer.Timer) Option {
	return func(s *Scheduler) {
		if t != nil {
			s.timer = t
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logx.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler holds every pending invocation of its jobs and keeps exactly one
// timer armed, for the earliest of them.
type Scheduler struct {
	clock clockwork.Clock
	timer timer.Timer
	log   logx.Logger

	mu     sync.Mutex
	all    *sortedset.Set[*invocation]
	armed  *invocation
	jobs   map[string]*Job
	anon   uint64
	tokens uint64
	closed bool

	fires     chan fire
	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New returns a running Scheduler. Call Close to stop its dispatch goroutine.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: clockwork.NewRealClock(),
		all:   sortedset.New(byFireDate),
		jobs:  map[string]*Job{},
		fires: make(chan fire),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.timer == nil {
		s.timer = timer.New(s.clock, timer.DefaultMaxChunk)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Now returns the scheduler clock's current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// NewJob creates an unscheduled job. An empty name is replaced by a unique
// anonymous one.
func (s *Scheduler) NewJob(name string, work Work, callback func()) *Job {
	if name == "" {
		s.mu.Lock()
		s.anon++
		name = fmt.Sprintf("<Anonymous Job %d>", s.anon)
		s.mu.Unlock()
	}
	return newJob(s, name, work, callback)
}

// ScheduleJob creates a job and schedules it.
func (s *Scheduler) ScheduleJob(name string, spec Spec, work Work, callback func()) (*Job, error) {
	j := s.NewJob(name, work, callback)
	ok, err := j.Schedule(spec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotScheduled, j.Name(), spec)
	}
	return j, nil
}

// RescheduleJob replaces the schedule of a registered job. On failure the
// previous schedule stays in place.
func (s *Scheduler) RescheduleJob(name string, spec Spec) (*Job, error) {
	j, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	ok, err := j.Reschedule(spec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotScheduled, name, spec)
	}
	return j, nil
}

// CancelJob cancels a registered job. It reports false for unknown names.
func (s *Scheduler) CancelJob(name string) bool {
	j, ok := s.Lookup(name)
	if !ok {
		return false
	}
	return j.Cancel()
}

// RunNow invokes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return j.Invoke(ctx)
}

// Lookup returns the registered job with the given name.
func (s *Scheduler) Lookup(name string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return j, ok
}

// Jobs returns a copy of the registry.
func (s *Scheduler) Jobs() map[string]*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Job, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v
	}
	return out
}

// Pending returns the number of pending invocations across all jobs.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all.Len()
}

// NextFire returns the fire date of the armed invocation.
func (s *Scheduler) NextFire() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed == nil {
		return time.Time{}, false
	}
	return s.armed.fireDate, true
}

// Reset cancels every job and clears the registry and the anonymous name
// counter. The scheduler stays usable.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.anon = 0
}

// Close cancels every pending invocation and stops the dispatch goroutine,
// waiting for a running job to return. It must not be called from job work.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.resetLocked()
		s.mu.Unlock()

		close(s.done)
		s.cancel()
		s.wg.Wait()
		s.log.Debug("scheduler closed")
	})
	return nil
}

func (s *Scheduler) resetLocked() {
	for _, j := range s.jobs {
		j.cancelLocked()
	}
	for _, inv := range s.all.Items() {
		s.cancelInvocationLocked(inv)
	}
	s.jobs = map[string]*Job{}
}

// recurrenceFor resolves the recurring kinds of spec.
func (s *Scheduler) recurrenceFor(spec Spec) (Recurrence, error) {
	switch spec.Kind {
	case KindRule:
		if spec.Rule == nil {
			return nil, fmt.Errorf("nil rule")
		}
		return ruleSchedule{rule: spec.Rule, clock: s.clock}, nil
	case KindCron:
		return cronexpr.ParseSchedule(spec.Cron)
	case KindEvery:
		if spec.Every <= 0 {
			return nil, fmt.Errorf("interval must be > 0")
		}
		return cron.Every(spec.Every), nil
	default:
		return nil, fmt.Errorf("spec kind %s does not recur", spec.Kind)
	}
}

// scheduleInvocationLocked adds inv to the global set and re-arms if it is
// now the earliest.
func (s *Scheduler) scheduleInvocationLocked(inv *invocation) {
	s.all.Insert(inv)
	s.prepareNextLocked()
	inv.job.emit(EventScheduled, inv.fireDate)
}

// cancelInvocationLocked removes inv from the global set, disarming it if
// it was armed.
func (s *Scheduler) cancelInvocationLocked(inv *invocation) {
	if !s.all.Remove(inv) {
		return
	}
	s.disarmLocked(inv)
	if s.armed == inv {
		s.armed = nil
	}
	inv.job.emit(EventCanceled, inv.fireDate)
	s.prepareNextLocked()
}

func (s *Scheduler) disarmLocked(inv *invocation) {
	if inv.handle != nil {
		s.timer.Cancel(inv.handle)
		inv.handle = nil
	}
	inv.token = 0
}

// prepareNextLocked arms the timer for the earliest invocation unless it is
// already armed.
func (s *Scheduler) prepareNextLocked() {
	first, ok := s.all.First()
	if !ok || s.armed == first {
		return
	}
	if s.armed != nil {
		s.disarmLocked(s.armed)
		s.armed = nil
	}

	s.tokens++
	first.token = s.tokens
	s.armed = first

	f := fire{inv: first, token: first.token}
	delay := s.clock.Until(first.fireDate)
	if delay < 0 {
		delay = 0
	}
	first.handle = s.timer.Schedule(delay, func() { s.post(f) })
	s.log.Debug("armed",
		logx.String("job", first.job.name),
		logx.Time("fire_at", first.fireDate),
		logx.Duration("in", delay),
	)
}

// nextRecurrenceLocked schedules the occurrence of recur after prev, unless
// there is none or it falls after end.
func (s *Scheduler) nextRecurrenceLocked(j *Job, recur Recurrence, prev, end time.Time) *invocation {
	date := recur.Next(prev)
	if date.IsZero() {
		return nil
	}
	if !end.IsZero() && date.After(end) {
		return nil
	}
	inv := &invocation{job: j, fireDate: date, endDate: end, recur: recur}
	s.scheduleInvocationLocked(inv)
	return inv
}

// post runs on a timer goroutine and hands the expiry to dispatch.
func (s *Scheduler) post(f fire) {
	select {
	case s.fires <- f:
	case <-s.done:
	}
}

func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case f := <-s.fires:
			s.fire(f)
		}
	}
}

func (s *Scheduler) fire(f fire) {
	s.mu.Lock()
	inv := f.inv
	if s.closed || inv.token == 0 || inv.token != f.token || s.armed != inv {
		s.mu.Unlock()
		s.log.Trace("stale timer ignored", logx.String("job", inv.job.name))
		return
	}

	s.all.Remove(inv)
	inv.handle = nil
	inv.token = 0
	s.armed = nil
	s.prepareNextLocked()

	j := inv.job
	if inv.recur != nil {
		if next := s.nextRecurrenceLocked(j, inv.recur, inv.fireDate, inv.endDate); next != nil {
			j.pending.Insert(next)
		}
	}
	j.pending.Remove(inv)
	s.mu.Unlock()

	s.log.Debug("firing", logx.String("job", j.name), logx.Time("fire_at", inv.fireDate))
	if err := j.Invoke(s.ctx); err != nil {
		s.log.Warn("job failed", logx.String("job", j.name), logx.Err(err))
	}
}
