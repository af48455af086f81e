package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"tickwork/pkg/recurrence"
)

var epoch = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(epoch)
	s := New(WithClock(fc))
	t.Cleanup(func() { _ = s.Close() })
	return s, fc
}

func everySecond() *recurrence.Rule {
	r := recurrence.NewRule()
	r.Second = nil
	return r
}

// waitEvent waits for the next event of type typ, skipping others.
func waitEvent(t *testing.T, ch <-chan Event, typ string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %q", typ)
			}
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", typ)
		}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event, typ string) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				t.Fatalf("unexpected %q event", typ)
			}
		case <-deadline:
			return
		}
	}
}

func counter(n *atomic.Int32) Func {
	return func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestRecurringFiresThreeTimesThenCancel(t *testing.T) {
	t.Parallel()
	specs := map[string]Spec{
		"rule":  Recurring(everySecond()),
		"cron":  Cron("*/1 * * * * *"),
		"every": Every(time.Second),
	}
	for name, spec := range specs {
		spec := spec
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s, fc := newTestScheduler(t)
			var runs atomic.Int32
			j := s.NewJob("tick", counter(&runs), nil)
			ch, unsub := j.Subscribe(32)
			defer unsub()

			ok, err := j.Schedule(spec)
			if err != nil || !ok {
				t.Fatalf("Schedule() = %v, %v", ok, err)
			}
			fc.Advance(3250 * time.Millisecond)
			for i := 0; i < 3; i++ {
				waitEvent(t, ch, EventRun)
			}
			assertNoEvent(t, ch, EventRun)

			if got := runs.Load(); got != 3 {
				t.Fatalf("runs = %d, want 3", got)
			}
			if got := j.TriggeredCount(); got != 3 {
				t.Fatalf("TriggeredCount() = %d, want 3", got)
			}
			next, ok := j.NextInvocation()
			if !ok || !next.Equal(epoch.Add(4*time.Second)) {
				t.Fatalf("NextInvocation() = %s, %v", next, ok)
			}

			j.Cancel()
			fc.Advance(5 * time.Second)
			assertNoEvent(t, ch, EventRun)
			if n := s.Pending(); n != 0 {
				t.Fatalf("Pending() = %d after cancel", n)
			}
			if _, armed := s.NextFire(); armed {
				t.Fatal("timer still armed after cancel")
			}
		})
	}
}

func TestBoundedFiresOnce(t *testing.T) {
	t.Parallel()
	s, fc := newTestScheduler(t)
	var runs atomic.Int32
	j := s.NewJob("bounded", counter(&runs), nil)
	ch, unsub := j.Subscribe(32)
	defer unsub()

	spec := Bounded(epoch.Add(time.Second), epoch.Add(2*time.Second), Recurring(everySecond()))
	if ok, err := j.Schedule(spec); err != nil || !ok {
		t.Fatalf("Schedule() = %v, %v", ok, err)
	}
	fc.Advance(3250 * time.Millisecond)
	waitEvent(t, ch, EventRun)
	assertNoEvent(t, ch, EventRun)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	if n := s.Pending(); n != 0 {
		t.Fatalf("Pending() = %d, want 0", n)
	}
}

func TestBoundedRejectsNonRecurring(t *testing.T) {
	t.Parallel()
	sp := Bounded(epoch, epoch.Add(time.Hour), At(epoch.Add(time.Minute)))
	if sp.Valid() {
		t.Fatalf("Bounded(At) = %v, want invalid", sp)
	}
}

func TestFixedInstant(t *testing.T) {
	t.Parallel()
	s, fc := newTestScheduler(t)
	var runs atomic.Int32
	j := s.NewJob("once", counter(&runs), nil)
	ch, unsub := j.Subscribe(8)
	defer unsub()

	if ok, err := j.Schedule(At(epoch.Add(time.Minute))); err != nil || !ok {
		t.Fatalf("Schedule() = %v, %v", ok, err)
	}
	if e := waitEvent(t, ch, EventScheduled); !e.Data.(time.Time).Equal(epoch.Add(time.Minute)) {
		t.Fatalf("scheduled event date = %v", e.Data)
	}
	fc.Advance(59 * time.Second)
	assertNoEvent(t, ch, EventRun)
	fc.Advance(time.Second)
	waitEvent(t, ch, EventRun)
	if _, ok := j.NextInvocation(); ok {
		t.Fatal("one-shot job still has a pending invocation")
	}
}

func TestPastInstantIsNotScheduled(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	j, err := s.ScheduleJob("past", At(epoch.Add(-time.Second)), Func(nil), nil)
	if !errors.Is(err, ErrNotScheduled) || j != nil {
		t.Fatalf("ScheduleJob(past) = %v, %v", j, err)
	}
	if _, ok := s.Lookup("past"); ok {
		t.Fatal("past job registered")
	}
	if _, err := s.ScheduleJob("now", At(epoch), Func(nil), nil); err != nil {
		t.Fatalf("ScheduleJob(now) = %v", err)
	}
}

func TestInvalidSpecsAreNotScheduled(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	bad := recurrence.NewRule()
	bad.Hour = recurrence.Value(24)
	expired := recurrence.NewRule()
	expired.Year = recurrence.Value(2000)
	for name, spec := range map[string]Spec{
		"zero":    {},
		"rule":    Recurring(bad),
		"expired": Recurring(expired),
		"cron":    Cron("not a cron"),
		"ended":   Bounded(time.Time{}, epoch.Add(-time.Hour), Every(time.Minute)),
	} {
		ok, err := s.NewJob(name, nil, nil).Schedule(spec)
		if ok || err != nil {
			t.Fatalf("%s: Schedule() = %v, %v, want false, nil", name, ok, err)
		}
	}
	if n := len(s.Jobs()); n != 0 {
		t.Fatalf("Jobs() has %d entries", n)
	}
}

func TestDuplicateName(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	spec := At(epoch.Add(24 * time.Hour))
	if _, err := s.ScheduleJob("dup", spec, Func(nil), nil); err != nil {
		t.Fatalf("first ScheduleJob: %v", err)
	}
	if _, err := s.ScheduleJob("dup", spec, Func(nil), nil); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("second ScheduleJob err = %v, want ErrDuplicateName", err)
	}
	if !s.CancelJob("dup") {
		t.Fatal("CancelJob = false")
	}
	if _, err := s.ScheduleJob("dup", spec, Func(nil), nil); err != nil {
		t.Fatalf("ScheduleJob after cancel: %v", err)
	}
}

func TestCancelRearmsForNextEarliest(t *testing.T) {
	t.Parallel()
	s, fc := newTestScheduler(t)
	a := s.NewJob("a", Func(nil), nil)
	b := s.NewJob("b", Func(nil), nil)
	chA, unsubA := a.Subscribe(8)
	defer unsubA()
	chB, unsubB := b.Subscribe(8)
	defer unsubB()

	if ok, _ := a.Schedule(At(epoch.Add(time.Second))); !ok {
		t.Fatal("schedule a")
	}
	if ok, _ := b.Schedule(At(epoch.Add(2 * time.Second))); !ok {
		t.Fatal("schedule b")
	}
	if at, _ := s.NextFire(); !at.Equal(epoch.Add(time.Second)) {
		t.Fatalf("armed for %s, want a", at)
	}

	a.Cancel()
	if e := waitEvent(t, chA, EventCanceled); !e.Data.(time.Time).Equal(epoch.Add(time.Second)) {
		t.Fatalf("canceled event date = %v", e.Data)
	}
	if at, _ := s.NextFire(); !at.Equal(epoch.Add(2 * time.Second)) {
		t.Fatalf("armed for %s, want b", at)
	}
	if n := s.Pending(); n != 1 {
		t.Fatalf("Pending() = %d, want 1", n)
	}

	fc.Advance(1500 * time.Millisecond)
	assertNoEvent(t, chA, EventRun)
	fc.Advance(time.Second)
	waitEvent(t, chB, EventRun)
	if a.Cancel() != true {
		t.Fatal("second Cancel = false")
	}
}

func TestRescheduleRollback(t *testing.T) {
	t.Parallel()
	s, fc := newTestScheduler(t)
	j, err := s.ScheduleJob("keep", At(epoch.Add(time.Hour)), Func(nil), nil)
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	ch, unsub := j.Subscribe(16)
	defer unsub()

	ok, err := j.Reschedule(At(epoch.Add(-time.Hour)))
	if ok || err != nil {
		t.Fatalf("Reschedule(past) = %v, %v", ok, err)
	}
	pending := j.PendingInvocations()
	if len(pending) != 1 || !pending[0].Equal(epoch.Add(time.Hour)) {
		t.Fatalf("PendingInvocations() = %v", pending)
	}
	if got, ok := s.Lookup("keep"); !ok || got != j {
		t.Fatal("job deregistered by failed reschedule")
	}
	if at, ok := s.NextFire(); !ok || !at.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("NextFire() = %s, %v", at, ok)
	}
	if _, err := s.RescheduleJob("keep", Cron("bogus")); !errors.Is(err, ErrNotScheduled) {
		t.Fatalf("RescheduleJob(bogus) err = %v", err)
	}

	fc.Advance(time.Hour)
	waitEvent(t, ch, EventRun)
}

func TestRescheduleResetsTriggeredCount(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	j, err := s.ScheduleJob("count", At(epoch.Add(time.Hour)), Func(nil), nil)
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := s.RunNow(ctx, "count"); err != nil {
			t.Fatalf("RunNow: %v", err)
		}
	}
	if got := j.TriggeredCount(); got != 2 {
		t.Fatalf("TriggeredCount() = %d, want 2", got)
	}
	if _, err := s.RescheduleJob("count", At(epoch.Add(2*time.Hour))); err != nil {
		t.Fatalf("RescheduleJob: %v", err)
	}
	if got := j.TriggeredCount(); got != 0 {
		t.Fatalf("TriggeredCount() after reschedule = %d", got)
	}
	pending := j.PendingInvocations()
	if len(pending) != 1 || !pending[0].Equal(epoch.Add(2*time.Hour)) {
		t.Fatalf("PendingInvocations() = %v", pending)
	}
	if n := s.Pending(); n != 1 {
		t.Fatalf("Pending() = %d, want 1", n)
	}
}

func TestUnknownJob(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	if err := s.RunNow(context.Background(), "ghost"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("RunNow err = %v", err)
	}
	if s.CancelJob("ghost") {
		t.Fatal("CancelJob(ghost) = true")
	}
	if _, err := s.RescheduleJob("ghost", Every(time.Minute)); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("RescheduleJob err = %v", err)
	}
}

func TestAnonymousNames(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	a := s.NewJob("", nil, nil)
	b := s.NewJob("", nil, nil)
	if a.Name() != "<Anonymous Job 1>" || b.Name() != "<Anonymous Job 2>" {
		t.Fatalf("names = %q, %q", a.Name(), b.Name())
	}
	s.Reset()
	if c := s.NewJob("", nil, nil); c.Name() != "<Anonymous Job 1>" {
		t.Fatalf("name after Reset = %q", c.Name())
	}
}

func TestWorkMayCancelItself(t *testing.T) {
	t.Parallel()
	s, fc := newTestScheduler(t)
	var runs atomic.Int32
	var j *Job
	j = s.NewJob("self", Func(func(context.Context) error {
		runs.Add(1)
		j.Cancel()
		return nil
	}), nil)
	ch, unsub := j.Subscribe(32)
	defer unsub()
	if ok, _ := j.Schedule(Every(time.Second)); !ok {
		t.Fatal("Schedule = false")
	}
	fc.Advance(3250 * time.Millisecond)
	waitEvent(t, ch, EventRun)
	assertNoEvent(t, ch, EventRun)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
	if _, ok := s.Lookup("self"); ok {
		t.Fatal("job still registered")
	}
}

func TestFailingWorkDoesNotStopScheduler(t *testing.T) {
	t.Parallel()
	s, fc := newTestScheduler(t)
	var fails atomic.Int32
	if _, err := s.ScheduleJob("bad", Every(time.Second), Func(func(context.Context) error {
		fails.Add(1)
		return errors.New("boom")
	}), nil); err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	good := s.NewJob("good", Func(nil), nil)
	ch, unsub := good.Subscribe(8)
	defer unsub()
	if ok, _ := good.Schedule(At(epoch.Add(1500 * time.Millisecond))); !ok {
		t.Fatal("schedule good")
	}
	fc.Advance(2 * time.Second)
	waitEvent(t, ch, EventRun)
	if fails.Load() == 0 {
		t.Fatal("failing job never ran")
	}
}

func TestCloseRejectsScheduling(t *testing.T) {
	t.Parallel()
	fc := clockwork.NewFakeClockAt(epoch)
	s := New(WithClock(fc))
	if _, err := s.ScheduleJob("x", Every(time.Minute), Func(nil), nil); err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = s.Close()
	if n := s.Pending(); n != 0 {
		t.Fatalf("Pending() after Close = %d", n)
	}
	if _, err := s.ScheduleJob("y", Every(time.Minute), Func(nil), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("ScheduleJob after Close err = %v", err)
	}
}

func TestDefaultScheduler(t *testing.T) {
	fc := clockwork.NewFakeClockAt(epoch)
	prev := SetDefault(New(WithClock(fc)))
	t.Cleanup(func() {
		ResetDefault()
		SetDefault(prev)
	})

	if _, err := ScheduleJob("global", At(epoch.Add(time.Hour)), Func(nil), nil); err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	if _, ok := Jobs()["global"]; !ok {
		t.Fatal("Jobs() missing global")
	}
	if err := RunNow(context.Background(), "global"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if _, err := RescheduleJob("global", At(epoch.Add(2*time.Hour))); err != nil {
		t.Fatalf("RescheduleJob: %v", err)
	}
	if !CancelJob("global") {
		t.Fatal("CancelJob = false")
	}
	if _, ok := Lookup("global"); ok {
		t.Fatal("Lookup found canceled job")
	}
}

func TestStaleFireIsIgnored(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	var runs atomic.Int32
	work := Func(func(context.Context) error { runs.Add(1); return nil })

	late, err := s.ScheduleJob("late", At(epoch.Add(time.Hour)), work, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	stale := fire{inv: s.armed, token: s.armed.token}
	s.mu.Unlock()

	// An earlier job takes over the timer, so the captured arming is stale.
	if _, err := s.ScheduleJob("early", At(epoch.Add(time.Minute)), work, nil); err != nil {
		t.Fatal(err)
	}
	s.fire(stale)
	if got := runs.Load(); got != 0 {
		t.Fatalf("stale fire ran work %d times", got)
	}
	if got := len(late.PendingInvocations()); got != 1 {
		t.Fatalf("late pending = %d, want 1", got)
	}

	s.CancelJob("early")
	s.mu.Lock()
	rearmed := fire{inv: s.armed, token: s.armed.token}
	s.mu.Unlock()
	late.Cancel()
	s.fire(rearmed)
	if got := runs.Load(); got != 0 {
		t.Fatalf("fire after cancel ran work %d times", got)
	}
	if s.Pending() != 0 {
		t.Fatalf("pending = %d after cancel", s.Pending())
	}
}
