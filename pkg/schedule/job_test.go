package schedule

import (
	"context"
	"errors"
	"testing"
)

type executor struct{ calls int }

func (e *executor) Execute(context.Context) error {
	e.calls++
	return nil
}

func TestInvokeFunc(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	var calls, callbacks int
	j := s.NewJob("f", Func(func(context.Context) error {
		calls++
		return nil
	}), func() { callbacks++ })
	ch, unsub := j.Subscribe(4)
	defer unsub()

	for i := 0; i < 2; i++ {
		if err := j.Invoke(context.Background()); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	}
	if calls != 2 || callbacks != 2 {
		t.Fatalf("calls = %d, callbacks = %d", calls, callbacks)
	}
	if got := j.TriggeredCount(); got != 2 {
		t.Fatalf("TriggeredCount() = %d, want 2", got)
	}
	waitEvent(t, ch, EventRun)
	waitEvent(t, ch, EventRun)
}

func TestInvokeExecutorDoesNotCount(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	e := &executor{}
	j := s.NewJob("e", Exec(e), nil)
	if err := j.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if e.calls != 1 {
		t.Fatalf("Execute calls = %d", e.calls)
	}
	if got := j.TriggeredCount(); got != 0 {
		t.Fatalf("TriggeredCount() = %d, want 0", got)
	}
}

func TestInvokeErrorSkipsCallbackAndEvent(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	boom := errors.New("boom")
	callbacks := 0
	j := s.NewJob("err", Func(func(context.Context) error { return boom }), func() { callbacks++ })
	ch, unsub := j.Subscribe(4)
	defer unsub()

	if err := j.Invoke(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Invoke err = %v, want boom", err)
	}
	if callbacks != 0 {
		t.Fatal("callback ran after failing work")
	}
	assertNoEvent(t, ch, EventRun)
	if err := s.RunNow(context.Background(), "err"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("RunNow on unregistered job err = %v", err)
	}
}

func TestInvokePanicPropagates(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	j := s.NewJob("panic", Func(func(context.Context) error { panic("work exploded") }), nil)
	defer func() {
		if r := recover(); r != "work exploded" {
			t.Fatalf("recover() = %v", r)
		}
	}()
	_ = j.Invoke(context.Background())
	t.Fatal("Invoke returned after panic")
}

func TestNilWorkStillRunsCallback(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(t)
	ran := false
	j := s.NewJob("", nil, func() { ran = true })
	if err := j.Invoke(context.Background()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !ran {
		t.Fatal("callback not run")
	}
}
