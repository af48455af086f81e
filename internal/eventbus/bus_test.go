package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "run", Data: 7})
	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != "run" || e.Data != 7 {
			t.Fatalf("got %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("event time not stamped")
		}
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "first"})
	b.Publish(Event{Type: "second"})
	if e := <-ch; e.Type != "first" {
		t.Fatalf("got %q, want first", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("Subscribers() = %d", n)
	}
	b.Publish(Event{Type: "ignored"})
}

func TestWithNowStampsEvents(t *testing.T) {
	t.Parallel()
	at := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(WithNow(func() time.Time { return at }))
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "x"})
	if e := <-ch; !e.Time.Equal(at) {
		t.Fatalf("Time = %s, want %s", e.Time, at)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Close()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel open after Close")
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("subscribe after Close returned open channel")
	}
}
