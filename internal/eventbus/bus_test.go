package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "reminder.armed"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != "reminder.armed" {
			t.Fatalf("Type = %q", e.Type)
		}
		if e.Time.IsZero() {
			t.Fatal("Time should be stamped")
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"}) // dropped, must not block

	if e := <-ch; e.Type != "one" {
		t.Fatalf("Type = %q, want one", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	// publishing after unsubscribe must not panic
	b.Publish(Event{Type: "late"})
}
