package notify

import (
	"testing"
	"time"
)

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Emit("rate limit hit", SeverityWarning, 3*time.Second)

	select {
	case n := <-ch:
		if n.Text != "rate limit hit" || n.Severity != SeverityWarning {
			t.Fatalf("unexpected notification %+v", n)
		}
		if n.Duration != 3*time.Second {
			t.Fatalf("got duration %s", n.Duration)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()

	// Emitting after cancel must not panic or block.
	b.Emit("gone", SeverityInfo, time.Second)

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestMultiFansOut(t *testing.T) {
	b1 := NewBroadcaster()
	b2 := NewBroadcaster()
	ch1, cancel1 := b1.Subscribe()
	ch2, cancel2 := b2.Subscribe()
	defer cancel1()
	defer cancel2()

	Multi{b1, b2}.Emit("hello", SeverityError, time.Second)

	for i, ch := range []<-chan Notification{ch1, ch2} {
		select {
		case n := <-ch:
			if n.Severity != SeverityError {
				t.Fatalf("subscriber %d: got %+v", i, n)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received", i)
		}
	}
}

func TestSeverityString(t *testing.T) {
	tests := map[Severity]string{
		SeverityInfo:    "info",
		SeverityWarning: "warning",
		SeverityError:   "error",
	}
	for severity, want := range tests {
		if got := severity.String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
