package notify

import (
	"testing"
	"time"
)

type recordingSink struct{ got []Notification }

func (s *recordingSink) Deliver(n Notification) { s.got = append(s.got, n) }

func TestPublish_FansOutToSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	sent := h.Error("r1", "Attendance failed: timeout")

	for name, ch := range map[string]chan Notification{"a": a, "b": b} {
		select {
		case n := <-ch:
			if n.ID != sent.ID || n.Kind != KindError || n.JobID != "r1" {
				t.Errorf("%s received %+v, want %+v", name, n, sent)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive notification", name)
		}
	}
}

func TestPublish_StampsIDAndTime(t *testing.T) {
	h := NewHub()
	n := h.Success("r1", "ready")
	if n.ID == "" {
		t.Error("ID is empty, want generated id")
	}
	if n.At.IsZero() {
		t.Error("At is zero, want publish time")
	}
}

func TestPublish_NeverBlocksOnFullSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Success("", "spam")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestUnsubscribe_ClosesOnce(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestRecent_KeepsLast50(t *testing.T) {
	h := NewHub()
	for i := 0; i < recentSize+10; i++ {
		h.Success("", "n")
	}
	if got := len(h.Recent()); got != recentSize {
		t.Errorf("len(Recent()) = %d, want %d", got, recentSize)
	}
}

func TestPublish_ForwardsToSinks(t *testing.T) {
	sink := &recordingSink{}
	h := NewHub(sink)
	h.Success("r9", "ready")
	if len(sink.got) != 1 || sink.got[0].JobID != "r9" {
		t.Errorf("sink received %+v, want one notification for r9", sink.got)
	}
}
