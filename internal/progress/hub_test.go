package progress

import (
	"testing"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

func drain(ch <-chan domain.ProgressEvent) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStreamDeliversInOrderAndCloses(t *testing.T) {
	hub := NewHub()
	em := hub.Register("job-1")

	ch, cancel, ok := hub.Subscribe("job-1")
	if !ok {
		t.Fatal("subscribe failed for registered job")
	}
	defer cancel()

	em.Emit(domain.ProgressEvent{Type: domain.EventPageStart, CurrentPage: 1})
	em.Emit(domain.ProgressEvent{Type: domain.EventPageComplete, CurrentPage: 1})
	em.Terminal(domain.ProgressEvent{Type: domain.EventComplete, Status: domain.ScanStatusComplete})

	got := drain(ch)
	want := []domain.ProgressEventType{domain.EventPageStart, domain.EventPageComplete, domain.EventComplete}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %#v", len(got), len(want), got)
	}
	for i, ev := range got {
		if ev.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Type, want[i])
		}
	}
}

func TestTerminalIsExactlyOnce(t *testing.T) {
	hub := NewHub()
	em := hub.Register("job-1")
	ch, cancel, _ := hub.Subscribe("job-1")
	defer cancel()

	em.Terminal(domain.ProgressEvent{Type: domain.EventCancelled})
	// Both of these must be silently discarded; a second close would panic.
	em.Terminal(domain.ProgressEvent{Type: domain.EventError})
	em.Emit(domain.ProgressEvent{Type: domain.EventPageStart})

	got := drain(ch)
	if len(got) != 1 || got[0].Type != domain.EventCancelled {
		t.Fatalf("want single cancelled event, got %#v", got)
	}
}

func TestLateSubscriberGetsReplayThenClosed(t *testing.T) {
	hub := NewHub()
	em := hub.Register("job-1")
	em.Emit(domain.ProgressEvent{Type: domain.EventPageStart, CurrentPage: 1})
	em.Terminal(domain.ProgressEvent{Type: domain.EventComplete})

	ch, _, ok := hub.Subscribe("job-1")
	if !ok {
		t.Fatal("subscribe failed for finished job")
	}
	got := drain(ch)
	if len(got) != 2 || got[1].Type != domain.EventComplete {
		t.Fatalf("replay wrong: %#v", got)
	}
}

func TestSubscribeUnknownJob(t *testing.T) {
	hub := NewHub()
	if _, _, ok := hub.Subscribe("nope"); ok {
		t.Fatal("expected ok=false for unknown job")
	}
}

func TestSlowConsumerNeverBlocksEmitter(t *testing.T) {
	hub := NewHub()
	em := hub.Register("job-1")
	ch, cancel, _ := hub.Subscribe("job-1")
	defer cancel()

	// Overflow the subscriber buffer without reading; Emit must not block.
	for i := 0; i < subscriberBuffer*3; i++ {
		em.Emit(domain.ProgressEvent{Type: domain.EventPageComplete, CurrentPage: i})
	}
	em.Terminal(domain.ProgressEvent{Type: domain.EventComplete})

	got := drain(ch)
	if len(got) == 0 {
		t.Fatal("expected buffered events")
	}
	if got[len(got)-1].Type != domain.EventComplete {
		t.Fatalf("terminal event lost under backpressure; last = %s", got[len(got)-1].Type)
	}
}

func TestReapDropsFinishedStreams(t *testing.T) {
	hub := NewHub()
	em := hub.Register("done-job")
	em.Terminal(domain.ProgressEvent{Type: domain.EventComplete})
	hub.Register("live-job")

	if n := hub.Reap(0); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, _, ok := hub.Subscribe("done-job"); ok {
		t.Fatal("reaped stream still subscribable")
	}
	if _, _, ok := hub.Subscribe("live-job"); !ok {
		t.Fatal("live stream should survive reap")
	}
}
