package bus

import (
	"context"
	"testing"
	"time"

	"llm-autotrader/internal/errs"
)

func TestPublishAssignsOrderedSeq(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	for _, stage := range []string{"load_memories", "analysts", "trader"} {
		if err := b.Publish("run-1", Event{Stage: stage, Status: "completed"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	events, err := b.Events("run-1", 1)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Seq != int64(i+1) {
			t.Errorf("Event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
		if ev.RunID != "run-1" {
			t.Errorf("Event %d has run id %q", i, ev.RunID)
		}
	}
}

func TestEventsFromSeq(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	for i := 0; i < 5; i++ {
		if err := b.Publish("run-1", Event{Stage: "analysts", Status: "started"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	events, err := b.Events("run-1", 4)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events from seq 4, got %d", len(events))
	}
	if events[0].Seq != 4 {
		t.Errorf("Expected first replayed seq 4, got %d", events[0].Seq)
	}
}

func TestTerminateSealsLog(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	if err := b.Publish("run-1", Event{Stage: "analysts", Status: "completed"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Terminate("run-1", Event{Stage: "run", Status: "completed"}); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if !b.Sealed("run-1") {
		t.Error("Expected log to be sealed after terminal event")
	}

	err := b.Publish("run-1", Event{Stage: "late", Status: "started"})
	if errs.KindOf(err) != errs.AlreadySealed {
		t.Errorf("Expected AlreadySealed publishing past terminal, got %v", err)
	}

	// Sealed logs stay readable.
	events, err := b.Events("run-1", 1)
	if err != nil {
		t.Fatalf("Events after seal failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events after seal, got %d", len(events))
	}
	if !events[1].Terminal {
		t.Error("Expected last event to be terminal")
	}
}

func TestEventsUnknownRun(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	if _, err := b.Events("no-such-run", 1); errs.KindOf(err) != errs.NotFound {
		t.Errorf("Expected NotFound for unknown run, got %v", err)
	}
	if _, err := b.Subscribe(context.Background(), "no-such-run", 1); errs.KindOf(err) != errs.NotFound {
		t.Errorf("Expected NotFound subscribing to unknown run, got %v", err)
	}
}

func TestSubscribeReplaysThenFollows(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	if err := b.Publish("run-1", Event{Stage: "load_memories", Status: "completed"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Publish("run-1", Event{Stage: "analysts", Status: "started"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := b.Subscribe(ctx, "run-1", 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Live events published after subscription follow the replay.
	if err := b.Terminate("run-1", Event{Stage: "run", Status: "completed"}); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 delivered events, got %d", len(got))
	}
	for i, ev := range got {
		if ev.Seq != int64(i+1) {
			t.Errorf("Delivered event %d has seq %d", i, ev.Seq)
		}
	}
	if !got[2].Terminal {
		t.Error("Expected stream to end with the terminal event")
	}
}

func TestSubscribeBeyondTail(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	if err := b.Publish("run-1", Event{Stage: "analysts", Status: "started"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := b.Subscribe(ctx, "run-1", 100)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Terminate("run-1", Event{Stage: "run", Status: "completed"}); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}
	// Only the event published after subscription arrives.
	if len(got) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(got))
	}
	if got[0].Seq != 2 {
		t.Errorf("Expected seq 2, got %d", got[0].Seq)
	}
}

func TestCancelledSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New(time.Hour)
	defer b.Close()

	if err := b.Publish("run-1", Event{Stage: "analysts", Status: "started"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadCtx, deadCancel := context.WithCancel(context.Background())
	dead, err := b.Subscribe(deadCtx, "run-1", 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	deadCancel()

	liveCtx, liveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer liveCancel()
	live, err := b.Subscribe(liveCtx, "run-1", 1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Terminate("run-1", Event{Stage: "run", Status: "completed"}); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	var got []Event
	for ev := range live {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Errorf("Live subscriber expected 2 events, got %d", len(got))
	}

	// Cancelled channel eventually closes.
	for range dead {
	}
}
