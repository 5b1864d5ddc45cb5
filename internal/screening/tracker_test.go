package screening

import (
	"context"
	"testing"
	"time"
)

func TestTrackerRegisterAndWait(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	canceled := 0
	unregister := tracker.Register("s1", func() { canceled++ })

	if tracker.Count() != 1 {
		t.Fatalf("expected one session, got %d", tracker.Count())
	}
	if n := tracker.CancelAll(); n != 1 || canceled != 1 {
		t.Fatalf("expected one cancel, got %d/%d", n, canceled)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if tracker.Wait(ctx) {
		t.Fatal("wait should time out while the session is registered")
	}

	unregister()
	unregister()

	if !tracker.Wait(context.Background()) {
		t.Fatal("wait should return once sessions unregister")
	}
	if tracker.Count() != 0 {
		t.Fatalf("expected no sessions, got %d", tracker.Count())
	}
}

func TestTrackerReplacesDuplicateID(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.Register("s1", nil)
	unregister := tracker.Register("s1", nil)

	if tracker.Count() != 1 {
		t.Fatalf("expected one session, got %d", tracker.Count())
	}

	unregister()
	if !tracker.Wait(context.Background()) {
		t.Fatal("replaced registration should not block wait")
	}
}

func TestNilTracker(t *testing.T) {
	t.Parallel()

	var tracker *Tracker
	tracker.Register("s1", func() {})()
	if tracker.Count() != 0 || tracker.CancelAll() != 0 || !tracker.Wait(context.Background()) {
		t.Fatal("nil tracker should be inert")
	}
}

func TestTrackerRefusesAfterCancelAll(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.CancelAll()

	canceled := false
	unregister := tracker.Register("late", func() { canceled = true })

	if !canceled {
		t.Fatal("late session should be canceled right away")
	}
	if tracker.Count() != 0 {
		t.Fatalf("expected no sessions, got %d", tracker.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !tracker.Wait(ctx) {
		t.Fatal("refused session must not block wait")
	}
	unregister()
}
