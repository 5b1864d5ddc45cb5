package screening

import (
	"testing"
	"time"
)

func TestRegistryTakeOnce(t *testing.T) {
	t.Parallel()

	r := NewRegistry(time.Minute)
	r.Bind("CA1", 42)
	r.Bind("", 7)
	r.Bind("CA2", 0)

	if r.Len() != 1 {
		t.Fatalf("expected one binding, got %d", r.Len())
	}

	uid, ok := r.Take("CA1")
	if !ok || uid != 42 {
		t.Fatalf("expected 42, got %d %v", uid, ok)
	}
	if _, ok := r.Take("CA1"); ok {
		t.Fatal("binding must be consumed once")
	}
}

func TestRegistryExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(time.Minute)
	r.now = func() time.Time { return now }

	r.Bind("CA1", 42)
	now = now.Add(2 * time.Minute)

	if _, ok := r.Take("CA1"); ok {
		t.Fatal("expected expired binding to be ignored")
	}

	r.Bind("CA2", 1)
	now = now.Add(2 * time.Minute)
	r.Bind("CA3", 2)
	if r.Len() != 1 {
		t.Fatalf("expected expired bindings to be pruned, got %d", r.Len())
	}
}

func TestNilRegistry(t *testing.T) {
	t.Parallel()

	var r *Registry
	r.Bind("CA1", 1)
	if _, ok := r.Take("CA1"); ok {
		t.Fatal("nil registry holds nothing")
	}
}
