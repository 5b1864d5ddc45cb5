package candidate

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreUpdateScreening(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(Record{UID: 7, Name: "Jane Doe", PhoneScreen: ScreenNotCompleted})

	if err := store.UpdateScreening(ctx, 7, StatusOnly(ScreenInProgress)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.UpdateScreening(ctx, 7, Completed(6.5, "solid answers")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.UpdateScreening(ctx, 7, Completed(7.5, "second pass")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.PhoneScreen != ScreenCompleted || got.SecondaryScore != 7.5 || got.PhoneNotes != "second pass" {
		t.Fatalf("expected last write to win, got %+v", got)
	}
	if got.Name != "Jane Doe" {
		t.Fatalf("expected untouched fields to survive, got %+v", got)
	}
	if store.Updates() != 3 {
		t.Fatalf("expected 3 updates, got %d", store.Updates())
	}
}

func TestMemoryStoreUnknownUID(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Get(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err := store.UpdateScreening(context.Background(), 99, Completed(5, "n/a"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Updates() != 0 {
		t.Fatalf("expected no updates, got %d", store.Updates())
	}
}

func TestParseUID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "42", want: 42},
		{in: " 7 ", want: 7},
		{in: "0", wantErr: true},
		{in: "-3", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseUID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: expected %d, got %d (%v)", tt.in, tt.want, got, err)
		}
	}
}

func TestScreeningUpdateEmpty(t *testing.T) {
	if !(ScreeningUpdate{}).Empty() {
		t.Fatal("expected zero update to be empty")
	}
	if StatusOnly(ScreenInProgress).Empty() {
		t.Fatal("expected status update to be non-empty")
	}
}
