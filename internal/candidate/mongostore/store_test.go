package mongostore

import (
	"context"
	"errors"
	"testing"

	"github.com/zodrickjohn/Recuria/internal/candidate"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
)

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get decodes record", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "recuria.data", mtest.FirstBatch, bson.D{
			{Key: "UID", Value: int32(42)},
			{Key: "name", Value: "Jane Doe"},
			{Key: "phone", Value: "+15550100"},
			{Key: "phone_screen", Value: "not completed"},
		}))

		store := newStore(mt.Coll, zap.NewNop())

		record, err := store.Get(context.Background(), 42)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record.UID != 42 || record.Name != "Jane Doe" || record.Phone != "+15550100" {
			t.Fatalf("unexpected record: %+v", record)
		}
		if record.PhoneScreen != candidate.ScreenNotCompleted {
			t.Fatalf("unexpected phone screen status: %q", record.PhoneScreen)
		}
	})

	mt.Run("get unknown uid", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "recuria.data", mtest.FirstBatch))

		store := newStore(mt.Coll, zap.NewNop())

		if _, err := store.Get(context.Background(), 404); !errors.Is(err, candidate.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("update matched", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		store := newStore(mt.Coll, zap.NewNop())

		if err := store.UpdateScreening(context.Background(), 42, candidate.Completed(7.5, "good")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	mt.Run("update unknown uid", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		store := newStore(mt.Coll, zap.NewNop())

		err := store.UpdateScreening(context.Background(), 404, candidate.Completed(7.5, "good"))
		if !errors.Is(err, candidate.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("update rejects empty set", func(mt *mtest.T) {
		store := newStore(mt.Coll, zap.NewNop())

		if err := store.UpdateScreening(context.Background(), 1, candidate.ScreeningUpdate{}); err == nil {
			t.Fatal("expected error for empty update")
		}
	})
}

func TestSetDocument(t *testing.T) {
	doc := setDocument(candidate.Completed(6, "notes"))

	if doc["phone_screen"] != candidate.ScreenCompleted {
		t.Fatalf("unexpected status: %v", doc["phone_screen"])
	}
	if doc["secondary_score"] != 6.0 {
		t.Fatalf("unexpected score: %v", doc["secondary_score"])
	}
	if doc["phone_screen_notes"] != "notes" {
		t.Fatalf("unexpected notes: %v", doc["phone_screen_notes"])
	}

	statusOnly := setDocument(candidate.StatusOnly(candidate.ScreenInProgress))
	if len(statusOnly) != 1 {
		t.Fatalf("expected only status to be set, got %v", statusOnly)
	}
}
