// Package mongostore implements candidate.Store on a MongoDB collection of resume documents.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zodrickjohn/Recuria/internal/candidate"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	defaultCollection = "data"
	uidField          = "UID"
	connectTimeout    = 10 * time.Second
)

// Config locates the candidate collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// Store is a candidate.Store backed by MongoDB.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// Connect dials MongoDB, verifies the connection and returns a Store.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongo uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, errors.New("mongo database is required")
	}

	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		collection = defaultCollection
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := newStore(client.Database(cfg.Database).Collection(collection), logger)
	store.client = client

	store.logger.Info("connected to candidate store",
		zap.String("database", cfg.Database),
		zap.String("collection", collection),
	)

	return store, nil
}

func newStore(coll *mongo.Collection, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{coll: coll, logger: logger.Named("candidates")}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Get fetches the record keyed by uid.
func (s *Store) Get(ctx context.Context, uid int64) (*candidate.Record, error) {
	var record candidate.Record

	err := s.coll.FindOne(ctx, bson.M{uidField: uid}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("uid %d: %w", uid, candidate.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find candidate %d: %w", uid, err)
	}

	return &record, nil
}

// UpdateScreening writes the screening fields with a single $set keyed by UID.
func (s *Store) UpdateScreening(ctx context.Context, uid int64, update candidate.ScreeningUpdate) error {
	if update.Empty() {
		return errors.New("screening update has no fields")
	}

	result, err := s.coll.UpdateOne(ctx, bson.M{uidField: uid}, bson.M{"$set": setDocument(update)})
	if err != nil {
		return fmt.Errorf("update candidate %d: %w", uid, err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("uid %d: %w", uid, candidate.ErrNotFound)
	}

	s.logger.Debug("candidate screening updated",
		zap.Int64("candidate_uid", uid),
		zap.Int64("modified", result.ModifiedCount),
	)

	return nil
}

func setDocument(update candidate.ScreeningUpdate) bson.M {
	set := bson.M{}
	if update.Status != nil {
		set["phone_screen"] = *update.Status
	}
	if update.Score != nil {
		set["secondary_score"] = *update.Score
	}
	if update.Notes != nil {
		set["phone_screen_notes"] = *update.Notes
	}
	return set
}
