// Package mongo implements store.Store on MongoDB.
//
// Single-use consumption relies on FindOneAndUpdate with a conditional
// filter. "At most one unused token per user" is enforced by a partial
// unique index on login_tokens.uid, so a reissue that loses a race gets a
// duplicate key error and retries.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"securefiles/server/internal/store"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection  = "users"
	tokensCollection = "login_tokens"
	filesCollection  = "uploaded_files"

	unusedTokenIndex = "uq_login_tokens_unused"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// Connect dials uri, ensures indexes on database dbName and returns a store
// that closes the client on Close.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s, err := New(ctx, client, dbName)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New uses an existing client. The caller keeps ownership of it.
func New(ctx context.Context, client *mongo.Client, dbName string) (*Store, error) {
	if client == nil {
		return nil, errors.New("mongo client is required")
	}
	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uq_users_email"),
	}); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	if _, err := s.db.Collection(tokensCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "uid", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(unusedTokenIndex).
				SetPartialFilterExpression(bson.M{"used": false}),
		},
		{Keys: bson.D{{Key: "exp", Value: 1}}},
		{Keys: bson.D{{Key: "c", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("login_tokens indexes: %w", err)
	}

	if _, err := s.db.Collection(filesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "dltok", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uq_files_download_token"),
	}); err != nil {
		return fmt.Errorf("uploaded_files indexes: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) users() *mongo.Collection  { return s.db.Collection(usersCollection) }
func (s *Store) tokens() *mongo.Collection { return s.db.Collection(tokensCollection) }
func (s *Store) files() *mongo.Collection  { return s.db.Collection(filesCollection) }

func newID() string { return uuid.NewString() }

// BSON datetimes carry millisecond precision.
func toMillis(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrConflict
	}
	return err
}

func isUnusedIndexViolation(err error) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), unusedTokenIndex)
}
