package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
	"securefiles/server/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// testClient connects to MONGO_URI, skipping when it is not set.
func testClient(t *testing.T) *mongo.Client {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping MongoDB tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

// newTestStore returns a store on a throwaway database dropped on cleanup.
func newTestStore(t *testing.T, client *mongo.Client) *Store {
	t.Helper()

	name := "securefiles_test_" + uuid.NewString()[:8]
	s, err := New(context.Background(), client, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Database(name).Drop(context.Background()) })
	return s
}

func TestStoreConformance(t *testing.T) {
	client := testClient(t)

	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t, client) })
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(context.Background(), nil, "x")
	assert.Error(t, err)
}

func TestUnusedTokenIndex(t *testing.T) {
	s := newTestStore(t, testClient(t))
	ctx := context.Background()

	u, err := s.CreateUser(ctx, model.User{Email: "idx@x.com", Active: true, Role: model.RoleClient})
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour)
	_, err = s.tokens().InsertOne(ctx, bson.M{"_id": "a", "uid": u.ID, "used": false, "exp": exp})
	require.NoError(t, err)

	// writing around ReissueLoginToken still cannot leave two outstanding tokens
	_, err = s.tokens().InsertOne(ctx, bson.M{"_id": "b", "uid": u.ID, "used": false, "exp": exp})
	assert.True(t, isUnusedIndexViolation(err))
	assert.ErrorIs(t, mapErr(err), store.ErrConflict)
}
