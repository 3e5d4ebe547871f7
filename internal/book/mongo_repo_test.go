package book

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func setupBookTestMongo(t *testing.T) *mongo.Database {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("Skipping test: TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("Skipping test: cannot connect to mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("Skipping test: cannot ping mongo: %v", err)
	}
	db := client.Database("bookshelf_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoRepo_Lifecycle(t *testing.T) {
	db := setupBookTestMongo(t)
	repo := NewMongoRepo(db, 5*time.Second)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	b := Book{Owner: "alice"}
	b.apply(validFields("isbn-1"))
	require.NoError(t, repo.Insert(ctx, &b))
	require.Len(t, b.ID, 24)

	dup := Book{Owner: "bob"}
	dup.apply(validFields("isbn-1"))
	assert.ErrorIs(t, repo.Insert(ctx, &dup), ErrDuplicateISBN)

	second := Book{Owner: "alice"}
	second.apply(validFields("isbn-2"))
	require.NoError(t, repo.Insert(ctx, &second))

	books, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, b.ID, books[0].ID)

	_, err = repo.UpdateOwned(ctx, b.ID, "alice", validFields("isbn-2"))
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	_, err = repo.UpdateOwned(ctx, b.ID, "bob", validFields("isbn-3"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := repo.UpdateOwned(ctx, b.ID, "alice", validFields("isbn-3"))
	require.NoError(t, err)
	assert.Equal(t, "isbn-3", got.ISBN)
	assert.Equal(t, "alice", got.Owner)

	_, err = repo.UpdateOwned(ctx, "zzz", "alice", validFields("isbn-3"))
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.DeleteOwned(ctx, b.ID, "bob"), ErrUnauthorized)
	require.NoError(t, repo.DeleteOwned(ctx, b.ID, "alice"))
	assert.ErrorIs(t, repo.DeleteOwned(ctx, b.ID, "alice"), ErrNotFound)
}
