package book

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepo_InsertAssignsIdentity(t *testing.T) {
	repo := NewMemoryRepo()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	b := Book{Owner: "alice"}
	b.apply(validFields("isbn-1"))
	require.NoError(t, repo.Insert(context.Background(), &b))

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, fixed, b.CreatedAt)
	assert.Equal(t, fixed, b.UpdatedAt)
}

func TestMemoryRepo_OwnerOf(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	b := Book{Owner: "alice"}
	b.apply(validFields("isbn-1"))
	require.NoError(t, repo.Insert(ctx, &b))

	owner, err := repo.OwnerOf(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	require.NoError(t, repo.DeleteOwned(ctx, b.ID, "alice"))
	_, err = repo.OwnerOf(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepo_UpdateKeepsOwnerAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	b := Book{Owner: "alice"}
	b.apply(validFields("isbn-1"))
	require.NoError(t, repo.Insert(ctx, &b))

	later := b.CreatedAt.Add(time.Hour)
	repo.now = func() time.Time { return later }

	f := validFields("isbn-1b")
	got, err := repo.UpdateOwned(ctx, b.ID, "alice", f)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, b.CreatedAt, got.CreatedAt)
	assert.Equal(t, later, got.UpdatedAt)

	// the old isbn is released
	other := Book{Owner: "bob"}
	other.apply(validFields("isbn-1"))
	assert.NoError(t, repo.Insert(ctx, &other))
}

func TestMemoryRepo_UpdateSameISBN(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	b := Book{Owner: "alice"}
	b.apply(validFields("isbn-1"))
	require.NoError(t, repo.Insert(ctx, &b))

	_, err := repo.UpdateOwned(ctx, b.ID, "alice", validFields("isbn-1"))
	assert.NoError(t, err)
}

func TestMemoryRepo_DeletePreservesOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	ids := make([]string, 0, 3)
	for _, isbn := range []string{"a", "b", "c"} {
		b := Book{Owner: "alice"}
		b.apply(validFields(isbn))
		require.NoError(t, repo.Insert(ctx, &b))
		ids = append(ids, b.ID)
	}

	require.NoError(t, repo.DeleteOwned(ctx, ids[1], "alice"))

	books, err := repo.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, ids[0], books[0].ID)
	assert.Equal(t, ids[2], books[1].ID)
}

func TestMemoryRepo_ConcurrentInsertSameISBN(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := Book{Owner: "alice"}
			b.apply(validFields("contested"))
			errs <- repo.Insert(ctx, &b)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch err {
		case nil:
			ok++
		case ErrDuplicateISBN:
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
}
