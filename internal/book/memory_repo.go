package book

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository. Books are listed in insertion
// order.
type MemoryRepo struct {
	mu    sync.RWMutex
	books map[string]Book
	order []string
	isbns map[string]string
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		books: make(map[string]Book),
		isbns: make(map[string]string),
		now:   time.Now,
	}
}

func (r *MemoryRepo) Insert(_ context.Context, b *Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.isbns[b.ISBN]; taken {
		return ErrDuplicateISBN
	}

	now := r.now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now

	r.books[b.ID] = *b
	r.isbns[b.ISBN] = b.ID
	r.order = append(r.order, b.ID)
	return nil
}

func (r *MemoryRepo) ListByOwner(_ context.Context, owner string) ([]Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Book, 0)
	for _, id := range r.order {
		if b := r.books[id]; b.Owner == owner {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateOwned(_ context.Context, id, owner string, f Fields) (Book, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	if b.Owner != owner {
		return Book{}, ErrUnauthorized
	}
	if holder, taken := r.isbns[f.ISBN]; taken && holder != id {
		return Book{}, ErrDuplicateISBN
	}

	delete(r.isbns, b.ISBN)
	b.apply(f)
	b.UpdatedAt = r.now().UTC()
	r.books[id] = b
	r.isbns[b.ISBN] = id
	return b, nil
}

func (r *MemoryRepo) OwnerOf(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[id]
	if !ok {
		return "", ErrNotFound
	}
	return b.Owner, nil
}

func (r *MemoryRepo) DeleteOwned(_ context.Context, id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.books[id]
	if !ok {
		return ErrNotFound
	}
	if b.Owner != owner {
		return ErrUnauthorized
	}

	delete(r.books, id)
	delete(r.isbns, b.ISBN)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
