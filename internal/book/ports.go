package book

import (
	"context"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=book

// Repository defines the contract for book storage. Implementations enforce
// isbn uniqueness across all owners and perform the ownership check and the
// mutation of UpdateOwned/DeleteOwned as one conditional operation.
type Repository interface {
	// Insert stores b, filling in ID, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, b *Book) error
	ListByOwner(ctx context.Context, owner string) ([]Book, error)
	// UpdateOwned replaces the fields of the book id if owner owns it.
	// It returns ErrNotFound for an unknown id and ErrUnauthorized when the
	// book exists under another owner.
	UpdateOwned(ctx context.Context, id, owner string, f Fields) (Book, error)
	DeleteOwned(ctx context.Context, id, owner string) error
	// OwnerOf returns the owner of book id, or ErrNotFound.
	OwnerOf(ctx context.Context, id string) (string, error)
}
