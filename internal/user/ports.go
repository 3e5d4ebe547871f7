package user

import (
	"context"
)

// Repository stores accounts. Username and email are each unique; Create
// returns ErrAlreadyExists when either is taken.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
}
