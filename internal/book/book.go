package book

import (
	"errors"
	"strings"
	"time"

	"bookshelf/internal/platform/validate"
)

var (
	// ErrNotFound is returned when no book has the requested id.
	ErrNotFound = errors.New("book not found")
	// ErrUnauthorized is returned when the caller does not own the book, or
	// when there is no caller identity at all.
	ErrUnauthorized = errors.New("not authorized")
	// ErrDuplicateISBN is returned when another book already uses the isbn.
	ErrDuplicateISBN = errors.New("isbn already exists")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid book")
)

// Book is a catalog record owned by exactly one user.
type Book struct {
	ID               string    `json:"id"`
	Owner            string    `json:"owner"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	Genre            string    `json:"genre"`
	YearOfPublishing int       `json:"yearOfPublishing"`
	ISBN             string    `json:"isbn"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Fields are the caller-supplied parts of a Book. id and owner are never
// taken from input.
type Fields struct {
	Title            string `json:"title" validate:"notblank,max=300"`
	Author           string `json:"author" validate:"notblank,max=200"`
	Genre            string `json:"genre" validate:"notblank,max=100"`
	YearOfPublishing int    `json:"yearOfPublishing" validate:"gt=0"`
	ISBN             string `json:"isbn" validate:"notblank,max=32"`
}

// Normalize trims surrounding whitespace from the text fields.
func (f Fields) Normalize() Fields {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	f.Genre = strings.TrimSpace(f.Genre)
	f.ISBN = strings.TrimSpace(f.ISBN)
	return f
}

// Validate returns a *ValidationError listing every invalid field, or nil.
func (f Fields) Validate() error {
	if details := validate.Struct(f); len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// Fields returns the replaceable parts of b.
func (b Book) Fields() Fields {
	return Fields{
		Title:            b.Title,
		Author:           b.Author,
		Genre:            b.Genre,
		YearOfPublishing: b.YearOfPublishing,
		ISBN:             b.ISBN,
	}
}

func (b *Book) apply(f Fields) {
	b.Title = f.Title
	b.Author = f.Author
	b.Genre = f.Genre
	b.YearOfPublishing = f.YearOfPublishing
	b.ISBN = f.ISBN
}

type ValidationError struct {
	Details []validate.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Details))
	for i, d := range e.Details {
		msgs[i] = d.Message
	}
	return "invalid book: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
