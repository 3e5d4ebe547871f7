package book

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "bookshelf/internal/book"

// Service provides the owner-scoped book lifecycle.
type Service struct {
	repo   Repository
	tracer trace.Tracer
	ops    metric.Int64Counter
}

// NewService creates a new book service.
func NewService(repo Repository) *Service {
	ops, err := otel.Meter(instrumentationName).Int64Counter("bookshelf.book.operations",
		metric.WithDescription("Book service operations by outcome"))
	if err != nil {
		ops = noop.Int64Counter{}
	}
	return &Service{
		repo:   repo,
		tracer: otel.Tracer(instrumentationName),
		ops:    ops,
	}
}

// Create stores a new book owned by owner.
func (s *Service) Create(ctx context.Context, owner string, f Fields) (b Book, err error) {
	ctx, span := s.tracer.Start(ctx, "book.Create")
	defer func() { s.finish(ctx, span, "create", err) }()

	if owner == "" {
		return Book{}, ErrUnauthorized
	}
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return Book{}, err
	}

	b = Book{Owner: owner}
	b.apply(f)
	if err := s.repo.Insert(ctx, &b); err != nil {
		return Book{}, fmt.Errorf("insert book: %w", err)
	}
	span.SetAttributes(attribute.String("book.id", b.ID))
	return b, nil
}

// List returns every book owned by owner. The result is never nil.
func (s *Service) List(ctx context.Context, owner string) (books []Book, err error) {
	ctx, span := s.tracer.Start(ctx, "book.List")
	defer func() { s.finish(ctx, span, "list", err) }()

	if owner == "" {
		return nil, ErrUnauthorized
	}
	books, err = s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []Book{}
	}
	span.SetAttributes(attribute.Int("book.count", len(books)))
	return books, nil
}

// Update replaces the mutable fields of book id. Nothing is written unless
// owner owns the book. Unknown ids and foreign books are reported before
// any validation failure.
func (s *Service) Update(ctx context.Context, owner, id string, f Fields) (b Book, err error) {
	ctx, span := s.tracer.Start(ctx, "book.Update", trace.WithAttributes(attribute.String("book.id", id)))
	defer func() { s.finish(ctx, span, "update", err) }()

	if owner == "" {
		return Book{}, ErrUnauthorized
	}
	if id == "" {
		return Book{}, ErrNotFound
	}
	f = f.Normalize()
	if verr := f.Validate(); verr != nil {
		if err := s.checkOwner(ctx, id, owner); err != nil {
			return Book{}, fmt.Errorf("update book %s: %w", id, err)
		}
		return Book{}, verr
	}

	b, err = s.repo.UpdateOwned(ctx, id, owner, f)
	if err != nil {
		return Book{}, fmt.Errorf("update book %s: %w", id, err)
	}
	return b, nil
}

func (s *Service) checkOwner(ctx context.Context, id, owner string) error {
	got, err := s.repo.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if got != owner {
		return ErrUnauthorized
	}
	return nil
}

// Delete permanently removes book id. Deleting an already deleted id returns
// ErrNotFound.
func (s *Service) Delete(ctx context.Context, owner, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "book.Delete", trace.WithAttributes(attribute.String("book.id", id)))
	defer func() { s.finish(ctx, span, "delete", err) }()

	if owner == "" {
		return ErrUnauthorized
	}
	if id == "" {
		return ErrNotFound
	}
	if err := s.repo.DeleteOwned(ctx, id, owner); err != nil {
		return fmt.Errorf("delete book %s: %w", id, err)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) {
	outcome := Outcome(err)
	s.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	span.SetAttributes(attribute.String("outcome", outcome))
	if outcome == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Outcome classifies err into a short label for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrDuplicateISBN):
		return "duplicate"
	default:
		return "error"
	}
}
