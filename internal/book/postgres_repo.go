package book

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) Insert(ctx context.Context, b *Book) error {
	const query = `
	INSERT INTO books (owner_id, title, author, genre, year_of_publishing, isbn)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query,
		b.Owner, b.Title, b.Author, b.Genre, b.YearOfPublishing, b.ISBN,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	return mapPgError(err)
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, owner string) ([]Book, error) {
	if _, err := uuid.Parse(owner); err != nil {
		return []Book{}, nil
	}
	const query = `
	SELECT id, owner_id, title, author, genre, year_of_publishing, isbn, created_at, updated_at
	FROM books
	WHERE owner_id = $1
	ORDER BY created_at, id
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateOwned(ctx context.Context, id, owner string, f Fields) (Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Book{}, ErrNotFound
	}
	if _, err := uuid.Parse(owner); err != nil {
		return Book{}, r.missing(ctx, id)
	}
	const query = `
	UPDATE books
	SET title = $3, author = $4, genre = $5, year_of_publishing = $6, isbn = $7, updated_at = NOW()
	WHERE id = $1 AND owner_id = $2
	RETURNING id, owner_id, title, author, genre, year_of_publishing, isbn, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanBook(r.db.QueryRow(timeoutCtx, query,
		id, owner, f.Title, f.Author, f.Genre, f.YearOfPublishing, f.ISBN,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, r.missing(ctx, id)
	}
	if err != nil {
		return Book{}, mapPgError(err)
	}
	return b, nil
}

func (r *PostgresRepo) DeleteOwned(ctx context.Context, id, owner string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	if _, err := uuid.Parse(owner); err != nil {
		return r.missing(ctx, id)
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, `DELETE FROM books WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missing(ctx, id)
	}
	return nil
}

func (r *PostgresRepo) OwnerOf(ctx context.Context, id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var owner string
	err := r.db.QueryRow(timeoutCtx, `SELECT owner_id FROM books WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

// missing explains why a conditional write matched no row.
func (r *PostgresRepo) missing(ctx context.Context, id string) error {
	if _, err := r.OwnerOf(ctx, id); err != nil {
		return err
	}
	return ErrUnauthorized
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.Owner, &b.Title, &b.Author, &b.Genre,
		&b.YearOfPublishing, &b.ISBN, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateISBN
	}
	return err
}
