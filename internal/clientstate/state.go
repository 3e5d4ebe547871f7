// Package clientstate mirrors the signed-in user's book list and tracks the
// transient add, edit-in-place and delete-pending states of a client.
//
// Every successful mutation is followed by a full Load; the local list is
// never patched in place.
package clientstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"bookshelf/internal/book"
	"bookshelf/internal/client"
)

var (
	// ErrSessionExpired is returned when the server rejected the credential.
	// The session-expired hook has already run when it is returned.
	ErrSessionExpired = errors.New("session expired")
	ErrInvalidDraft   = errors.New("draft is incomplete")
	// ErrBusy is returned when the same action is already in flight.
	ErrBusy        = errors.New("request already in flight")
	ErrUnknownBook = errors.New("book is not in the list")
	ErrNotEditing  = errors.New("no book is being edited")
)

// API is the subset of the REST client the state machine drives.
type API interface {
	ListBooks(ctx context.Context) ([]book.Book, error)
	CreateBook(ctx context.Context, f book.Fields) (book.Book, error)
	UpdateBook(ctx context.Context, id string, f book.Fields) (book.Book, error)
	DeleteBook(ctx context.Context, id string) error
}

// Draft holds user-entered book fields that have not been sent yet.
type Draft book.Fields

// Valid reports whether every text field is non-blank and the year is
// positive.
func (d Draft) Valid() bool {
	return strings.TrimSpace(d.Title) != "" &&
		strings.TrimSpace(d.Author) != "" &&
		strings.TrimSpace(d.Genre) != "" &&
		strings.TrimSpace(d.ISBN) != "" &&
		d.YearOfPublishing > 0
}

// View is a point-in-time copy of the state for rendering.
type View struct {
	Books           []book.Book
	Loading         bool
	Err             string
	EditingID       string
	EditDraft       Draft
	AddDraft        Draft
	Adding          bool
	CommittingID     string
	PendingDeleteIDs []string
}

// DeletePending reports whether a delete of id is in flight.
func (v View) DeletePending(id string) bool {
	return slices.Contains(v.PendingDeleteIDs, id)
}

type State struct {
	api       API
	onExpired func()
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	books        []book.Book
	loads        int
	loadSeq      uint64
	err          string
	editingID    string
	editDraft    Draft
	addDraft     Draft
	adding       bool
	committingID string
	deleting     map[string]struct{}
}

type Option func(*State)

// WithSessionExpiredHook registers fn to run whenever the server rejects the
// credential. A typical hook sends the user back to login.
func WithSessionExpiredHook(fn func()) Option {
	return func(s *State) { s.onExpired = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *State) { s.logger = logger }
}

func New(api API, opts ...Option) *State {
	s := &State{
		api:      api,
		logger:   slog.Default(),
		now:      time.Now,
		deleting: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.addDraft = s.blankDraft()
	return s
}

func (s *State) blankDraft() Draft {
	return Draft{YearOfPublishing: s.now().Year()}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	books := make([]book.Book, len(s.books))
	copy(books, s.books)
	return View{
		Books:            books,
		Loading:          s.loads > 0,
		Err:              s.err,
		EditingID:        s.editingID,
		EditDraft:        s.editDraft,
		AddDraft:         s.addDraft,
		Adding:           s.adding,
		CommittingID:     s.committingID,
		PendingDeleteIDs: slices.Sorted(maps.Keys(s.deleting)),
	}
}

// Load replaces the list with the server's and clears the error banner.
// On failure the previous list stays in place. A response that arrives
// after a newer Load started is dropped.
func (s *State) Load(ctx context.Context) error {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
	return s.reload(ctx)
}

// reload is Load without clearing the banner. Mutations reconcile through
// it so that another row's failure stays visible.
func (s *State) reload(ctx context.Context) error {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.loads++
	s.mu.Unlock()

	books, err := s.api.ListBooks(ctx)

	s.mu.Lock()
	s.loads--
	stale := seq != s.loadSeq
	if err == nil && !stale {
		s.books = books
	}
	s.mu.Unlock()

	if err != nil {
		return s.fail("load books", err)
	}
	if stale {
		s.logger.DebugContext(ctx, "dropped stale book list", "seq", seq)
	}
	return nil
}

// SetAddDraft replaces the add form's contents.
func (s *State) SetAddDraft(d Draft) {
	s.mu.Lock()
	s.addDraft = d
	s.mu.Unlock()
}

// Add submits the add draft. The draft is cleared only on success.
func (s *State) Add(ctx context.Context) error {
	s.mu.Lock()
	if s.adding {
		s.mu.Unlock()
		return ErrBusy
	}
	draft := s.addDraft
	if !draft.Valid() {
		s.mu.Unlock()
		return ErrInvalidDraft
	}
	s.adding = true
	s.err = ""
	s.mu.Unlock()

	_, err := s.api.CreateBook(ctx, book.Fields(draft))

	s.mu.Lock()
	s.adding = false
	if err == nil && s.addDraft == draft {
		s.addDraft = s.blankDraft()
	}
	s.mu.Unlock()

	if err != nil {
		return s.fail("add book", err)
	}
	s.logger.DebugContext(ctx, "book added", "isbn", draft.ISBN)
	return s.reload(ctx)
}

// BeginEdit puts the row id into edit mode with a copy of its fields.
// Any other row's unsaved draft is dropped.
func (s *State) BeginEdit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.books {
		if b.ID == id {
			s.editingID = id
			s.editDraft = Draft(b.Fields())
			return nil
		}
	}
	return ErrUnknownBook
}

func (s *State) SetEditDraft(d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editingID == "" {
		return ErrNotEditing
	}
	s.editDraft = d
	return nil
}

// CancelEdit leaves edit mode without contacting the server.
func (s *State) CancelEdit() {
	s.mu.Lock()
	s.editingID = ""
	s.editDraft = Draft{}
	s.mu.Unlock()
}

// CommitEdit sends the edit draft. On failure the row stays in edit mode
// with its draft.
func (s *State) CommitEdit(ctx context.Context) error {
	s.mu.Lock()
	id, draft := s.editingID, s.editDraft
	switch {
	case id == "":
		s.mu.Unlock()
		return ErrNotEditing
	case s.committingID == id:
		s.mu.Unlock()
		return ErrBusy
	case !draft.Valid():
		s.mu.Unlock()
		return ErrInvalidDraft
	}
	s.committingID = id
	s.err = ""
	s.mu.Unlock()

	_, err := s.api.UpdateBook(ctx, id, book.Fields(draft))

	s.mu.Lock()
	if s.committingID == id {
		s.committingID = ""
	}
	if err == nil && s.editingID == id {
		s.editingID = ""
		s.editDraft = Draft{}
	}
	s.mu.Unlock()

	if err != nil {
		return s.fail("update book", err)
	}
	s.logger.DebugContext(ctx, "book updated", "id", id)
	return s.reload(ctx)
}

// Delete removes the book id. The row is listed in PendingDeleteIDs while
// the request runs. A failed delete leaves the list untouched.
func (s *State) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, busy := s.deleting[id]; busy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.deleting[id] = struct{}{}
	s.err = ""
	s.mu.Unlock()

	err := s.api.DeleteBook(ctx, id)

	s.mu.Lock()
	delete(s.deleting, id)
	if err == nil && s.editingID == id {
		s.editingID = ""
		s.editDraft = Draft{}
	}
	s.mu.Unlock()

	if err != nil {
		return s.fail("delete book", err)
	}
	s.logger.DebugContext(ctx, "book deleted", "id", id)
	return s.reload(ctx)
}

// fail records err for display. A rejected credential runs the
// session-expired hook instead of being retried.
func (s *State) fail(action string, err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		s.mu.Lock()
		s.err = "Session expired, please log in again"
		hook := s.onExpired
		s.mu.Unlock()

		s.logger.Warn("session expired", "error", err)
		if hook != nil {
			hook()
		}
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	msg := "Failed to " + action
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg += ": " + apiErr.Message
	}
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()

	s.logger.Warn(action+" failed", "error", err)
	return fmt.Errorf("%s: %w", action, err)
}
