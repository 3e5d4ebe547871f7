package book

import (
	"context"
	"errors"
	"sort"
	"testing"

	"pgregory.net/rapid"
)

// TestService_Properties drives random operation sequences against the
// memory store and checks them against a simple model.
func TestService_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := NewService(NewMemoryRepo())

		owners := []string{"alice", "bob", "carol"}
		isbns := []string{"i1", "i2", "i3", "i4"}

		type entry struct {
			owner string
			isbn  string
		}
		model := map[string]entry{}
		var deleted []string

		pickID := func(t *rapid.T) string {
			ids := make([]string, 0, len(model)+len(deleted)+1)
			for id := range model {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			ids = append(ids, deleted...)
			ids = append(ids, "never-existed")
			return rapid.SampledFrom(ids).Draw(t, "id")
		}
		isbnTaken := func(isbn, except string) bool {
			for id, e := range model {
				if e.isbn == isbn && id != except {
					return true
				}
			}
			return false
		}

		t.Repeat(map[string]func(*rapid.T){
			"create": func(t *rapid.T) {
				owner := rapid.SampledFrom(owners).Draw(t, "owner")
				isbn := rapid.SampledFrom(isbns).Draw(t, "isbn")
				b, err := svc.Create(ctx, owner, validFields(isbn))
				if isbnTaken(isbn, "") {
					if !errors.Is(err, ErrDuplicateISBN) {
						t.Fatalf("create with taken isbn %q: got %v", isbn, err)
					}
					return
				}
				if err != nil {
					t.Fatalf("create: %v", err)
				}
				if b.Owner != owner {
					t.Fatalf("owner = %q, want %q", b.Owner, owner)
				}
				model[b.ID] = entry{owner: owner, isbn: isbn}
			},
			"update": func(t *rapid.T) {
				id := pickID(t)
				caller := rapid.SampledFrom(owners).Draw(t, "caller")
				isbn := rapid.SampledFrom(isbns).Draw(t, "isbn")
				f := validFields(isbn)
				invalid := rapid.Bool().Draw(t, "invalid")
				if invalid {
					switch rapid.IntRange(0, 3).Draw(t, "defect") {
					case 0:
						f.Title = "  "
					case 1:
						f.Author = ""
					case 2:
						f.YearOfPublishing = -rapid.IntRange(0, 3000).Draw(t, "year")
					default:
						f.ISBN = ""
					}
				}
				got, err := svc.Update(ctx, caller, id, f)
				e, ok := model[id]
				switch {
				case !ok:
					if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
						t.Fatalf("update unknown id: got %v", err)
					}
				case e.owner != caller:
					if !errors.Is(err, ErrUnauthorized) {
						t.Fatalf("update by non-owner: got %v", err)
					}
				case invalid:
					if !errors.Is(err, ErrValidation) {
						t.Fatalf("update with invalid fields: got %v", err)
					}
				case isbnTaken(isbn, id):
					if !errors.Is(err, ErrDuplicateISBN) {
						t.Fatalf("update to taken isbn: got %v", err)
					}
				default:
					if err != nil {
						t.Fatalf("update: %v", err)
					}
					if got.Owner != e.owner {
						t.Fatalf("owner changed to %q", got.Owner)
					}
					model[id] = entry{owner: e.owner, isbn: isbn}
				}
			},
			"delete": func(t *rapid.T) {
				id := pickID(t)
				caller := rapid.SampledFrom(owners).Draw(t, "caller")
				err := svc.Delete(ctx, caller, id)
				e, ok := model[id]
				switch {
				case !ok:
					if !errors.Is(err, ErrNotFound) {
						t.Fatalf("delete unknown id: got %v", err)
					}
				case e.owner != caller:
					if !errors.Is(err, ErrUnauthorized) {
						t.Fatalf("delete by non-owner: got %v", err)
					}
				default:
					if err != nil {
						t.Fatalf("delete: %v", err)
					}
					delete(model, id)
					deleted = append(deleted, id)
				}
			},
			"": func(t *rapid.T) {
				for _, owner := range owners {
					books, err := svc.List(ctx, owner)
					if err != nil {
						t.Fatalf("list: %v", err)
					}
					want := 0
					for _, e := range model {
						if e.owner == owner {
							want++
						}
					}
					if len(books) != want {
						t.Fatalf("%s sees %d books, want %d", owner, len(books), want)
					}
					for _, b := range books {
						e, ok := model[b.ID]
						if !ok || e.owner != owner || b.Owner != owner {
							t.Fatalf("%s sees foreign or stale book %s", owner, b.ID)
						}
						if b.ISBN != e.isbn {
							t.Fatalf("book %s isbn = %q, want %q", b.ID, b.ISBN, e.isbn)
						}
					}
				}
			},
		})
	})
}
