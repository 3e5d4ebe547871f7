package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookshelf/internal/auth"
	"bookshelf/internal/book"
	"bookshelf/internal/platform/crypto"
	"bookshelf/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, ready func(context.Context) error) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := crypto.NewTokenIssuer("router-test-secret", time.Hour)
	users := user.NewService(user.NewMemoryRepo())

	srv := httptest.NewServer(NewRouter(Deps{
		Books:        book.NewHTTPHandler(book.NewService(book.NewMemoryRepo()), logger),
		Auth:         auth.NewHTTPHandler(auth.NewService(users, tokens), logger),
		Users:        user.NewHTTPHandler(users),
		Verifier:     tokens,
		Ready:        ready,
		Logger:       logger,
		CORSOrigins:  []string{"http://localhost:3000"},
		MaxBodyBytes: 1 << 10,
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func call(t *testing.T, srv *httptest.Server, method, path, token, body string) (int, testEnvelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env testEnvelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

func signup(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	status, env := call(t, srv, http.MethodPost, "/auth/signup", "",
		`{"username":"`+name+`","email":"`+name+`@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusCreated, status)
	var sess auth.Session
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	return sess.Token
}

func TestRouter_BookLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := signup(t, srv, "alice")
	bob := signup(t, srv, "bob")

	const dune = `{"title":"Dune","author":"Frank Herbert","genre":"Science Fiction","yearOfPublishing":1965,"isbn":"9780441013593"}`

	status, env := call(t, srv, http.MethodPost, "/books", alice, dune)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Book created successfully", env.Meta["message"])
	assert.NotEmpty(t, env.Meta["request_id"])
	var created book.Book
	require.NoError(t, json.Unmarshal(env.Data, &created))

	status, env = call(t, srv, http.MethodGet, "/books", bob, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, env = call(t, srv, http.MethodPost, "/books", bob, dune)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_ISBN", env.Error.Code)

	status, _ = call(t, srv, http.MethodPut, "/books/"+created.ID, bob, dune)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, srv, http.MethodDelete, "/books/"+created.ID, bob, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	updated := strings.Replace(dune, `"Dune"`, `"Dune Messiah"`, 1)
	status, env = call(t, srv, http.MethodPut, "/books/"+created.ID, alice, updated)
	require.Equal(t, http.StatusOK, status)
	var got book.Book
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Dune Messiah", got.Title)

	status, env = call(t, srv, http.MethodGet, "/books", alice, "")
	require.Equal(t, http.StatusOK, status)
	var books []book.Book
	require.NoError(t, json.Unmarshal(env.Data, &books))
	require.Len(t, books, 1)
	assert.Equal(t, "Dune Messiah", books[0].Title)

	status, _ = call(t, srv, http.MethodDelete, "/books/"+created.ID, alice, "")
	assert.Equal(t, http.StatusOK, status)
	status, env = call(t, srv, http.MethodDelete, "/books/"+created.ID, alice, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/books"},
		{http.MethodPost, "/books"},
		{http.MethodPut, "/books/x"},
		{http.MethodDelete, "/books/x"},
		{http.MethodGet, "/users/me"},
	} {
		status, env := call(t, srv, tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, status, tc.method+" "+tc.path)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

		status, _ = call(t, srv, tc.method, tc.path, "garbage", "")
		assert.Equal(t, http.StatusUnauthorized, status, tc.method+" "+tc.path)
	}
}

func TestRouter_CurrentUser(t *testing.T) {
	srv := newTestServer(t, nil)
	token := signup(t, srv, "carol")

	status, env := call(t, srv, http.MethodGet, "/users/me", token, "")
	require.Equal(t, http.StatusOK, status)
	var u user.User
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "carol", u.Username)
}

func TestRouter_BodyLimit(t *testing.T) {
	srv := newTestServer(t, nil)
	token := signup(t, srv, "dave")

	big := `{"title":"` + strings.Repeat("x", 2048) + `"}`
	status, _ := call(t, srv, http.MethodPost, "/books", token, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestRouter_HealthEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Welcome")

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newTestServer(t, func(context.Context) error { return errors.New("no store") })
	resp, err = down.Client().Get(down.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	status, env := call(t, srv, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/books/some-id", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPut)

	req.Header.Set("Origin", "http://elsewhere.test")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
