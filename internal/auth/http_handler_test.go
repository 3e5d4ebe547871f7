package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	svc, _ := newTestService()
	r := chi.NewRouter()
	NewHTTPHandler(svc, nil).Register(r)
	return r
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return w
}

func TestHTTPHandler_SignupAndLogin(t *testing.T) {
	h := newTestHandler(t)

	w := post(h, "/auth/signup", `{"username":"alice","email":"alice@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool    `json:"success"`
		Data    Session `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Data.Token)
	assert.Equal(t, "alice", resp.Data.User.Username)

	w = post(h, "/auth/signup", `{"username":"alice","email":"alice@example.com","password":"Sup3r$ecret"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = post(h, "/auth/login", `{"email":"alice@example.com","password":"Sup3r$ecret"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	w = post(h, "/auth/login", `{"email":"alice@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHTTPHandler_SignupValidation(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad email", `{"username":"alice","email":"nope","password":"Sup3r$ecret"}`, "email"},
		{"short username", `{"username":"al","email":"a@example.com","password":"Sup3r$ecret"}`, "username"},
		{"weak password", `{"username":"alice","email":"a@example.com","password":"password"}`, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(h, "/auth/signup", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Error struct {
					Code    string `json:"code"`
					Details []struct {
						Field string `json:"field"`
					} `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
			require.NotEmpty(t, resp.Error.Details)
			assert.Equal(t, tt.field, resp.Error.Details[0].Field)
		})
	}

	w := post(h, "/auth/signup", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
