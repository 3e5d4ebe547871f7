// Package server assembles the HTTP surface of the bookshelf API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bookshelf/internal/auth"
	"bookshelf/internal/book"
	"bookshelf/internal/httpx"
	"bookshelf/internal/user"

	"github.com/go-chi/chi/v5"
)

// Deps are the collaborators the router wires together.
type Deps struct {
	Books    *book.HTTPHandler
	Auth     *auth.HTTPHandler
	Users    *user.HTTPHandler
	Verifier httpx.TokenVerifier
	// Ready reports whether the backing store is reachable. Nil means always
	// ready.
	Ready        func(ctx context.Context) error
	Logger       *slog.Logger
	CORSOrigins  []string
	HSTS         bool
	RateLimit    *httpx.RateLimitMiddleware
	MaxBodyBytes int64
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware)
	r.Use(httpx.RecoveryMiddleware(logger))
	r.Use(httpx.AccessLogMiddleware(logger))
	r.Use(httpx.CORSMiddleware(d.CORSOrigins))
	r.Use(httpx.SecurityHeadersMiddleware(d.HSTS))
	if d.MaxBodyBytes > 0 {
		r.Use(httpx.RequestSizeLimitMiddleware(d.MaxBodyBytes))
	}
	if d.RateLimit != nil {
		r.Use(d.RateLimit.Middleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Welcome to the bookshelf API"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "error", err)
				http.Error(w, "store not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if d.Auth != nil {
		d.Auth.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(httpx.AuthMiddleware(d.Verifier))
		d.Books.Register(r)
		if d.Users != nil {
			d.Users.Register(r)
		}
	})

	return r
}
