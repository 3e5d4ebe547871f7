package auth

import (
	"context"
	"errors"
	"fmt"

	"bookshelf/internal/platform/crypto"
	"bookshelf/internal/user"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrWeakPassword wraps the specific strength rule that failed.
	ErrWeakPassword = errors.New("weak password")
)

// Session is what a successful signup or login hands back to the client.
type Session struct {
	Token     string    `json:"token"`
	ExpiresIn int       `json:"expiresIn"`
	User      user.User `json:"user"`
}

type Service struct {
	users  *user.Service
	tokens *crypto.TokenIssuer
}

func NewService(users *user.Service, tokens *crypto.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// Signup creates an account and signs the new user in.
func (s *Service) Signup(ctx context.Context, username, email, password string) (Session, error) {
	if err := crypto.ValidatePasswordStrength(password); err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Register(ctx, email, username, hash)
	if err != nil {
		return Session{}, err
	}
	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !crypto.VerifyPassword(u.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *Service) issue(u user.User) (Session, error) {
	token, err := s.tokens.Issue(u.ID, u.Username)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{
		Token:     token,
		ExpiresIn: int(s.tokens.TTL().Seconds()),
		User:      u,
	}, nil
}
