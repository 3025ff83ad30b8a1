// Package auth implements the single-password bearer token scheme of the API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid or expired token")
)

// TokenStore keeps issued session tokens.
type TokenStore interface {
	Issue(ctx context.Context) (token string, expiresAt time.Time, err error)
	Validate(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string) error
}

// MemoryTokenStore holds tokens in process memory; they do not survive a restart.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &MemoryTokenStore{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *MemoryTokenStore) Issue(_ context.Context) (string, time.Time, error) {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	expires := now.Add(s.ttl)
	s.tokens[token] = expires
	return token, expires, nil
}

func (s *MemoryTokenStore) Validate(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.tokens[token]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expires) {
		delete(s.tokens, token)
		return false, nil
	}
	return true, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}

// sweep drops expired tokens. Caller holds mu.
func (s *MemoryTokenStore) sweep(now time.Time) {
	for t, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, t)
		}
	}
}

// Authenticator checks the configured password and issued tokens. With an
// empty password authentication is disabled and every request passes.
type Authenticator struct {
	password string
	tokens   TokenStore
}

func NewAuthenticator(password string, tokens TokenStore) *Authenticator {
	return &Authenticator{password: password, tokens: tokens}
}

func (a *Authenticator) Enabled() bool {
	return a.password != ""
}

// Login exchanges the password for a token. It returns an empty token when
// authentication is disabled.
func (a *Authenticator) Login(ctx context.Context, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, nil
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) != 1 {
		return "", time.Time{}, ErrInvalidPassword
	}
	return a.tokens.Issue(ctx)
}

func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if !a.Enabled() || token == "" {
		return nil
	}
	return a.tokens.Revoke(ctx, token)
}

// Check validates an Authorization header value.
func (a *Authenticator) Check(ctx context.Context, header string) error {
	if !a.Enabled() {
		return nil
	}
	token, ok := BearerToken(header)
	if !ok {
		return ErrMissingToken
	}
	valid, err := a.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	if !valid {
		return ErrInvalidToken
	}
	return nil
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
