// Package service holds the token lifecycle: login, per-request validation
// with proactive rotation, explicit refresh, refresh-driven rotation and
// logout. AuthService keeps no per-request state; it is safe for concurrent
// use as long as the injected store and directory are.
package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/iliyamo/social-media-api/internal/model"
	"github.com/iliyamo/social-media-api/internal/queue"
	"github.com/iliyamo/social-media-api/internal/token"
)

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountDisabled is returned after a correct password for an
	// account that may not log in.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrUnknownToken is a correctly signed refresh token that is not the
	// one currently stored for its owner (superseded, logged out, or never
	// issued by this store).
	ErrUnknownToken = errors.New("unknown token")
)

// TokenStore persists at most one token per kind per user.
type TokenStore interface {
	Save(ctx context.Context, t model.StoredToken) (model.StoredToken, error)
	UpsertByUserID(ctx context.Context, t model.StoredToken) (model.StoredToken, error)
	FindByUserID(ctx context.Context, kind model.TokenKind, userID uint64) (model.StoredToken, error)
	Delete(ctx context.Context, kind model.TokenKind, userID uint64) error
}

// UserDirectory resolves identities. Lookups return repository.ErrUserNotFound
// when nothing matches.
type UserDirectory interface {
	GetByUsername(ctx context.Context, username string) (model.Identity, error)
	GetByID(ctx context.Context, id uint64) (model.Identity, error)
}

// EventPublisher receives audit events. Failures never affect the request.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AuthEvent) error
}

// AuthService is the token lifecycle manager.
type AuthService struct {
	users  UserDirectory
	store  TokenStore
	codec  *token.Codec
	events EventPublisher
	log    zerolog.Logger
}

// Option customizes an AuthService.
type Option func(*AuthService)

// WithLogger sets the logger; the default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(s *AuthService) { s.log = l.With().Str("component", "auth").Logger() }
}

// WithEvents sets the audit event publisher.
func WithEvents(p EventPublisher) Option {
	return func(s *AuthService) { s.events = p }
}

// NewAuthService wires the lifecycle manager.
func NewAuthService(users UserDirectory, store TokenStore, codec *token.Codec, opts ...Option) *AuthService {
	s := &AuthService{
		users: users,
		store: store,
		codec: codec,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Codec exposes the token codec, mainly for TTL reporting by handlers.
func (s *AuthService) Codec() *token.Codec { return s.codec }
