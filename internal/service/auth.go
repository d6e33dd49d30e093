package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/social-media-api/internal/model"
	"github.com/iliyamo/social-media-api/internal/queue"
	"github.com/iliyamo/social-media-api/internal/repository"
	"github.com/iliyamo/social-media-api/internal/utils"
)

// Validation is the outcome of a successful per-request check. Rotated is
// set when the access token was past its half-life and got replaced; its
// RefreshToken is empty unless the refresh token was rotated too.
type Validation struct {
	Principal model.Principal
	Rotated   *model.TokenPair
}

// Login verifies the credentials and issues a fresh token pair, replacing
// whatever pair the user had before.
func (s *AuthService) Login(ctx context.Context, username, password string) (model.TokenPair, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			utils.BurnPasswordCheck(password)
			s.rejectLogin(ctx, username)
			return model.TokenPair{}, ErrInvalidCredentials
		}
		return model.TokenPair{}, fmt.Errorf("login: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		s.rejectLogin(ctx, username)
		return model.TokenPair{}, ErrInvalidCredentials
	}
	if !u.Enabled {
		s.log.Info().Str("username", u.Username).Msg("login rejected: account disabled")
		return model.TokenPair{}, ErrAccountDisabled
	}

	access, err := s.issue(model.KindAccess, u)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.persist(ctx, access); err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := s.issue(model.KindRefresh, u)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.persist(ctx, refresh); err != nil {
		return model.TokenPair{}, err
	}

	s.log.Info().Uint64("user_id", u.ID).Str("username", u.Username).Msg("login succeeded")
	s.publish(ctx, queue.EventLogin, u)
	return model.TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token}, nil
}

// ValidateRequest verifies an access token. A token past its rotate
// threshold is replaced before access is granted: only the access token
// when the stored refresh token still has most of its life, both tokens
// otherwise. A session that was logged out is rejected with ErrUnknownToken;
// a store failure during rotation is logged and the still valid token is
// accepted as is.
func (s *AuthService) ValidateRequest(ctx context.Context, accessToken string) (Validation, error) {
	claims, err := s.codec.ParseAndVerify(model.KindAccess, accessToken)
	if err != nil {
		return Validation{}, err
	}
	v := Validation{Principal: model.Principal{Username: claims.Subject, Authenticated: true}}
	if !s.codec.NearExpiry(model.KindAccess, claims) {
		return v, nil
	}

	pair, err := s.rotateForSubject(ctx, claims.Subject)
	switch {
	case err == nil:
		v.Rotated = &pair
	case errors.Is(err, ErrUnknownToken):
		return Validation{}, err
	default:
		s.log.Warn().Err(err).Str("username", claims.Subject).Msg("proactive rotation failed")
	}
	return v, nil
}

// RefreshAccess issues a new access token for a refresh token that matches
// the stored one. The refresh token itself stays valid and is echoed back
// in the returned pair.
func (s *AuthService) RefreshAccess(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	u, err := s.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	access, err := s.issue(model.KindAccess, u)
	if err != nil {
		return model.TokenPair{}, err
	}
	if _, err := s.store.UpsertByUserID(ctx, access); err != nil {
		return model.TokenPair{}, fmt.Errorf("refresh access: %w", err)
	}
	s.log.Info().Uint64("user_id", u.ID).Msg("access token refreshed")
	s.publish(ctx, queue.EventAccessRefreshed, u)
	return model.TokenPair{AccessToken: access.Token, RefreshToken: refreshToken}, nil
}

// Rotate replaces both tokens. The presented refresh token stops matching
// the store and any later use of it fails with ErrUnknownToken.
func (s *AuthService) Rotate(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	u, err := s.verifyRefresh(ctx, refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	return s.rotatePair(ctx, u)
}

// Logout deletes both stored tokens of the refresh token's owner. It
// reports false when the token is invalid, is not the refresh token
// currently stored, or there was nothing to delete. A disabled account can
// still log out.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) bool {
	claims, err := s.codec.ParseAndVerify(model.KindRefresh, refreshToken)
	if err != nil {
		s.log.Debug().Str("reason", string(Reason(err))).Msg("logout with invalid refresh token")
		return false
	}
	u, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		s.log.Debug().Err(err).Str("username", claims.Subject).Msg("logout for unresolvable subject")
		return false
	}
	stored, err := s.store.FindByUserID(ctx, model.KindRefresh, u.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			s.log.Error().Err(err).Uint64("user_id", u.ID).Msg("load refresh token failed")
		}
		return false
	}
	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(refreshToken)) != 1 {
		s.log.Warn().Uint64("user_id", u.ID).Msg("logout with superseded refresh token")
		return false
	}
	if err := s.store.Delete(ctx, model.KindRefresh, u.ID); err != nil {
		if !errors.Is(err, repository.ErrTokenNotFound) {
			s.log.Error().Err(err).Uint64("user_id", u.ID).Msg("delete refresh token failed")
		}
		return false
	}
	if err := s.store.Delete(ctx, model.KindAccess, u.ID); err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		s.log.Error().Err(err).Uint64("user_id", u.ID).Msg("delete access token failed")
	}
	s.log.Info().Uint64("user_id", u.ID).Msg("logout succeeded")
	s.publish(ctx, queue.EventLogout, u)
	return true
}

// verifyRefresh checks the signature and expiry of raw and requires it to
// be byte-for-byte the refresh token currently stored for its owner.
func (s *AuthService) verifyRefresh(ctx context.Context, raw string) (model.Identity, error) {
	claims, err := s.codec.ParseAndVerify(model.KindRefresh, raw)
	if err != nil {
		return model.Identity{}, err
	}
	u, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.Identity{}, ErrUnknownToken
		}
		return model.Identity{}, fmt.Errorf("resolve refresh subject: %w", err)
	}
	stored, err := s.store.FindByUserID(ctx, model.KindRefresh, u.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return model.Identity{}, ErrUnknownToken
		}
		return model.Identity{}, fmt.Errorf("load refresh token: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(raw)) != 1 {
		s.log.Warn().Uint64("user_id", u.ID).Msg("refresh token does not match stored token")
		return model.Identity{}, ErrUnknownToken
	}
	if !u.Enabled {
		return model.Identity{}, ErrAccountDisabled
	}
	return u, nil
}

// rotateForSubject renews the access token of a request whose token is near
// expiry, using the refresh token held in the store.
func (s *AuthService) rotateForSubject(ctx context.Context, username string) (model.TokenPair, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.TokenPair{}, ErrUnknownToken
		}
		return model.TokenPair{}, err
	}
	stored, err := s.store.FindByUserID(ctx, model.KindRefresh, u.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return model.TokenPair{}, ErrUnknownToken
		}
		return model.TokenPair{}, err
	}
	claims, err := s.codec.ParseAndVerify(model.KindRefresh, stored.Token)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: stored refresh token: %v", ErrUnknownToken, err)
	}
	if !u.Enabled {
		return model.TokenPair{}, ErrUnknownToken
	}
	if s.codec.NearExpiry(model.KindRefresh, claims) {
		return s.rotatePair(ctx, u)
	}

	access, err := s.issue(model.KindAccess, u)
	if err != nil {
		return model.TokenPair{}, err
	}
	if _, err := s.store.UpsertByUserID(ctx, access); err != nil {
		return model.TokenPair{}, err
	}
	s.log.Debug().Uint64("user_id", u.ID).Msg("access token rotated on request")
	s.publish(ctx, queue.EventAccessRefreshed, u)
	return model.TokenPair{AccessToken: access.Token}, nil
}

// rotatePair issues and stores a new access and refresh token. The access
// token is written first so a failure on the second write leaves the old
// refresh token usable for a retry.
func (s *AuthService) rotatePair(ctx context.Context, u model.Identity) (model.TokenPair, error) {
	access, err := s.issue(model.KindAccess, u)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := s.issue(model.KindRefresh, u)
	if err != nil {
		return model.TokenPair{}, err
	}
	if _, err := s.store.UpsertByUserID(ctx, access); err != nil {
		return model.TokenPair{}, fmt.Errorf("rotate access: %w", err)
	}
	if _, err := s.store.UpsertByUserID(ctx, refresh); err != nil {
		return model.TokenPair{}, fmt.Errorf("rotate refresh: %w", err)
	}
	s.log.Info().Uint64("user_id", u.ID).Msg("token pair rotated")
	s.publish(ctx, queue.EventRotated, u)
	return model.TokenPair{AccessToken: access.Token, RefreshToken: refresh.Token}, nil
}

func (s *AuthService) issue(kind model.TokenKind, u model.Identity) (model.StoredToken, error) {
	raw, claims, err := s.codec.Issue(kind, u.Username)
	if err != nil {
		return model.StoredToken{}, err
	}
	return model.StoredToken{
		UserID:    u.ID,
		Kind:      kind,
		Token:     raw,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// persist inserts t when the user has no token of that kind and overwrites
// it otherwise. An insert that loses a race against a concurrent first
// login falls back to the overwrite.
func (s *AuthService) persist(ctx context.Context, t model.StoredToken) error {
	_, err := s.store.FindByUserID(ctx, t.Kind, t.UserID)
	switch {
	case err == nil:
		if _, err := s.store.UpsertByUserID(ctx, t); err != nil {
			return fmt.Errorf("update %s token: %w", t.Kind, err)
		}
		return nil
	case errors.Is(err, repository.ErrTokenNotFound):
	default:
		return fmt.Errorf("load %s token: %w", t.Kind, err)
	}

	_, err = s.store.Save(ctx, t)
	if errors.Is(err, repository.ErrTokenExists) {
		_, err = s.store.UpsertByUserID(ctx, t)
	}
	if err != nil {
		return fmt.Errorf("save %s token: %w", t.Kind, err)
	}
	return nil
}

func (s *AuthService) rejectLogin(ctx context.Context, username string) {
	s.log.Info().Str("username", username).Msg("login rejected: invalid credentials")
	s.publish(ctx, queue.EventLoginFailed, model.Identity{Username: username})
}

func (s *AuthService) publish(ctx context.Context, typ string, u model.Identity) {
	if s.events == nil {
		return
	}
	ev := queue.AuthEvent{
		Type:       typ,
		UserID:     u.ID,
		Username:   u.Username,
		OccurredAt: s.codec.Now().UTC().Format(time.RFC3339),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Msg("publish auth event failed")
	}
}
