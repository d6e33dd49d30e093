// Package token issues and verifies the signed, self-contained tokens used
// for authentication. Access and refresh tokens are HS256 JWTs signed with
// two distinct secrets so that one kind can never be replayed as the other.
// The codec holds no mutable state and is safe for concurrent use.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/social-media-api/internal/model"
)

var (
	// ErrExpired is returned when the current time is at or past the token's exp.
	ErrExpired = errors.New("token expired")
	// ErrBadSignature is returned when the MAC does not verify with the key
	// bound to the requested kind, including cross-kind replay.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrMalformed is returned when the token is not a structurally valid JWT
	// or misses mandatory claims.
	ErrMalformed = errors.New("token malformed")
)

// DefaultRotateThreshold is the fraction of a kind's TTL below which a
// token counts as near expiry.
const DefaultRotateThreshold = 0.5

// MinSecretLen is the shortest accepted HMAC key, 256 bits for HS256.
const MinSecretLen = 32

// Config carries the key material and lifetimes. Secrets are raw key bytes
// (already base64-decoded).
type Config struct {
	AccessSecret    []byte
	RefreshSecret   []byte
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RotateThreshold float64
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Codec creates and parses tokens.
type Codec struct {
	keys      map[model.TokenKind][]byte
	ttls      map[model.TokenKind]time.Duration
	threshold float64
	now       func() time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if len(cfg.AccessSecret) < MinSecretLen || len(cfg.RefreshSecret) < MinSecretLen {
		return nil, fmt.Errorf("token: secrets must be at least %d bytes", MinSecretLen)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token: TTLs must be positive")
	}
	if cfg.RotateThreshold == 0 {
		cfg.RotateThreshold = DefaultRotateThreshold
	}
	if cfg.RotateThreshold < 0 || cfg.RotateThreshold >= 1 {
		return nil, fmt.Errorf("token: rotate threshold %v out of range [0,1)", cfg.RotateThreshold)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		keys: map[model.TokenKind][]byte{
			model.KindAccess:  append([]byte(nil), cfg.AccessSecret...),
			model.KindRefresh: append([]byte(nil), cfg.RefreshSecret...),
		},
		ttls: map[model.TokenKind]time.Duration{
			model.KindAccess:  cfg.AccessTTL,
			model.KindRefresh: cfg.RefreshTTL,
		},
		threshold: cfg.RotateThreshold,
		now:       now,
	}, nil
}

// TTL returns the configured lifetime of kind.
func (c *Codec) TTL(kind model.TokenKind) time.Duration {
	return c.ttls[kind]
}

// Now returns the codec's notion of the current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Issue builds and signs a token for subject. The issue time is truncated
// to the JWT time precision so the returned claims match what a later
// parse yields.
func (c *Codec) Issue(kind model.TokenKind, subject string) (string, model.Claims, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", model.Claims{}, fmt.Errorf("token: unknown kind %q", kind)
	}
	if subject == "" {
		return "", model.Claims{}, errors.New("token: empty subject")
	}
	now := c.now().UTC().Truncate(jwt.TimePrecision)
	out := model.Claims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttls[kind]),
	}
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   out.Subject,
			ID:        out.ID,
			IssuedAt:  jwt.NewNumericDate(out.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(out.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", model.Claims{}, fmt.Errorf("token: sign %s: %w", kind, err)
	}
	return signed, out, nil
}

// ParseAndVerify checks the signature with the key bound to kind and the
// expiry against the codec clock. The signature is verified first, so an
// expired token of the wrong kind reports ErrBadSignature.
func (c *Codec) ParseAndVerify(kind model.TokenKind, raw string) (model.Claims, error) {
	key, ok := c.keys[kind]
	if !ok {
		return model.Claims{}, fmt.Errorf("token: unknown kind %q", kind)
	}
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrBadSignature
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return model.Claims{}, classify(err)
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return model.Claims{}, ErrMalformed
	}
	return model.Claims{
		Subject:   claims.Subject,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// IsNearExpiry reports whether raw is a valid token of kind whose remaining
// lifetime is at or below the rotate threshold. Invalid tokens are not
// near expiry; they are simply rejected by ParseAndVerify.
func (c *Codec) IsNearExpiry(kind model.TokenKind, raw string) bool {
	claims, err := c.ParseAndVerify(kind, raw)
	if err != nil {
		return false
	}
	return c.NearExpiry(kind, claims)
}

// NearExpiry is IsNearExpiry for claims that were already verified.
func (c *Codec) NearExpiry(kind model.TokenKind, claims model.Claims) bool {
	remaining := claims.ExpiresAt.Sub(c.now())
	limit := time.Duration(float64(c.ttls[kind]) * c.threshold)
	return remaining <= limit
}

// classify maps jwt parser errors onto the codec's error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
