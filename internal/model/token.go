package model

import "time"

// TokenKind distinguishes the two token families. Each kind is signed
// with its own secret and persisted in its own table.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Valid reports whether k is one of the known kinds.
func (k TokenKind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims is the decoded payload of a verified token.
type Claims struct {
	Subject   string    // username of the token owner
	ID        string    // unique token id (jti)
	IssuedAt  time.Time // iat
	ExpiresAt time.Time // exp
}

// StoredToken models a row of the `access_tokens` or `refresh_tokens`
// table. At most one row exists per (Kind, UserID); a new login or a
// rotation overwrites it.
//
// Fields:
//  UserID    – owner of the token.
//  Kind      – access or refresh, selects the table.
//  Token     – the serialized, signed token string.
//  IssuedAt  – iat of the token.
//  ExpiresAt – exp of the token.
type StoredToken struct {
	UserID    uint64    // *_tokens.user_id
	Kind      TokenKind // table discriminator
	Token     string    // *_tokens.token
	IssuedAt  time.Time // *_tokens.issued_at
	ExpiresAt time.Time // *_tokens.expires_at
}

// TokenPair is what a successful login or rotation hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
