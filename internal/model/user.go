package model

import "time"

// Identity represents an application user record as stored in the
// `users` table. The token lifecycle only ever reads it: the username is
// the subject embedded in every token and the numeric ID keys the stored
// token records.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name, immutable after registration.
//  Email        – contact address.
//  PasswordHash – bcrypt hashed password.
//  Enabled      – whether the account may log in.
//  CreatedAt    – timestamp of creation.
type Identity struct {
	ID           uint64    // users.id
	Username     string    // users.username
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Enabled      bool      // users.enabled
	CreatedAt    time.Time // users.created_at
}

// Principal is the authenticated-identity marker attached to a request
// context by the authenticator middleware. It lives for a single request
// and is never persisted.
type Principal struct {
	Username      string
	Authenticated bool
}
