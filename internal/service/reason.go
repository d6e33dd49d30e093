package service

import (
	"errors"

	"github.com/iliyamo/social-media-api/internal/repository"
	"github.com/iliyamo/social-media-api/internal/token"
)

// FailureReason names why an authentication step failed. It is meant for
// logs; clients only ever see a uniform rejection.
type FailureReason string

const (
	ReasonNone               FailureReason = ""
	ReasonExpired            FailureReason = "expired"
	ReasonBadSignature       FailureReason = "bad_signature"
	ReasonMalformed          FailureReason = "malformed"
	ReasonUnknownToken       FailureReason = "unknown_token"
	ReasonInvalidCredentials FailureReason = "invalid_credentials"
	ReasonAccountDisabled    FailureReason = "account_disabled"
	ReasonConflict           FailureReason = "conflict"
	ReasonInternal           FailureReason = "internal"
)

// Reason classifies err.
func Reason(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, token.ErrExpired):
		return ReasonExpired
	case errors.Is(err, token.ErrBadSignature):
		return ReasonBadSignature
	case errors.Is(err, token.ErrMalformed):
		return ReasonMalformed
	case errors.Is(err, ErrUnknownToken):
		return ReasonUnknownToken
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return ReasonAccountDisabled
	case errors.Is(err, repository.ErrUsernameExists):
		return ReasonConflict
	default:
		return ReasonInternal
	}
}

// IsAuthFailure reports whether err is the caller's fault (a bad token or
// bad credentials) rather than an infrastructure failure.
func IsAuthFailure(err error) bool {
	switch Reason(err) {
	case ReasonNone, ReasonInternal, ReasonConflict:
		return false
	default:
		return true
	}
}
