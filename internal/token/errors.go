package token

import "errors"

// Sentinel errors for token operations.
var (
	// ErrTokenMalformed indicates that the token could not be parsed.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalidSignature indicates that the token signature is invalid.
	ErrTokenInvalidSignature = errors.New("token signature invalid")

	// ErrTokenRevoked indicates that the token identifier is in the
	// revocation set.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrWrongTokenKind indicates that a token of one kind was presented
	// where the other kind is required.
	ErrWrongTokenKind = errors.New("wrong token kind")

	// ErrSubjectInactive indicates that the token subject no longer exists
	// or has been deactivated.
	ErrSubjectInactive = errors.New("subject inactive")
)
