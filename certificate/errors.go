package certificate

import (
	"errors"
)

// Sentinel errors for certificate validation failures.
var (
	// ErrNotIssued is returned when no certificate is registered for a subject.
	ErrNotIssued = errors.New("certificate not issued")

	// ErrRevoked is returned when the subject is in the revocation set.
	ErrRevoked = errors.New("certificate revoked")

	// ErrBadSignature is returned when the issuer signature does not verify.
	ErrBadSignature = errors.New("certificate signature invalid")

	// ErrExpired is returned when the certificate's expiry has passed.
	ErrExpired = errors.New("certificate expired")

	// ErrMissingCapability is returned when a certificate lacks a required capability.
	ErrMissingCapability = errors.New("certificate lacks capability")

	// ErrInvalidRequest is returned when an issue request is malformed.
	ErrInvalidRequest = errors.New("invalid certificate request")
)

// AuthorizationError reports that a subject is not authorized to proceed.
type AuthorizationError struct {
	// Subject is the identity whose certificate was rejected.
	Subject string

	// Cause is one of the sentinel errors above, possibly wrapped with detail.
	Cause error
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	return "authorization denied for " + e.Subject + ": " + e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *AuthorizationError) Unwrap() error {
	return e.Cause
}

// AsAuthorizationError checks if an error is an AuthorizationError and returns it.
func AsAuthorizationError(err error) (*AuthorizationError, bool) {
	var aErr *AuthorizationError
	if errors.As(err, &aErr) {
		return aErr, true
	}
	return nil, false
}

func deny(subject string, cause error) error {
	return &AuthorizationError{Subject: subject, Cause: cause}
}
