package auth

import "errors"

var (
	// ErrUnauthenticated covers a missing, malformed or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is a valid credential without the required role.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrSuspended is a valid credential for a suspended account.
	ErrSuspended = errors.New("account suspended")
	// ErrInvalidOperation rejects admin actions applied to the caller's own account.
	ErrInvalidOperation = errors.New("invalid operation")
)
