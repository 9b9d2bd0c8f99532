package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure. The same value covers
	// unknown identifier, wrong password and disabled accounts so the
	// response never reveals which check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers every token rejection: bad signature, expiry,
	// wrong type and revocation. Callers must not distinguish them.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPermissionDenied indicates the identity lacks a required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited indicates the caller exceeded its request quota.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrStoreUnavailable indicates the backing store could not be reached.
	// All core checks treat it as fail-closed.
	ErrStoreUnavailable = errors.New("store unavailable")
)
