package storage

import "errors"

// Domain outcomes of the engine operations. These are first-class results
// the HTTP layer maps to response classes; anything else coming out of the
// engine is an internal fault and must stay opaque to callers.
var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrBackupNotFound    = errors.New("backup not found")
	// ErrCredentialMismatch deliberately covers both "storage key unknown"
	// and "storage key owned by another user" so a delete attempt cannot be
	// used to probe for keys.
	ErrCredentialMismatch = errors.New("invalid credentials - storage key does not match user")
)
