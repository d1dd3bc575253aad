// Package common defines shared constants and sentinel errors used across
// the vault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Key manager errors.
	ErrVaultLocked        = errors.New("vault is locked")
	ErrInvalidSecret      = errors.New("invalid secret")
	ErrWeakSecret         = errors.New("secret does not meet policy")
	ErrRotationInProgress = errors.New("key rotation already in progress")

	// Crypto errors. Any authentication-tag mismatch maps here; no partial
	// plaintext is ever returned.
	ErrDecryption = errors.New("decryption failed")

	// Sharing / access control errors.
	ErrExpiredLink         = errors.New("share link expired")
	ErrInvalidPassword     = errors.New("invalid share password")
	ErrAccessLimitExceeded = errors.New("share access limit exceeded")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")

	// Sync errors.
	ErrConflict    = errors.New("version conflict")
	ErrUnavailable = errors.New("remote store unavailable")

	// Generic/internal flow control.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)
