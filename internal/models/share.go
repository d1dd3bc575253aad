package models

import "time"

// ShareLink is a capability token granting time/count-boxed access to a
// single item without full authentication.
//
// AccessCount may never exceed MaxAccessCount; expired links are rejected
// regardless of remaining count.
type ShareLink struct {
	ShareID string
	ItemID  string
	OwnerID string

	// ExpiresAt is zero for links that never expire.
	ExpiresAt time.Time

	// PasswordHash is a PHC-encoded Argon2id hash, empty when the link is not
	// password protected.
	PasswordHash string

	// MaxAccessCount limits successful accesses; 0 means unlimited.
	MaxAccessCount int64
	AccessCount    int64

	CreatedAt time.Time
}

// Expired reports whether the link is past its expiry at the given instant.
func (s *ShareLink) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
