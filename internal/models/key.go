package models

import "time"

// EncryptionKey is a versioned key-encryption key (KEK). The material is
// stored wrapped under the master key and never leaves the key manager's
// secure store in plaintext.
type EncryptionKey struct {
	ID      string
	OwnerID string

	// Version increases monotonically; the highest committed version is
	// current.
	Version int64

	// Wrapped is the KEK sealed under the master key; Nonce is its AEAD nonce.
	Wrapped []byte
	Nonce   []byte

	CreatedAt time.Time

	// RotatedFrom back-references the key id this version replaced, empty for
	// the first version.
	RotatedFrom string
}
