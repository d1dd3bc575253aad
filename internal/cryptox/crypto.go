// Package cryptox implements the vault's crypto engine: AES-256-GCM
// authenticated encryption, per-file key generation, master key derivation
// and the constant-time/wipe primitives the rest of the vault builds on.
//
// The engine is stateless per call: it never persists key material itself.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the standard GCM nonce length in bytes.
	NonceSize = 12
)

// GenerateFileKey returns a fresh random per-file key. Each file gets its
// own key; keys are never reused across files.
func GenerateFileKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// GenerateNonce returns a fresh random GCM nonce.
func GenerateNonce() []byte {
	return common.GenerateRandByteArray(NonceSize)
}

// MakeVerifier derives the stored unlock verifier from a master key.
// The verifier leaks nothing useful about the key itself.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey derives a 32-byte master key from a user secret and salt
// using Argon2id. The parameters are deliberately slow; callers must treat
// every invocation as a suspension point.
func DeriveMasterKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// Encrypt seals plaintext under key with AES-256-GCM. A new random nonce is
// generated per call and returned alongside the ciphertext; the ciphertext
// carries the authentication tag.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt. Any key or tag mismatch fails
// closed with common.ErrDecryption; partial plaintext is never returned.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and encrypts it with Encrypt. Used for
// item metadata envelopes.
func EncryptJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer Wipe(plaintext)
	return Encrypt(plaintext, key)
}

// DecryptJSON decrypts ciphertext with Decrypt and unmarshals the resulting
// JSON into v.
func DecryptJSON(ciphertext, nonce, key []byte, v any) error {
	plaintext, err := Decrypt(ciphertext, nonce, key)
	if err != nil {
		return err
	}
	defer Wipe(plaintext)
	return json.Unmarshal(plaintext, v)
}

// ConstantTimeCompare reports whether a and b are equal, taking time
// independent of where the first differing byte occurs. Used for verifier
// and share-password checks to avoid timing side-channels.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Wipe overwrites b with zeros. Nil-safe. Every key buffer must be wiped
// immediately after use in encrypt/decrypt paths.
func Wipe(b []byte) {
	common.WipeByteArray(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
