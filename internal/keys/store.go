// Package keys implements the key manager: master key derivation and
// verification, the wrapped key-encryption-key (KEK) lifecycle, the per-file
// key cache and all-or-nothing key rotation.
package keys

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// MasterRecord holds the per-owner unlock material: the KDF salt and the
// verifier derived from the master key. The master key itself is never
// stored.
type MasterRecord struct {
	OwnerID  string
	Salt     []byte
	Verifier []byte
}

// FileKey is a per-file key wrapped under a KEK version.
type FileKey struct {
	ItemID  string
	KeyID   string
	Wrapped []byte
	Nonce   []byte
}

// Store persists key material. All material is stored wrapped; plaintext
// keys exist only inside the Manager while the vault is unlocked.
type Store interface {
	GetMaster(ctx context.Context, ownerID string) (*MasterRecord, error)
	SaveMaster(ctx context.Context, rec *MasterRecord) error

	// CurrentKEK returns the highest committed KEK version for the owner.
	CurrentKEK(ctx context.Context, ownerID string) (*models.EncryptionKey, error)
	SaveKEK(ctx context.Context, key *models.EncryptionKey) error

	GetFileKey(ctx context.Context, itemID string) (*FileKey, error)
	SaveFileKey(ctx context.Context, fk *FileKey) error
	ListFileKeys(ctx context.Context) ([]*FileKey, error)
	DeleteFileKey(ctx context.Context, itemID string) error

	// CommitRotation atomically installs a new current KEK together with the
	// full set of re-wrapped file keys. Either everything commits or nothing
	// does; no file key may end up referencing a KEK id that was never
	// committed.
	CommitRotation(ctx context.Context, newKEK *models.EncryptionKey, rewrapped []*FileKey) error
}
