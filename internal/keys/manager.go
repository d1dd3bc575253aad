package keys

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// State is the key manager's lifecycle state.
type State int

const (
	StateLocked State = iota
	StateUnlocking
	StateUnlocked
)

// MinSecretLen is a last-line guard; real secret policy validation is the
// caller's job.
const MinSecretLen = 8

// Manager owns the master key lifecycle and every per-file key. The master
// key and the unwrapped key cache are mutated only under the manager's
// mutex; key rotation is single-flight per owner.
type Manager struct {
	mu      sync.Mutex
	state   State
	ownerID string

	store Store
	log   logging.Logger

	masterKey  []byte
	kek        []byte
	kekID      string
	kekVersion int64

	// fileKeys caches unwrapped per-file keys while unlocked.
	fileKeys map[string][]byte

	// rotations holds one single-flight slot per owner id.
	rotations sync.Map // string -> *semaphore.Weighted

	// rotateMu excludes file-key writes while a rotation is re-wrapping the
	// key set: a key wrapped between the rotation's snapshot and its commit
	// would stay sealed under the retired KEK and become unrecoverable after
	// the next lock. Wraps and deletes take the read side.
	rotateMu sync.RWMutex
}

func NewManager(ownerID string, store Store, log logging.Logger) *Manager {
	return &Manager{
		ownerID:  ownerID,
		store:    store,
		log:      log.With("component", "keys"),
		fileKeys: make(map[string][]byte),
	}
}

// SetupOptions reserves room for future KDF tuning.
type SetupOptions struct{}

// Setup derives a master key from the user secret with a fresh random salt,
// stores the verifier, and generates and persists the first KEK. The vault
// is left Unlocked on success.
func (m *Manager) Setup(ctx context.Context, userSecret []byte, _ SetupOptions) error {
	if len(userSecret) < MinSecretLen {
		return common.ErrWeakSecret
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	salt := common.GenerateRandByteArray(16)
	masterKey := cryptox.DeriveMasterKey(userSecret, salt)

	rec := &MasterRecord{OwnerID: m.ownerID, Salt: salt, Verifier: cryptox.MakeVerifier(masterKey)}
	if err := m.store.SaveMaster(ctx, rec); err != nil {
		cryptox.Wipe(masterKey)
		return fmt.Errorf("failed to save master record: %w", err)
	}

	kek := cryptox.GenerateFileKey()
	wrapped, nonce, err := cryptox.Encrypt(kek, masterKey)
	if err != nil {
		cryptox.Wipe(masterKey)
		cryptox.Wipe(kek)
		return fmt.Errorf("failed to wrap kek: %w", err)
	}

	key := &models.EncryptionKey{
		ID:        uuid.NewString(),
		OwnerID:   m.ownerID,
		Version:   1,
		Wrapped:   wrapped,
		Nonce:     nonce,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.SaveKEK(ctx, key); err != nil {
		cryptox.Wipe(masterKey)
		cryptox.Wipe(kek)
		return fmt.Errorf("failed to save kek: %w", err)
	}

	m.masterKey = masterKey
	m.kek = kek
	m.kekID = key.ID
	m.kekVersion = key.Version
	m.state = StateUnlocked
	m.log.Info(ctx, "vault initialized", "kek_id", key.ID)
	return nil
}

// Unlock re-derives the master key from the user secret and verifies it
// against the stored verifier in constant time. No operation ever unlocks
// the vault implicitly.
func (m *Manager) Unlock(ctx context.Context, userSecret []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUnlocked {
		return nil
	}
	m.state = StateUnlocking

	rec, err := m.store.GetMaster(ctx, m.ownerID)
	if err != nil {
		m.state = StateLocked
		return fmt.Errorf("failed to load master record: %w", err)
	}

	masterKey := cryptox.DeriveMasterKey(userSecret, rec.Salt)
	if !cryptox.ConstantTimeCompare(cryptox.MakeVerifier(masterKey), rec.Verifier) {
		cryptox.Wipe(masterKey)
		m.state = StateLocked
		return common.ErrInvalidSecret
	}

	key, err := m.store.CurrentKEK(ctx, m.ownerID)
	if err != nil {
		cryptox.Wipe(masterKey)
		m.state = StateLocked
		return fmt.Errorf("failed to load current kek: %w", err)
	}

	kek, err := cryptox.Decrypt(key.Wrapped, key.Nonce, masterKey)
	if err != nil {
		cryptox.Wipe(masterKey)
		m.state = StateLocked
		return fmt.Errorf("failed to unwrap kek: %w", err)
	}

	m.masterKey = masterKey
	m.kek = kek
	m.kekID = key.ID
	m.kekVersion = key.Version
	m.state = StateUnlocked
	m.log.Info(ctx, "vault unlocked", "kek_id", key.ID)
	return nil
}

// Lock wipes the in-memory master key and every cached per-file key.
// Safe to call from any state, any number of times.
func (m *Manager) Lock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cryptox.Wipe(m.masterKey)
	cryptox.Wipe(m.kek)
	m.masterKey = nil
	m.kek = nil
	m.kekID = ""
	m.kekVersion = 0
	for id, k := range m.fileKeys {
		cryptox.Wipe(k)
		delete(m.fileKeys, id)
	}
	m.state = StateLocked
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentKeyID returns the current KEK id and version. Fails with
// ErrVaultLocked unless Unlocked.
func (m *Manager) CurrentKeyID() (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		return "", 0, common.ErrVaultLocked
	}
	return m.kekID, m.kekVersion, nil
}

// WrapFileKey wraps fileKey under the current KEK and persists it for
// itemID. The plaintext key stays cached until Lock. Blocks while a key
// rotation is in flight so the wrap lands under the committed KEK.
func (m *Manager) WrapFileKey(ctx context.Context, itemID string, fileKey []byte) (*FileKey, error) {
	m.rotateMu.RLock()
	defer m.rotateMu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		return nil, common.ErrVaultLocked
	}

	wrapped, nonce, err := cryptox.Encrypt(fileKey, m.kek)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap file key: %w", err)
	}

	fk := &FileKey{ItemID: itemID, KeyID: m.kekID, Wrapped: wrapped, Nonce: nonce}
	if err := m.store.SaveFileKey(ctx, fk); err != nil {
		return nil, err
	}

	m.fileKeys[itemID] = append([]byte(nil), fileKey...)
	return fk, nil
}

// UnwrapFileKey returns the plaintext per-file key for itemID. The caller
// must wipe the returned buffer after use; the manager hands out a copy so
// its cache survives.
func (m *Manager) UnwrapFileKey(ctx context.Context, itemID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		return nil, common.ErrVaultLocked
	}

	if k, ok := m.fileKeys[itemID]; ok {
		return append([]byte(nil), k...), nil
	}

	fk, err := m.store.GetFileKey(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if fk.KeyID != m.kekID {
		return nil, fmt.Errorf("%w: file key for %s sealed under kek %s, current kek is %s",
			common.ErrInternal, itemID, fk.KeyID, m.kekID)
	}

	key, err := cryptox.Decrypt(fk.Wrapped, fk.Nonce, m.kek)
	if err != nil {
		return nil, err
	}

	m.fileKeys[itemID] = append([]byte(nil), key...)
	return key, nil
}

// DeleteFileKey removes the wrapped key for a permanently deleted item and
// drops it from the cache. Blocks while a rotation is in flight so the
// commit cannot resurrect the deleted key.
func (m *Manager) DeleteFileKey(ctx context.Context, itemID string) error {
	m.rotateMu.RLock()
	defer m.rotateMu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.fileKeys[itemID]; ok {
		cryptox.Wipe(k)
		delete(m.fileKeys, itemID)
	}
	return m.store.DeleteFileKey(ctx, itemID)
}

// RotateOptions reserves room for future rotation tuning.
type RotateOptions struct{}

// RotateKey generates a new KEK, re-wraps every stored file key under it,
// and commits the new version only after every re-wrap succeeded. Rotation
// is single-flight per owner: a concurrent call fails immediately with
// ErrRotationInProgress instead of racing on key state.
func (m *Manager) RotateKey(ctx context.Context, _ RotateOptions) error {
	slot, _ := m.rotations.LoadOrStore(m.ownerID, semaphore.NewWeighted(1))
	sem := slot.(*semaphore.Weighted)
	if !sem.TryAcquire(1) {
		return common.ErrRotationInProgress
	}
	defer sem.Release(1)

	// No file-key writes between the snapshot below and the commit: a key
	// wrapped in that window would be missed by the re-wrap set.
	m.rotateMu.Lock()
	defer m.rotateMu.Unlock()

	m.mu.Lock()
	if m.state != StateUnlocked {
		m.mu.Unlock()
		return common.ErrVaultLocked
	}
	oldKEK := append([]byte(nil), m.kek...)
	oldKEKID := m.kekID
	oldVersion := m.kekVersion
	m.mu.Unlock()
	defer cryptox.Wipe(oldKEK)

	newKEK := cryptox.GenerateFileKey()

	fks, err := m.store.ListFileKeys(ctx)
	if err != nil {
		cryptox.Wipe(newKEK)
		return fmt.Errorf("failed to list file keys: %w", err)
	}

	newKeyID := uuid.NewString()
	rewrapped := make([]*FileKey, 0, len(fks))
	for _, fk := range fks {
		plain, err := cryptox.Decrypt(fk.Wrapped, fk.Nonce, oldKEK)
		if err != nil {
			cryptox.Wipe(newKEK)
			return fmt.Errorf("failed to unwrap file key %s: %w", fk.ItemID, err)
		}
		wrapped, nonce, err := cryptox.Encrypt(plain, newKEK)
		cryptox.Wipe(plain)
		if err != nil {
			cryptox.Wipe(newKEK)
			return fmt.Errorf("failed to rewrap file key %s: %w", fk.ItemID, err)
		}
		rewrapped = append(rewrapped, &FileKey{ItemID: fk.ItemID, KeyID: newKeyID, Wrapped: wrapped, Nonce: nonce})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnlocked {
		cryptox.Wipe(newKEK)
		return common.ErrVaultLocked
	}

	wrapped, nonce, err := cryptox.Encrypt(newKEK, m.masterKey)
	if err != nil {
		cryptox.Wipe(newKEK)
		return fmt.Errorf("failed to wrap new kek: %w", err)
	}

	key := &models.EncryptionKey{
		ID:          newKeyID,
		OwnerID:     m.ownerID,
		Version:     oldVersion + 1,
		Wrapped:     wrapped,
		Nonce:       nonce,
		CreatedAt:   time.Now().UTC(),
		RotatedFrom: oldKEKID,
	}

	// All-or-nothing: nothing takes effect unless the whole commit lands.
	if err := m.store.CommitRotation(ctx, key, rewrapped); err != nil {
		cryptox.Wipe(newKEK)
		return fmt.Errorf("failed to commit rotation: %w", err)
	}

	cryptox.Wipe(m.kek)
	m.kek = newKEK
	m.kekID = key.ID
	m.kekVersion = key.Version
	m.log.Info(ctx, "key rotated", "kek_id", key.ID, "version", key.Version, "rewrapped", len(rewrapped))
	return nil
}
