package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/audit"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/docstore"
	"github.com/dmitrijs2005/filevault/internal/keys"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/ratelimit"
	"github.com/dmitrijs2005/filevault/internal/share"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/dmitrijs2005/filevault/internal/syncq"
	"github.com/google/uuid"
)

// DefaultRecoveryWindow bounds how long a soft-deleted item stays
// restorable.
const DefaultRecoveryWindow = 30 * 24 * time.Hour

// UploadInput describes one file upload.
type UploadInput struct {
	Name     string
	ParentID string
	MimeType string
	Data     []byte
	// Metadata is sealed under the per-file key before it leaves the device.
	Metadata map[string]string
}

// Deps wires the facade's collaborators. Everything is injected; the
// service owns no process-wide state.
type Deps struct {
	Keys    *keys.Manager
	Items   ItemRepository
	Store   docstore.Store
	Router  *storage.Router
	Queue   *syncq.Processor
	Shares  *share.Service
	Audit   *audit.Recorder
	Uploads *ratelimit.PerUser
	Log     logging.Logger
}

// Service is the vault API surface. Every operation that needs the master
// key checks the lock state before any side effect, so a locked vault never
// leaves partial writes or queue entries behind.
type Service struct {
	userID string
	deps   Deps
	log    logging.Logger

	recoveryWindow time.Duration
	now            func() time.Time
}

func NewService(userID string, deps Deps) *Service {
	return &Service{
		userID:         userID,
		deps:           deps,
		log:            deps.Log.With("component", "vault", "user_id", userID),
		recoveryWindow: DefaultRecoveryWindow,
		now:            time.Now,
	}
}

func (s *Service) requireUnlocked() error {
	if s.deps.Keys.State() != keys.StateUnlocked {
		return common.ErrVaultLocked
	}
	return nil
}

// Unlock derives the master key from the secret and opens the vault.
func (s *Service) Unlock(ctx context.Context, secret []byte) error {
	if err := s.deps.Keys.Unlock(ctx, secret); err != nil {
		return err
	}
	s.deps.Audit.Record(ctx, s.userID, "unlock", "", nil)
	return nil
}

// Lock wipes all key material. Safe to call in any state.
func (s *Service) Lock(ctx context.Context) {
	s.deps.Keys.Lock()
	s.deps.Audit.Record(ctx, s.userID, "lock", "", nil)
}

// RotateKey re-wraps every file key under a fresh key-encryption key.
func (s *Service) RotateKey(ctx context.Context) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	if err := s.deps.Keys.RotateKey(ctx, keys.RotateOptions{}); err != nil {
		return err
	}
	s.deps.Audit.Record(ctx, s.userID, "rotate_key", "", nil)
	return nil
}

// GetItem returns one of the user's items by id.
func (s *Service) GetItem(ctx context.Context, itemID string) (*models.VaultItem, error) {
	return s.deps.Items.Get(ctx, s.userID, itemID)
}

// ListItems returns the direct children of parentID, excluding soft-deleted
// items.
func (s *Service) ListItems(ctx context.Context, parentID string) ([]*models.VaultItem, error) {
	return s.deps.Items.ListByParent(ctx, s.userID, parentID, false)
}

// CreateFolder adds a folder under parentID.
func (s *Service) CreateFolder(ctx context.Context, name, parentID string) (*models.VaultItem, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: folder name is empty", common.ErrInvalidArgument)
	}
	if parentID != "" {
		if err := s.ensureFolder(ctx, parentID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	item := &models.VaultItem{
		ID:        uuid.NewString(),
		OwnerID:   s.userID,
		ParentID:  parentID,
		Type:      models.ItemTypeFolder,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.persist(ctx, models.OpCreate, item); err != nil {
		return nil, err
	}
	s.deps.Audit.Record(ctx, s.userID, "create_folder", item.ID, map[string]string{"name": name})
	return item, nil
}

// UploadFile encrypts and stores a file. The item document is written only
// after the backend confirms the encrypted object exists; while offline the
// document write is queued instead.
func (s *Service) UploadFile(ctx context.Context, in UploadInput) (*models.VaultItem, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	if in.Name == "" || len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: upload needs a name and content", common.ErrInvalidArgument)
	}
	if !s.deps.Uploads.Allow(s.userID) {
		return nil, common.ErrRateLimitExceeded
	}
	if in.ParentID != "" {
		if err := s.ensureFolder(ctx, in.ParentID); err != nil {
			return nil, err
		}
	}

	size := int64(len(in.Data))
	provider, err := s.deps.Router.Select(size, in.MimeType)
	if err != nil {
		return nil, err
	}

	itemID := uuid.NewString()
	fileKey := cryptox.GenerateFileKey()
	defer cryptox.Wipe(fileKey)

	ciphertext, nonce, err := cryptox.Encrypt(in.Data, fileKey)
	if err != nil {
		return nil, err
	}

	var encMeta, metaNonce []byte
	if len(in.Metadata) > 0 {
		encMeta, metaNonce, err = cryptox.EncryptJSON(in.Metadata, fileKey)
		if err != nil {
			return nil, err
		}
	}

	wrapped, err := s.deps.Keys.WrapFileKey(ctx, itemID, fileKey)
	if err != nil {
		return nil, err
	}
	keyID, keyVersion, err := s.deps.Keys.CurrentKeyID()
	if err != nil {
		return nil, err
	}

	pointer, err := s.deps.Router.Upload(ctx, provider, ciphertext)
	if err != nil {
		// no partial item record: drop the orphaned key material
		_ = s.deps.Keys.DeleteFileKey(ctx, itemID)
		return nil, err
	}

	now := s.now().UTC()
	item := &models.VaultItem{
		ID:              itemID,
		OwnerID:         s.userID,
		ParentID:        in.ParentID,
		Type:            models.ItemTypeFile,
		Name:            in.Name,
		FileType:        models.FileTypeFromMime(in.MimeType),
		MimeType:        in.MimeType,
		Size:            size,
		StorageProvider: provider.String(),
		StoragePointer:  pointer,
		IsEncrypted:     true,
		EncryptionKeyID: keyID,
		EncryptionMetadata: models.EncryptionMetadata{
			Nonce:      nonce,
			Algorithm:  "aes-256-gcm",
			KeyVersion: keyVersion,
		},
		WrappedFileKey:    wrapped.Wrapped,
		KeyNonce:          wrapped.Nonce,
		EncryptedMetadata: encMeta,
		MetadataNonce:     metaNonce,
		ScanStatus:        models.ScanStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.persist(ctx, models.OpCreate, item); err != nil {
		// no partial item record: drop the stored object and the key
		if derr := s.deps.Router.Delete(ctx, provider, pointer); derr != nil {
			s.log.Warn(ctx, "failed to remove orphaned object", "pointer", pointer, "err", derr)
		}
		_ = s.deps.Keys.DeleteFileKey(ctx, itemID)
		return nil, err
	}

	s.deps.Audit.Record(ctx, s.userID, "upload", itemID, map[string]string{
		"name": in.Name, "provider": provider.String(),
	})
	return item, nil
}

// DownloadFile fetches and decrypts a file's bytes. Quarantined items refuse
// download.
func (s *Service) DownloadFile(ctx context.Context, itemID string) ([]byte, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return nil, err
	}
	if item.IsFolder() {
		return nil, fmt.Errorf("%w: cannot download a folder", common.ErrInvalidArgument)
	}
	if item.ScanStatus == models.ScanStatusQuarantined {
		return nil, fmt.Errorf("%w: item is quarantined", common.ErrNotAuthorized)
	}

	provider, err := storage.ParseProvider(item.StorageProvider)
	if err != nil {
		return nil, err
	}
	ciphertext, err := s.deps.Router.Download(ctx, provider, item.StoragePointer)
	if err != nil {
		return nil, err
	}

	fileKey, err := s.deps.Keys.UnwrapFileKey(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(fileKey)

	plaintext, err := cryptox.Decrypt(ciphertext, item.EncryptionMetadata.Nonce, fileKey)
	if err != nil {
		return nil, err
	}

	s.deps.Audit.Record(ctx, s.userID, "download", itemID, nil)
	return plaintext, nil
}

// ItemMetadata decrypts and returns the caller-supplied metadata stored with
// an item; nil when the item carries none.
func (s *Service) ItemMetadata(ctx context.Context, itemID string) (map[string]string, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return nil, err
	}
	if len(item.EncryptedMetadata) == 0 {
		return nil, nil
	}

	fileKey, err := s.deps.Keys.UnwrapFileKey(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(fileKey)

	var metadata map[string]string
	if err := cryptox.DecryptJSON(item.EncryptedMetadata, item.MetadataNonce, fileKey, &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// RenameItem changes an item's display name.
func (s *Service) RenameItem(ctx context.Context, itemID, newName string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	if newName == "" {
		return fmt.Errorf("%w: name is empty", common.ErrInvalidArgument)
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return err
	}
	item.Name = newName
	item.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, models.OpUpdate, item); err != nil {
		return err
	}
	s.deps.Audit.Record(ctx, s.userID, "rename", itemID, map[string]string{"name": newName})
	return nil
}

// MoveItem reparents an item. A folder can never be moved under itself or
// any of its descendants.
func (s *Service) MoveItem(ctx context.Context, itemID, newParentID string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return err
	}
	if newParentID != "" {
		if err := s.ensureFolder(ctx, newParentID); err != nil {
			return err
		}
		if err := s.checkNoCycle(ctx, itemID, newParentID); err != nil {
			return err
		}
	}

	item.ParentID = newParentID
	item.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, models.OpMove, item); err != nil {
		return err
	}
	s.deps.Audit.Record(ctx, s.userID, "move", itemID, map[string]string{"parent_id": newParentID})
	return nil
}

// DeleteItem soft-deletes by default; permanent also removes the encrypted
// object and the per-file key.
func (s *Service) DeleteItem(ctx context.Context, itemID string, permanent bool) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return err
	}

	if !permanent {
		item.IsDeleted = true
		item.DeletedAt = s.now().UTC()
		item.UpdatedAt = item.DeletedAt
		if err := s.persist(ctx, models.OpUpdate, item); err != nil {
			return err
		}
		s.deps.Audit.Record(ctx, s.userID, "delete", itemID, nil)
		return nil
	}

	if item.Type == models.ItemTypeFile && item.StoragePointer != "" {
		provider, err := storage.ParseProvider(item.StorageProvider)
		if err != nil {
			return err
		}
		if err := s.deps.Router.Delete(ctx, provider, item.StoragePointer); err != nil {
			return err
		}
		if err := s.deps.Keys.DeleteFileKey(ctx, itemID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
	}
	if err := s.removeRemote(ctx, itemID); err != nil {
		return err
	}
	if err := s.deps.Items.Delete(ctx, s.userID, itemID); err != nil {
		return err
	}
	s.deps.Audit.Record(ctx, s.userID, "delete_permanent", itemID, nil)
	return nil
}

// RestoreItem undoes a soft delete within the recovery window.
func (s *Service) RestoreItem(ctx context.Context, itemID string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return err
	}
	if !item.IsDeleted {
		return fmt.Errorf("%w: item is not deleted", common.ErrInvalidArgument)
	}
	if s.now().Sub(item.DeletedAt) > s.recoveryWindow {
		return fmt.Errorf("%w: recovery window elapsed", common.ErrNotFound)
	}

	item.IsDeleted = false
	item.DeletedAt = time.Time{}
	item.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, models.OpUpdate, item); err != nil {
		return err
	}
	s.deps.Audit.Record(ctx, s.userID, "restore", itemID, nil)
	return nil
}

// ShareItem creates a share link for one of the user's items.
func (s *Service) ShareItem(ctx context.Context, itemID string, opts share.CreateOptions) (*models.ShareLink, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	item, err := s.deps.Items.Get(ctx, s.userID, itemID)
	if err != nil {
		return nil, err
	}
	if item.IsDeleted {
		return nil, common.ErrNotFound
	}
	if item.ScanStatus == models.ScanStatusQuarantined {
		return nil, fmt.Errorf("%w: item is quarantined", common.ErrNotAuthorized)
	}

	link, err := s.deps.Shares.Create(ctx, s.userID, itemID, opts)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.Record(ctx, s.userID, "share", itemID, map[string]string{"share_id": link.ShareID})
	return link, nil
}

// AccessShareLink validates a link and returns a download capability.
// The vault does not need to be unlocked: the link itself is the credential.
func (s *Service) AccessShareLink(ctx context.Context, shareID, itemID, password string) (*share.Grant, error) {
	grant, err := s.deps.Shares.Access(ctx, shareID, itemID, password)
	if err != nil {
		return nil, err
	}
	s.deps.Audit.Record(ctx, s.userID, "share_access", grant.ItemID, map[string]string{"share_id": shareID})
	return grant, nil
}

// GetAuditLogs returns the user's audit entries.
func (s *Service) GetAuditLogs(ctx context.Context, filters audit.Filters) ([]*models.AuditLogEntry, error) {
	return s.deps.Audit.Query(ctx, s.userID, filters)
}

// Sync drains the offline queue.
func (s *Service) Sync(ctx context.Context) error {
	return s.deps.Queue.ProcessAll(ctx, s.userID)
}

// WatchRemote applies remote change events to the local item cache until
// ctx is cancelled, so edits from other devices show up in listings.
func (s *Service) WatchRemote(ctx context.Context) error {
	events, stop, err := s.deps.Store.Subscribe(ctx, s.userID)
	if err != nil {
		return err
	}

	go func() {
		defer stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Removed {
					if err := s.deps.Items.Delete(ctx, s.userID, ev.ItemID); err != nil {
						s.log.Warn(ctx, "failed to drop removed item from cache", "item_id", ev.ItemID, "err", err)
					}
					continue
				}
				if ev.Item == nil {
					continue
				}
				if err := s.deps.Items.Save(ctx, ev.Item); err != nil {
					s.log.Warn(ctx, "failed to cache remote item", "item_id", ev.ItemID, "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// ensureFolder verifies that id names an existing, non-deleted folder.
func (s *Service) ensureFolder(ctx context.Context, id string) error {
	parent, err := s.deps.Items.Get(ctx, s.userID, id)
	if err != nil {
		return err
	}
	if !parent.IsFolder() || parent.IsDeleted {
		return fmt.Errorf("%w: %s is not a folder", common.ErrInvalidArgument, id)
	}
	return nil
}

// checkNoCycle walks from newParentID up to the root and fails if it passes
// through itemID. The walk is bounded by tree depth.
func (s *Service) checkNoCycle(ctx context.Context, itemID, newParentID string) error {
	cur := newParentID
	for cur != "" {
		if cur == itemID {
			return fmt.Errorf("%w: folder cannot be moved into its own subtree", common.ErrInvalidArgument)
		}
		parent, err := s.deps.Items.Get(ctx, s.userID, cur)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil
			}
			return err
		}
		cur = parent.ParentID
	}
	return nil
}

// persist saves the item locally and writes it to the remote store; when the
// remote is unreachable the write is queued for replay instead. The same
// operation id serves as the remote idempotency key both ways.
func (s *Service) persist(ctx context.Context, opType models.OperationType, item *models.VaultItem) error {
	opID := uuid.NewString()

	stored, err := s.deps.Store.Put(ctx, item, opID)
	switch {
	case err == nil:
		item.Version = stored.Version
	case errors.Is(err, common.ErrConflict):
		return err
	case isOffline(err):
		payload, merr := json.Marshal(item)
		if merr != nil {
			return merr
		}
		if qerr := s.deps.Queue.Enqueue(ctx, &models.SyncOperation{
			ID:          opID,
			UserID:      s.userID,
			ItemID:      item.ID,
			Type:        opType,
			Collection:  "items",
			Payload:     payload,
			BaseVersion: item.Version,
			EnqueuedAt:  s.now().UTC(),
		}); qerr != nil {
			return qerr
		}
		s.log.Warn(ctx, "remote write queued for replay", "item_id", item.ID, "op", string(opType))
	default:
		return err
	}

	return s.deps.Items.Save(ctx, item)
}

// removeRemote deletes the remote document, queueing the delete when
// offline.
func (s *Service) removeRemote(ctx context.Context, itemID string) error {
	opID := uuid.NewString()
	err := s.deps.Store.Delete(ctx, s.userID, itemID, opID)
	switch {
	case err == nil, errors.Is(err, common.ErrNotFound):
		return nil
	case isOffline(err):
		return s.deps.Queue.Enqueue(ctx, &models.SyncOperation{
			ID:         opID,
			UserID:     s.userID,
			ItemID:     itemID,
			Type:       models.OpDelete,
			Collection: "items",
			Payload:    []byte(`{}`),
			EnqueuedAt: s.now().UTC(),
		})
	default:
		return err
	}
}

func isOffline(err error) bool {
	return errors.Is(err, common.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		storage.IsRetryable(err)
}
