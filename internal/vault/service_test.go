package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/audit"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/docstore"
	"github.com/dmitrijs2005/filevault/internal/keys"
	"github.com/dmitrijs2005/filevault/internal/localdb"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/ratelimit"
	"github.com/dmitrijs2005/filevault/internal/share"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/dmitrijs2005/filevault/internal/syncq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// memBackend stores objects in a map; used in place of real S3.
type memBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	n       int
}

func newMemBackend() *memBackend {
	return &memBackend{objects: make(map[string][]byte)}
}

func (b *memBackend) Upload(ctx context.Context, body []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	ptr := fmt.Sprintf("obj-%d", b.n)
	b.objects[ptr] = append([]byte(nil), body...)
	return ptr, nil
}

func (b *memBackend) Download(ctx context.Context, pointer string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[pointer]
	if !ok {
		return nil, &storage.StorageError{Retryable: false, Err: fmt.Errorf("no such object %s", pointer)}
	}
	return append([]byte(nil), obj...), nil
}

func (b *memBackend) Delete(ctx context.Context, pointer string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, pointer)
	return nil
}

func (b *memBackend) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type harness struct {
	svc      *Service
	store    *docstore.Memory
	backend  *memBackend
	queue    syncq.Repository
	keys     *keys.Manager
	keyStore keys.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := docstore.NewMemory()
	return buildHarness(t, mem, mem)
}

func buildHarness(t *testing.T, store docstore.Store, mem *docstore.Memory) *harness {
	t.Helper()
	ctx := context.Background()
	log := logging.NewDefault()

	db, err := localdb.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	keyStore := keys.NewSQLiteStore(db)
	km := keys.NewManager("u1", keyStore, log)
	require.NoError(t, km.Setup(ctx, []byte("correct horse battery"), keys.SetupOptions{}))

	backend := newMemBackend()
	router := storage.NewRouter(nil, map[storage.Provider]storage.Backend{
		storage.ProviderStandard: backend,
		storage.ProviderBulk:     backend,
		storage.ProviderArchive:  backend,
	})

	queueRepo := syncq.NewSQLiteRepository(db)
	queue := syncq.NewProcessor(queueRepo, store, log, syncq.Options{
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})

	shares := share.NewService(
		share.NewSQLiteRepository(db),
		share.NewCapabilityIssuer([]byte("test-signing-secret"), time.Minute),
		ratelimit.NewPerUser(rate.Limit(1000), 1000),
		log)

	rec := audit.NewRecorder(audit.NewSQLiteRepository(db), log)
	t.Cleanup(rec.Close)

	svc := NewService("u1", Deps{
		Keys:    km,
		Items:   NewSQLiteItemRepository(db),
		Store:   store,
		Router:  router,
		Queue:   queue,
		Shares:  shares,
		Audit:   rec,
		Uploads: ratelimit.NewPerUser(rate.Limit(1000), 1000),
		Log:     log,
	})
	return &harness{svc: svc, store: mem, backend: backend, queue: queueRepo, keys: km, keyStore: keyStore}
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{
		Name: "test.txt", MimeType: "text/plain", Data: []byte("test-data"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), item.Size)
	assert.True(t, item.IsEncrypted)
	assert.Equal(t, models.FileTypeDocument, item.FileType)
	assert.NotEmpty(t, item.StoragePointer)

	// the stored object must not contain the plaintext
	obj, err := h.backend.Download(ctx, item.StoragePointer)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(obj, []byte("test-data")))

	got, err := h.svc.DownloadFile(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("test-data"), got)
}

func TestUploadFile_MetadataSealedAndRecoverable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{
		Name: "tax-2025.pdf", MimeType: "application/pdf", Data: []byte("pdf-bytes"),
		Metadata: map[string]string{"year": "2025", "category": "taxes"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, item.EncryptedMetadata)
	assert.False(t, bytes.Contains(item.EncryptedMetadata, []byte("taxes")))

	// the synced document must not leak the metadata either
	remote, err := h.store.Get(ctx, "u1", item.ID)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(remote.EncryptedMetadata, []byte("taxes")))

	metadata, err := h.svc.ItemMetadata(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"year": "2025", "category": "taxes"}, metadata)

	// items uploaded without metadata return none
	plain, err := h.svc.UploadFile(ctx, UploadInput{
		Name: "note.txt", MimeType: "text/plain", Data: []byte("x"),
	})
	require.NoError(t, err)
	metadata, err = h.svc.ItemMetadata(ctx, plain.ID)
	require.NoError(t, err)
	assert.Nil(t, metadata)
}

func TestLockedOperationsFailClosedWithNoSideEffects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc.Lock(ctx)

	_, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", Data: []byte("x")})
	require.ErrorIs(t, err, common.ErrVaultLocked)

	_, err = h.svc.CreateFolder(ctx, "docs", "")
	require.ErrorIs(t, err, common.ErrVaultLocked)

	require.ErrorIs(t, h.svc.RotateKey(ctx), common.ErrVaultLocked)
	require.ErrorIs(t, h.svc.DeleteItem(ctx, "whatever", false), common.ErrVaultLocked)

	// no partial writes anywhere
	n, err := h.queue.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	items, err := h.svc.ListItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, h.backend.len())
}

func TestUnlockAfterLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc.Lock(ctx)

	require.ErrorIs(t, h.svc.Unlock(ctx, []byte("wrong secret!")), common.ErrInvalidSecret)
	require.NoError(t, h.svc.Unlock(ctx, []byte("correct horse battery")))

	_, err := h.svc.CreateFolder(ctx, "docs", "")
	require.NoError(t, err)
}

func TestUpload_OfflineQueuesDocumentWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.SetUnreachable(true)

	item, err := h.svc.UploadFile(ctx, UploadInput{
		Name: "offline.bin", MimeType: "application/octet-stream", Data: []byte("payload"),
	})
	require.NoError(t, err)

	// object uploaded, document write queued
	assert.Equal(t, 1, h.backend.len())
	n, err := h.queue.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = h.store.Get(ctx, "u1", item.ID)
	require.ErrorIs(t, err, common.ErrUnavailable)

	// back online: replay converges local and remote
	h.store.SetUnreachable(false)
	require.NoError(t, h.svc.Sync(ctx))

	remote, err := h.store.Get(ctx, "u1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, "offline.bin", remote.Name)
	n, err = h.queue.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// hardFailStore rejects document writes with a terminal error.
type hardFailStore struct {
	docstore.Store
}

func (s *hardFailStore) Put(ctx context.Context, item *models.VaultItem, opID string) (*models.VaultItem, error) {
	return nil, errors.New("document store rejected the write")
}

func TestUploadFile_PersistFailureLeavesNoOrphans(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	h := buildHarness(t, &hardFailStore{Store: mem}, mem)

	_, err := h.svc.UploadFile(ctx, UploadInput{
		Name: "doomed.txt", MimeType: "text/plain", Data: []byte("payload"),
	})
	require.Error(t, err)

	// the uploaded object and the file key are rolled back
	assert.Equal(t, 0, h.backend.len())
	items, err := h.svc.ListItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	n, err := h.queue.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	fks, err := h.keyStore.ListFileKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestMoveItem_RejectsCycles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	a, err := h.svc.CreateFolder(ctx, "a", "")
	require.NoError(t, err)
	b, err := h.svc.CreateFolder(ctx, "b", a.ID)
	require.NoError(t, err)
	c, err := h.svc.CreateFolder(ctx, "c", b.ID)
	require.NoError(t, err)

	// a -> c would make a its own ancestor
	require.ErrorIs(t, h.svc.MoveItem(ctx, a.ID, c.ID), common.ErrInvalidArgument)
	require.ErrorIs(t, h.svc.MoveItem(ctx, a.ID, a.ID), common.ErrInvalidArgument)

	// sideways moves stay legal
	require.NoError(t, h.svc.MoveItem(ctx, c.ID, a.ID))
}

func TestRenameItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{
		Name: "draft.txt", MimeType: "text/plain", Data: []byte("x"),
	})
	require.NoError(t, err)

	require.ErrorIs(t, h.svc.RenameItem(ctx, item.ID, ""), common.ErrInvalidArgument)
	require.NoError(t, h.svc.RenameItem(ctx, item.ID, "final.txt"))

	got, err := h.svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "final.txt", got.Name)
}

func TestDeleteItem_SoftDeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteItem(ctx, item.ID, false))
	items, err := h.svc.ListItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, items)

	// object untouched by soft delete
	assert.Equal(t, 1, h.backend.len())

	require.NoError(t, h.svc.RestoreItem(ctx, item.ID))
	items, err = h.svc.ListItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.txt", items[0].Name)
}

func TestRestoreItem_OutsideRecoveryWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, h.svc.DeleteItem(ctx, item.ID, false))

	h.svc.now = func() time.Time { return time.Now().Add(DefaultRecoveryWindow + time.Hour) }
	require.ErrorIs(t, h.svc.RestoreItem(ctx, item.ID), common.ErrNotFound)
}

func TestDeleteItem_PermanentRemovesObjectAndDocument(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteItem(ctx, item.ID, true))

	assert.Equal(t, 0, h.backend.len())
	_, err = h.store.Get(ctx, "u1", item.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = h.svc.DownloadFile(ctx, item.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDownloadFile_QuarantinedRefused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "evil.exe", MimeType: "application/octet-stream", Data: []byte("mz")})
	require.NoError(t, err)

	item.ScanStatus = models.ScanStatusQuarantined
	require.NoError(t, h.svc.deps.Items.Save(ctx, item))

	_, err = h.svc.DownloadFile(ctx, item.ID)
	require.ErrorIs(t, err, common.ErrNotAuthorized)
	_, err = h.svc.ShareItem(ctx, item.ID, share.CreateOptions{})
	require.ErrorIs(t, err, common.ErrNotAuthorized)
}

func TestShareFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("shared")})
	require.NoError(t, err)

	link, err := h.svc.ShareItem(ctx, item.ID, share.CreateOptions{MaxAccessCount: 1})
	require.NoError(t, err)

	grant, err := h.svc.AccessShareLink(ctx, link.ShareID, item.ID, "")
	require.NoError(t, err)
	assert.Equal(t, item.ID, grant.ItemID)

	_, err = h.svc.AccessShareLink(ctx, link.ShareID, item.ID, "")
	require.ErrorIs(t, err, common.ErrAccessLimitExceeded)
}

func TestShareFlow_ExpiredLink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")})
	require.NoError(t, err)

	link, err := h.svc.ShareItem(ctx, item.ID, share.CreateOptions{
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = h.svc.AccessShareLink(ctx, link.ShareID, item.ID, "")
	require.ErrorIs(t, err, common.ErrExpiredLink)
}

func TestGetAuditLogs_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("x")})
	require.NoError(t, err)
	_, err = h.svc.DownloadFile(ctx, item.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		logs, err := h.svc.GetAuditLogs(ctx, audit.Filters{})
		return err == nil && len(logs) >= 2
	}, time.Second, 10*time.Millisecond)

	logs, err := h.svc.GetAuditLogs(ctx, audit.Filters{Action: "upload"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, item.ID, logs[0].ItemID)
}

func TestWatchRemote_CachesChangesFromOtherDevices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)

	require.NoError(t, h.svc.WatchRemote(ctx))

	// another device writes straight to the remote store
	stored, err := h.store.Put(ctx, &models.VaultItem{
		ID: "remote-1", OwnerID: "u1", Type: models.ItemTypeFile, Name: "phone-photo.jpg",
	}, "other-device-op")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		item, err := h.svc.GetItem(ctx, "remote-1")
		return err == nil && item.Name == "phone-photo.jpg" && item.Version == stored.Version
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.store.Delete(ctx, "u1", "remote-1", "other-device-op-2"))
	require.Eventually(t, func() bool {
		_, err := h.svc.GetItem(ctx, "remote-1")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRotateKey_DownloadsStillWork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	item, err := h.svc.UploadFile(ctx, UploadInput{Name: "a.txt", MimeType: "text/plain", Data: []byte("keep me")})
	require.NoError(t, err)

	require.NoError(t, h.svc.RotateKey(ctx))

	got, err := h.svc.DownloadFile(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), got)
}
