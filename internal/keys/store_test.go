package keys

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "keys.json"))
}

func TestFileStore_MasterRoundTrip(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	_, err := s.GetMaster(ctx, "u1")
	require.ErrorIs(t, err, common.ErrNotFound)

	rec := &MasterRecord{OwnerID: "u1", Salt: []byte("salt"), Verifier: []byte("ver")}
	require.NoError(t, s.SaveMaster(ctx, rec))

	got, err := s.GetMaster(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestFileStore_CurrentKEKIsHighestVersion(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	for v := int64(1); v <= 3; v++ {
		require.NoError(t, s.SaveKEK(ctx, &models.EncryptionKey{
			ID: string(rune('a' + v)), OwnerID: "u1", Version: v,
			Wrapped: []byte("w"), Nonce: []byte("n"), CreatedAt: time.Now().UTC(),
		}))
	}

	key, err := s.CurrentKEK(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), key.Version)
}

func TestFileStore_CommitRotation(t *testing.T) {
	s := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveFileKey(ctx, &FileKey{ItemID: "i1", KeyID: "old", Wrapped: []byte("w1"), Nonce: []byte("n1")}))

	newKEK := &models.EncryptionKey{ID: "new", OwnerID: "u1", Version: 2, Wrapped: []byte("w"), Nonce: []byte("n")}
	rewrapped := []*FileKey{{ItemID: "i1", KeyID: "new", Wrapped: []byte("w2"), Nonce: []byte("n2")}}
	require.NoError(t, s.CommitRotation(ctx, newKEK, rewrapped))

	fk, err := s.GetFileKey(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "new", fk.KeyID)

	// rewrapping a key that does not exist fails the whole commit
	err = s.CommitRotation(ctx, newKEK, []*FileKey{{ItemID: "ghost"}})
	require.Error(t, err)
}

// deadStore always errors, simulating an unavailable primary.
type deadStore struct{}

var errDead = errors.New("store unavailable")

func (deadStore) GetMaster(context.Context, string) (*MasterRecord, error) { return nil, errDead }
func (deadStore) SaveMaster(context.Context, *MasterRecord) error          { return errDead }
func (deadStore) CurrentKEK(context.Context, string) (*models.EncryptionKey, error) {
	return nil, errDead
}
func (deadStore) SaveKEK(context.Context, *models.EncryptionKey) error { return errDead }
func (deadStore) GetFileKey(context.Context, string) (*FileKey, error) { return nil, errDead }
func (deadStore) SaveFileKey(context.Context, *FileKey) error          { return errDead }
func (deadStore) ListFileKeys(context.Context) ([]*FileKey, error)     { return nil, errDead }
func (deadStore) DeleteFileKey(context.Context, string) error          { return errDead }
func (deadStore) CommitRotation(context.Context, *models.EncryptionKey, []*FileKey) error {
	return errDead
}

func TestStoreWithFallback_ReadsFallBack(t *testing.T) {
	fallback := newFileStore(t)
	ctx := context.Background()

	rec := &MasterRecord{OwnerID: "u1", Salt: []byte("s"), Verifier: []byte("v")}
	require.NoError(t, fallback.SaveMaster(ctx, rec))

	s := NewStoreWithFallback(deadStore{}, fallback, logging.NewDefault())
	got, err := s.GetMaster(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStoreWithFallback_WriteMirrorFailureDoesNotFail(t *testing.T) {
	primary := newFileStore(t)
	s := NewStoreWithFallback(primary, deadStore{}, logging.NewDefault())
	ctx := context.Background()

	rec := &MasterRecord{OwnerID: "u1", Salt: []byte("s"), Verifier: []byte("v")}
	require.NoError(t, s.SaveMaster(ctx, rec))

	got, err := primary.GetMaster(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStoreWithFallback_PrimaryWriteFailureFails(t *testing.T) {
	s := NewStoreWithFallback(deadStore{}, newFileStore(t), logging.NewDefault())
	err := s.SaveMaster(context.Background(), &MasterRecord{OwnerID: "u1"})
	require.ErrorIs(t, err, errDead)
}
