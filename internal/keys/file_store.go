package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// FileStore is a JSON-file fallback implementation of Store, used when the
// sqlite store is unavailable. The file is written with 0600 permissions;
// everything in it is already wrapped, so the file never contains plaintext
// key material.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileStoreState struct {
	Masters  map[string]*MasterRecord         `json:"masters"`
	KEKs     map[string][]*models.EncryptionKey `json:"keks"`
	FileKeys map[string]*FileKey              `json:"file_keys"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) GetMaster(ctx context.Context, ownerID string) (*MasterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := st.Masters[ownerID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

func (s *FileStore) SaveMaster(ctx context.Context, rec *MasterRecord) error {
	return s.update(func(st *fileStoreState) error {
		st.Masters[rec.OwnerID] = rec
		return nil
	})
}

func (s *FileStore) CurrentKEK(ctx context.Context, ownerID string) (*models.EncryptionKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	var current *models.EncryptionKey
	for _, k := range st.KEKs[ownerID] {
		if current == nil || k.Version > current.Version {
			current = k
		}
	}
	if current == nil {
		return nil, common.ErrNotFound
	}
	return current, nil
}

func (s *FileStore) SaveKEK(ctx context.Context, key *models.EncryptionKey) error {
	return s.update(func(st *fileStoreState) error {
		st.KEKs[key.OwnerID] = append(st.KEKs[key.OwnerID], key)
		return nil
	})
}

func (s *FileStore) GetFileKey(ctx context.Context, itemID string) (*FileKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	fk, ok := st.FileKeys[itemID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return fk, nil
}

func (s *FileStore) SaveFileKey(ctx context.Context, fk *FileKey) error {
	return s.update(func(st *fileStoreState) error {
		st.FileKeys[fk.ItemID] = fk
		return nil
	})
}

func (s *FileStore) ListFileKeys(ctx context.Context) ([]*FileKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make([]*FileKey, 0, len(st.FileKeys))
	for _, fk := range st.FileKeys {
		result = append(result, fk)
	}
	return result, nil
}

func (s *FileStore) DeleteFileKey(ctx context.Context, itemID string) error {
	return s.update(func(st *fileStoreState) error {
		delete(st.FileKeys, itemID)
		return nil
	})
}

func (s *FileStore) CommitRotation(ctx context.Context, newKEK *models.EncryptionKey, rewrapped []*FileKey) error {
	// The whole state is rewritten in one atomic rename, so the commit is
	// all-or-nothing here too.
	return s.update(func(st *fileStoreState) error {
		for _, fk := range rewrapped {
			if _, ok := st.FileKeys[fk.ItemID]; !ok {
				return fmt.Errorf("file key %s disappeared during rotation", fk.ItemID)
			}
		}
		st.KEKs[newKEK.OwnerID] = append(st.KEKs[newKEK.OwnerID], newKEK)
		for _, fk := range rewrapped {
			st.FileKeys[fk.ItemID] = fk
		}
		return nil
	})
}

func (s *FileStore) load() (*fileStoreState, error) {
	st := &fileStoreState{
		Masters:  map[string]*MasterRecord{},
		KEKs:     map[string][]*models.EncryptionKey{},
		FileKeys: map[string]*FileKey{},
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key store: %w", err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse key store: %w", err)
	}
	return st, nil
}

func (s *FileStore) update(fn func(st *fileStoreState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(st); err != nil {
		return err
	}

	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
