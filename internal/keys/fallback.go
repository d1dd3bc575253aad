package keys

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// StoreWithFallback reads from the primary store and falls back to the
// secondary when the primary fails. Writes go to the primary and are
// mirrored to the fallback best-effort; a fallback write failure is logged
// but never fails the operation.
type StoreWithFallback struct {
	primary  Store
	fallback Store
	log      logging.Logger
}

func NewStoreWithFallback(primary, fallback Store, log logging.Logger) *StoreWithFallback {
	return &StoreWithFallback{primary: primary, fallback: fallback, log: log.With("component", "keystore")}
}

func (s *StoreWithFallback) GetMaster(ctx context.Context, ownerID string) (*MasterRecord, error) {
	rec, err := s.primary.GetMaster(ctx, ownerID)
	if err == nil {
		return rec, nil
	}
	s.log.Warn(ctx, "primary key store read failed, using fallback", "err", err)
	return s.fallback.GetMaster(ctx, ownerID)
}

func (s *StoreWithFallback) SaveMaster(ctx context.Context, rec *MasterRecord) error {
	if err := s.primary.SaveMaster(ctx, rec); err != nil {
		return err
	}
	s.mirror(ctx, func() error { return s.fallback.SaveMaster(ctx, rec) })
	return nil
}

func (s *StoreWithFallback) CurrentKEK(ctx context.Context, ownerID string) (*models.EncryptionKey, error) {
	key, err := s.primary.CurrentKEK(ctx, ownerID)
	if err == nil {
		return key, nil
	}
	s.log.Warn(ctx, "primary key store read failed, using fallback", "err", err)
	return s.fallback.CurrentKEK(ctx, ownerID)
}

func (s *StoreWithFallback) SaveKEK(ctx context.Context, key *models.EncryptionKey) error {
	if err := s.primary.SaveKEK(ctx, key); err != nil {
		return err
	}
	s.mirror(ctx, func() error { return s.fallback.SaveKEK(ctx, key) })
	return nil
}

func (s *StoreWithFallback) GetFileKey(ctx context.Context, itemID string) (*FileKey, error) {
	fk, err := s.primary.GetFileKey(ctx, itemID)
	if err == nil {
		return fk, nil
	}
	return s.fallback.GetFileKey(ctx, itemID)
}

func (s *StoreWithFallback) SaveFileKey(ctx context.Context, fk *FileKey) error {
	if err := s.primary.SaveFileKey(ctx, fk); err != nil {
		return err
	}
	s.mirror(ctx, func() error { return s.fallback.SaveFileKey(ctx, fk) })
	return nil
}

func (s *StoreWithFallback) ListFileKeys(ctx context.Context) ([]*FileKey, error) {
	fks, err := s.primary.ListFileKeys(ctx)
	if err == nil {
		return fks, nil
	}
	return s.fallback.ListFileKeys(ctx)
}

func (s *StoreWithFallback) DeleteFileKey(ctx context.Context, itemID string) error {
	if err := s.primary.DeleteFileKey(ctx, itemID); err != nil {
		return err
	}
	s.mirror(ctx, func() error { return s.fallback.DeleteFileKey(ctx, itemID) })
	return nil
}

func (s *StoreWithFallback) CommitRotation(ctx context.Context, newKEK *models.EncryptionKey, rewrapped []*FileKey) error {
	if err := s.primary.CommitRotation(ctx, newKEK, rewrapped); err != nil {
		return err
	}
	s.mirror(ctx, func() error { return s.fallback.CommitRotation(ctx, newKEK, rewrapped) })
	return nil
}

func (s *StoreWithFallback) mirror(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		s.log.Warn(ctx, "fallback key store write failed", "err", err)
	}
}
