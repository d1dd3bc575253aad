package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// SQLiteStore implements Store on the local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetMaster(ctx context.Context, ownerID string) (*MasterRecord, error) {
	query := `SELECT owner_id, salt, verifier FROM master_keys WHERE owner_id = ?`
	rec := &MasterRecord{}
	err := s.db.QueryRowContext(ctx, query, ownerID).Scan(&rec.OwnerID, &rec.Salt, &rec.Verifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get master record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) SaveMaster(ctx context.Context, rec *MasterRecord) error {
	query := `INSERT INTO master_keys (owner_id, salt, verifier) VALUES (?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET salt = excluded.salt, verifier = excluded.verifier`
	if _, err := s.db.ExecContext(ctx, query, rec.OwnerID, rec.Salt, rec.Verifier); err != nil {
		return fmt.Errorf("failed to save master record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CurrentKEK(ctx context.Context, ownerID string) (*models.EncryptionKey, error) {
	query := `SELECT id, owner_id, version, wrapped, nonce, rotated_from, created_at
		FROM encryption_keys WHERE owner_id = ? AND is_current = 1`
	return s.scanKEK(s.db.QueryRowContext(ctx, query, ownerID))
}

func (s *SQLiteStore) SaveKEK(ctx context.Context, key *models.EncryptionKey) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return insertCurrentKEK(ctx, tx, key)
	})
}

func (s *SQLiteStore) GetFileKey(ctx context.Context, itemID string) (*FileKey, error) {
	query := `SELECT item_id, key_id, wrapped, nonce FROM file_keys WHERE item_id = ?`
	fk := &FileKey{}
	err := s.db.QueryRowContext(ctx, query, itemID).Scan(&fk.ItemID, &fk.KeyID, &fk.Wrapped, &fk.Nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file key: %w", err)
	}
	return fk, nil
}

func (s *SQLiteStore) SaveFileKey(ctx context.Context, fk *FileKey) error {
	query := `INSERT INTO file_keys (item_id, key_id, wrapped, nonce) VALUES (?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET key_id = excluded.key_id,
			wrapped = excluded.wrapped, nonce = excluded.nonce`
	if _, err := s.db.ExecContext(ctx, query, fk.ItemID, fk.KeyID, fk.Wrapped, fk.Nonce); err != nil {
		return fmt.Errorf("failed to save file key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFileKeys(ctx context.Context) ([]*FileKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id, key_id, wrapped, nonce FROM file_keys`)
	if err != nil {
		return nil, fmt.Errorf("failed to list file keys: %w", err)
	}
	defer rows.Close()

	var result []*FileKey
	for rows.Next() {
		fk := &FileKey{}
		if err := rows.Scan(&fk.ItemID, &fk.KeyID, &fk.Wrapped, &fk.Nonce); err != nil {
			return nil, err
		}
		result = append(result, fk)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) DeleteFileKey(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_keys WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete file key: %w", err)
	}
	return nil
}

// CommitRotation installs the new KEK and every re-wrapped file key in a
// single transaction.
func (s *SQLiteStore) CommitRotation(ctx context.Context, newKEK *models.EncryptionKey, rewrapped []*FileKey) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := insertCurrentKEK(ctx, tx, newKEK); err != nil {
			return err
		}
		for _, fk := range rewrapped {
			query := `UPDATE file_keys SET key_id = ?, wrapped = ?, nonce = ? WHERE item_id = ?`
			res, err := tx.ExecContext(ctx, query, fk.KeyID, fk.Wrapped, fk.Nonce, fk.ItemID)
			if err != nil {
				return fmt.Errorf("failed to rewrap file key: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if ra != 1 {
				return fmt.Errorf("file key %s disappeared during rotation", fk.ItemID)
			}
		}
		return nil
	})
}

func insertCurrentKEK(ctx context.Context, tx dbx.DBTX, key *models.EncryptionKey) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE encryption_keys SET is_current = 0 WHERE owner_id = ?`, key.OwnerID); err != nil {
		return fmt.Errorf("failed to demote current kek: %w", err)
	}
	query := `INSERT INTO encryption_keys (id, owner_id, version, wrapped, nonce, rotated_from, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`
	if _, err := tx.ExecContext(ctx, query,
		key.ID, key.OwnerID, key.Version, key.Wrapped, key.Nonce, key.RotatedFrom, key.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert kek: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanKEK(row *sql.Row) (*models.EncryptionKey, error) {
	key := &models.EncryptionKey{}
	err := row.Scan(&key.ID, &key.OwnerID, &key.Version, &key.Wrapped, &key.Nonce, &key.RotatedFrom, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current kek: %w", err)
	}
	return key, nil
}
