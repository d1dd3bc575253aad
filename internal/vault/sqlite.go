package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

type SQLiteItemRepository struct {
	db dbx.DBTX
}

func NewSQLiteItemRepository(db dbx.DBTX) *SQLiteItemRepository {
	return &SQLiteItemRepository{db: db}
}

const itemColumns = `id, owner_id, parent_id, type, name, file_type, mime_type, size,
	storage_provider, storage_pointer, is_encrypted, encryption_key_id,
	enc_nonce, enc_algorithm, key_version, wrapped_file_key, key_nonce,
	enc_metadata, metadata_nonce,
	scan_status, deleted, deleted_at, version, created_at, updated_at`

func (r *SQLiteItemRepository) Save(ctx context.Context, item *models.VaultItem) error {
	query := `INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			file_type = excluded.file_type,
			mime_type = excluded.mime_type,
			size = excluded.size,
			storage_provider = excluded.storage_provider,
			storage_pointer = excluded.storage_pointer,
			is_encrypted = excluded.is_encrypted,
			encryption_key_id = excluded.encryption_key_id,
			enc_nonce = excluded.enc_nonce,
			enc_algorithm = excluded.enc_algorithm,
			key_version = excluded.key_version,
			wrapped_file_key = excluded.wrapped_file_key,
			key_nonce = excluded.key_nonce,
			enc_metadata = excluded.enc_metadata,
			metadata_nonce = excluded.metadata_nonce,
			scan_status = excluded.scan_status,
			deleted = excluded.deleted,
			deleted_at = excluded.deleted_at,
			version = excluded.version,
			updated_at = excluded.updated_at`

	var deletedAt any
	if !item.DeletedAt.IsZero() {
		deletedAt = item.DeletedAt
	}
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.OwnerID, item.ParentID, string(item.Type), item.Name,
		string(item.FileType), item.MimeType, item.Size,
		item.StorageProvider, item.StoragePointer,
		item.IsEncrypted, item.EncryptionKeyID,
		item.EncryptionMetadata.Nonce, item.EncryptionMetadata.Algorithm, item.EncryptionMetadata.KeyVersion,
		item.WrappedFileKey, item.KeyNonce,
		item.EncryptedMetadata, item.MetadataNonce,
		string(item.ScanStatus), item.IsDeleted, deletedAt,
		item.Version, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func (r *SQLiteItemRepository) Get(ctx context.Context, ownerID, itemID string) (*models.VaultItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND owner_id = ?`, itemID, ownerID)
	item, err := scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select item: %w", err)
	}
	return item, nil
}

func (r *SQLiteItemRepository) ListByParent(ctx context.Context, ownerID, parentID string, includeDeleted bool) ([]*models.VaultItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE owner_id = ? AND parent_id = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY type DESC, name COLLATE NOCASE`

	rows, err := r.db.QueryContext(ctx, query, ownerID, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.VaultItem
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *SQLiteItemRepository) Delete(ctx context.Context, ownerID, itemID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM items WHERE id = ? AND owner_id = ?`, itemID, ownerID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func scanItem(scan func(dest ...any) error) (*models.VaultItem, error) {
	item := &models.VaultItem{}
	var itemType, fileType, scanStatus string
	var deletedAt sql.NullTime
	err := scan(
		&item.ID, &item.OwnerID, &item.ParentID, &itemType, &item.Name,
		&fileType, &item.MimeType, &item.Size,
		&item.StorageProvider, &item.StoragePointer,
		&item.IsEncrypted, &item.EncryptionKeyID,
		&item.EncryptionMetadata.Nonce, &item.EncryptionMetadata.Algorithm, &item.EncryptionMetadata.KeyVersion,
		&item.WrappedFileKey, &item.KeyNonce,
		&item.EncryptedMetadata, &item.MetadataNonce,
		&scanStatus, &item.IsDeleted, &deletedAt,
		&item.Version, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Type = models.ItemType(itemType)
	item.FileType = models.FileType(fileType)
	item.ScanStatus = models.ScanStatus(scanStatus)
	if deletedAt.Valid {
		item.DeletedAt = deletedAt.Time
	}
	return item, nil
}
