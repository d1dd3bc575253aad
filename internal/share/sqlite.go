package share

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Create(ctx context.Context, link *models.ShareLink) error {
	query := `INSERT INTO shares (share_id, item_id, owner_id, expires_at, password_hash, max_access_count, access_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var expiresAt any
	if !link.ExpiresAt.IsZero() {
		expiresAt = link.ExpiresAt
	}
	_, err := r.db.ExecContext(ctx, query,
		link.ShareID, link.ItemID, link.OwnerID, expiresAt,
		link.PasswordHash, link.MaxAccessCount, link.AccessCount, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share link: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, shareID string) (*models.ShareLink, error) {
	query := `SELECT share_id, item_id, owner_id, expires_at, password_hash, max_access_count, access_count, created_at
		FROM shares WHERE share_id = ?`
	link := &models.ShareLink{}
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, shareID).Scan(
		&link.ShareID, &link.ItemID, &link.OwnerID, &expiresAt,
		&link.PasswordHash, &link.MaxAccessCount, &link.AccessCount, &link.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select share link: %w", err)
	}
	if expiresAt.Valid {
		link.ExpiresAt = expiresAt.Time
	}
	return link, nil
}

func (r *SQLiteRepository) ConsumeAccess(ctx context.Context, shareID string) (bool, error) {
	// single conditional UPDATE keeps check and increment atomic
	res, err := r.db.ExecContext(ctx, `
		UPDATE shares SET access_count = access_count + 1
		WHERE share_id = ? AND (max_access_count = 0 OR access_count < max_access_count)`,
		shareID)
	if err != nil {
		return false, fmt.Errorf("failed to consume share access: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SQLiteRepository) Revoke(ctx context.Context, shareID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shares WHERE share_id = ?`, shareID)
	if err != nil {
		return fmt.Errorf("failed to revoke share link: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareLink, error) {
	query := `SELECT share_id, item_id, owner_id, expires_at, password_hash, max_access_count, access_count, created_at
		FROM shares WHERE owner_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select share links: %w", err)
	}
	defer rows.Close()

	var result []*models.ShareLink
	for rows.Next() {
		link := &models.ShareLink{}
		var expiresAt sql.NullTime
		if err := rows.Scan(&link.ShareID, &link.ItemID, &link.OwnerID, &expiresAt,
			&link.PasswordHash, &link.MaxAccessCount, &link.AccessCount, &link.CreatedAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid {
			link.ExpiresAt = expiresAt.Time
		}
		result = append(result, link)
	}
	return result, rows.Err()
}
