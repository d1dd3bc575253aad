package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}
	query := `INSERT INTO audit_log (id, action, item_id, user_id, ts, metadata, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.ItemID, entry.UserID, entry.Timestamp, string(metadata), entry.Hash)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LastHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT hash FROM audit_log WHERE user_id = ? ORDER BY seq DESC LIMIT 1`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to select last audit hash: %w", err)
	}
	return hash, nil
}

func (r *SQLiteRepository) Query(ctx context.Context, userID string, filters Filters) ([]*models.AuditLogEntry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, action, item_id, user_id, ts, metadata, hash FROM audit_log WHERE user_id = ?`)
	args := []any{userID}

	if filters.Action != "" {
		sb.WriteString(` AND action = ?`)
		args = append(args, filters.Action)
	}
	if filters.ItemID != "" {
		sb.WriteString(` AND item_id = ?`)
		args = append(args, filters.ItemID)
	}
	if !filters.Since.IsZero() {
		sb.WriteString(` AND ts >= ?`)
		args = append(args, filters.Since)
	}
	if !filters.Until.IsZero() {
		sb.WriteString(` AND ts <= ?`)
		args = append(args, filters.Until)
	}
	sb.WriteString(` ORDER BY seq`)
	if filters.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLogEntry
	for rows.Next() {
		entry := &models.AuditLogEntry{}
		var metadata string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.ItemID, &entry.UserID,
			&entry.Timestamp, &metadata, &entry.Hash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
