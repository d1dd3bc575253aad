package syncq

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/dbx"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or
// *sql.Tx). The autoincrement seq column preserves enqueue order.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, op *models.SyncOperation) error {
	query := `INSERT INTO sync_queue (id, user_id, item_id, type, collection, payload, base_version, retry_count, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		op.ID, op.UserID, op.ItemID, string(op.Type), op.Collection, []byte(op.Payload),
		op.BaseVersion, op.RetryCount, op.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context, userID string) ([]*models.SyncOperation, error) {
	query := `SELECT id, user_id, item_id, type, collection, payload, base_version, retry_count, enqueued_at
		FROM sync_queue WHERE user_id = ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending operations: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncOperation
	for rows.Next() {
		op := &models.SyncOperation{}
		var opType string
		var payload []byte
		if err := rows.Scan(&op.ID, &op.UserID, &op.ItemID, &opType, &op.Collection,
			&payload, &op.BaseVersion, &op.RetryCount, &op.EnqueuedAt); err != nil {
			return nil, err
		}
		op.Type = models.OperationType(opType)
		op.Payload = payload
		result = append(result, op)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, opID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, opID); err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementRetry(ctx context.Context, opID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET retry_count = retry_count + 1 WHERE id = ?`, opID); err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Len(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sync_queue WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return n, nil
}
