package syncq

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_queue (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  type TEXT NOT NULL,
  collection TEXT NOT NULL,
  payload BLOB NOT NULL,
  base_version INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  enqueued_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`)
	require.NoError(t, err)
	return db
}

func newOp(id, userID, itemID string, typ models.OperationType) *models.SyncOperation {
	return &models.SyncOperation{
		ID:         id,
		UserID:     userID,
		ItemID:     itemID,
		Type:       typ,
		Collection: "items",
		Payload:    []byte(`{}`),
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestSQLiteRepository_ListPendingPreservesEnqueueOrder(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		op := newOp(fmt.Sprintf("op-%d", i), "u1", fmt.Sprintf("item-%d", i%2), models.OpUpdate)
		require.NoError(t, repo.Enqueue(ctx, op))
	}

	ops, err := repo.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ops, 5)
	for i, op := range ops {
		assert.Equal(t, fmt.Sprintf("op-%d", i), op.ID)
	}
}

func TestSQLiteRepository_FiltersByUser(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, newOp("a", "u1", "i1", models.OpCreate)))
	require.NoError(t, repo.Enqueue(ctx, newOp("b", "u2", "i2", models.OpCreate)))

	ops, err := repo.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "a", ops[0].ID)

	n, err := repo.Len(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteRepository_DeleteAndRetry(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Enqueue(ctx, newOp("a", "u1", "i1", models.OpDelete)))

	require.NoError(t, repo.IncrementRetry(ctx, "a"))
	require.NoError(t, repo.IncrementRetry(ctx, "a"))

	ops, err := repo.ListPending(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, 2, ops[0].RetryCount)

	require.NoError(t, repo.Delete(ctx, "a"))
	n, err := repo.Len(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
