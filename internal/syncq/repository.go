// Package syncq implements the durable offline operation queue: FIFO per
// item, bounded parallelism across items, exponential backoff on retryable
// failures and explicit conflict surfacing.
package syncq

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// Repository persists queued operations in enqueue order.
type Repository interface {
	// Enqueue appends an operation to the user's queue.
	Enqueue(ctx context.Context, op *models.SyncOperation) error

	// ListPending returns the user's operations in enqueue order.
	ListPending(ctx context.Context, userID string) ([]*models.SyncOperation, error)

	// Delete removes a confirmed or terminally failed operation.
	Delete(ctx context.Context, opID string) error

	// IncrementRetry bumps the persisted retry counter.
	IncrementRetry(ctx context.Context, opID string) error

	// Len returns the number of queued operations for the user.
	Len(ctx context.Context, userID string) (int, error)
}
