// Package docstore defines the boundary to the remote document database
// that holds item metadata and emits change notifications. The vault core
// consumes it through the Store interface; Postgres is the reference
// adapter and Memory backs tests.
package docstore

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// ChangeEvent is one metadata change notification. Delivery is
// at-least-once; consumers must reconcile idempotently.
type ChangeEvent struct {
	OwnerID string
	ItemID  string
	// Item is the document state after the change, nil when Removed.
	Item    *models.VaultItem
	Removed bool
}

// Store is the remote document database boundary.
//
// Writes are idempotent by operation id: retrying a write with the same
// opID must not duplicate effects. Put enforces optimistic concurrency —
// the caller passes the document with the version it based the mutation on,
// and the store rejects with common.ErrConflict when the stored version is
// newer.
type Store interface {
	// Put upserts the document and returns the stored state with its newly
	// assigned version.
	Put(ctx context.Context, item *models.VaultItem, opID string) (*models.VaultItem, error)

	Get(ctx context.Context, ownerID, itemID string) (*models.VaultItem, error)

	// Query lists the owner's documents under parentID (including
	// soft-deleted ones; filtering is the caller's concern).
	Query(ctx context.Context, ownerID, parentID string) ([]*models.VaultItem, error)

	// Delete removes the document permanently.
	Delete(ctx context.Context, ownerID, itemID, opID string) error

	// Ping reports reachability; the sync queue's connectivity watcher polls it.
	Ping(ctx context.Context) error

	// Subscribe streams change events for one owner until the returned stop
	// function is called or ctx is done.
	Subscribe(ctx context.Context, ownerID string) (<-chan ChangeEvent, func(), error)
}
