// Package vault is the API surface the UI talks to. The Service facade ties
// together the key manager, storage router, sync queue, document store,
// sharing and audit components.
package vault

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// ItemRepository is the local item cache: the authoritative listing source
// while offline, reconciled against the remote store by the change feed and
// the sync queue.
type ItemRepository interface {
	// Save upserts an item.
	Save(ctx context.Context, item *models.VaultItem) error

	// Get returns the item or common.ErrNotFound. Soft-deleted items are
	// still returned; filtering is the caller's concern.
	Get(ctx context.Context, ownerID, itemID string) (*models.VaultItem, error)

	// ListByParent returns the direct children of parentID, excluding
	// soft-deleted items unless includeDeleted is set.
	ListByParent(ctx context.Context, ownerID, parentID string, includeDeleted bool) ([]*models.VaultItem, error)

	// Delete removes the item row permanently.
	Delete(ctx context.Context, ownerID, itemID string) error
}
