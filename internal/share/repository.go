// Package share issues and validates share links: capability tokens with
// optional expiry, password and access-count limits, always scoped to one
// item.
package share

import (
	"context"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// Repository persists share links.
type Repository interface {
	// Create stores a new link.
	Create(ctx context.Context, link *models.ShareLink) error

	// Get returns the link or common.ErrNotFound.
	Get(ctx context.Context, shareID string) (*models.ShareLink, error)

	// ConsumeAccess atomically increments the link's access count if the
	// count limit still allows it, reporting whether the access was granted.
	// The check and increment happen in one statement so concurrent accesses
	// can never push the count past the limit.
	ConsumeAccess(ctx context.Context, shareID string) (bool, error)

	// Revoke removes the link.
	Revoke(ctx context.Context, shareID string) error

	// ListByOwner returns all links created by the owner.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.ShareLink, error)
}
