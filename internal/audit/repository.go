// Package audit keeps an append-only record of vault operations. Entries
// are hash-chained so after-the-fact tampering is detectable, and no update
// or delete path exists.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filevault/internal/models"
)

// Filters narrow a query. Zero fields match everything.
type Filters struct {
	Action string
	ItemID string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// Repository persists audit entries. Append and read are the only
// operations; immutability is an API property, not a storage constraint.
type Repository interface {
	// Append stores a new entry.
	Append(ctx context.Context, entry *models.AuditLogEntry) error

	// LastHash returns the newest entry's hash for the user, or "" when the
	// log is empty.
	LastHash(ctx context.Context, userID string) (string, error)

	// Query returns the user's entries matching the filters, oldest first.
	Query(ctx context.Context, userID string, filters Filters) ([]*models.AuditLogEntry, error)
}
