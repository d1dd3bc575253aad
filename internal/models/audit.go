package models

import "time"

// AuditLogEntry is one immutable record of a vault operation. Entries are
// append-only: no update or delete path exists in code.
type AuditLogEntry struct {
	ID     string
	Action string
	ItemID string
	UserID string

	Timestamp time.Time
	Metadata  map[string]string

	// Hash chains this entry to the previous one (SHA-256 over the previous
	// hash and this entry's payload), making tampering detectable.
	Hash string
}
