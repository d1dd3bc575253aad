package models

import (
	"encoding/json"
	"time"
)

// OperationType classifies a queued mutation.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
	OpMove   OperationType = "move"
)

// SyncOperation is a durable pending mutation. It is created when a write
// cannot reach the remote store, removed on confirmed success, retried with
// backoff on retryable failure, and dropped with a surfaced failure event
// after the retry ceiling.
type SyncOperation struct {
	ID         string
	UserID     string
	ItemID     string
	Type       OperationType
	Collection string
	Payload    json.RawMessage

	// BaseVersion is the item version the mutation was computed against.
	// A newer remote version means the operation conflicts.
	BaseVersion int64

	RetryCount int
	EnqueuedAt time.Time
}
