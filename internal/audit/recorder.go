package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/google/uuid"
)

// Recorder appends audit entries asynchronously. Record never blocks and
// never fails the calling operation: entries go through a buffered channel
// to a single writer goroutine, and write failures are logged rather than
// propagated. The single writer also makes the per-user hash chain race
// free.
type Recorder struct {
	repo Repository
	log  logging.Logger

	entries chan *models.AuditLogEntry
	done    chan struct{}
	closing sync.Once

	// lastHash caches each user's chain head between appends.
	lastHash map[string]string
}

func NewRecorder(repo Repository, log logging.Logger) *Recorder {
	r := &Recorder{
		repo:     repo,
		log:      log.With("component", "audit"),
		entries:  make(chan *models.AuditLogEntry, 256),
		done:     make(chan struct{}),
		lastHash: make(map[string]string),
	}
	go r.writeLoop()
	return r
}

// Record enqueues an entry. A full buffer drops the entry with a logged
// warning instead of stalling the vault operation that produced it.
func (r *Recorder) Record(ctx context.Context, userID, action, itemID string, metadata map[string]string) {
	entry := &models.AuditLogEntry{
		ID:        uuid.NewString(),
		Action:    action,
		ItemID:    itemID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	select {
	case r.entries <- entry:
	default:
		r.log.Warn(ctx, "audit buffer full, entry dropped", "action", action, "item_id", itemID)
	}
}

// Query reads entries; there is no corresponding mutation path.
func (r *Recorder) Query(ctx context.Context, userID string, filters Filters) ([]*models.AuditLogEntry, error) {
	return r.repo.Query(ctx, userID, filters)
}

// Close flushes buffered entries and stops the writer.
func (r *Recorder) Close() {
	r.closing.Do(func() { close(r.entries) })
	<-r.done
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	ctx := context.Background()

	for entry := range r.entries {
		prev, ok := r.lastHash[entry.UserID]
		if !ok {
			stored, err := r.repo.LastHash(ctx, entry.UserID)
			if err != nil {
				r.log.Error(ctx, "failed to load audit chain head", "err", err)
				continue
			}
			prev = stored
		}

		entry.Hash = chainHash(prev, entry)
		if err := r.repo.Append(ctx, entry); err != nil {
			r.log.Error(ctx, "failed to append audit entry", "action", entry.Action, "err", err)
			continue
		}
		r.lastHash[entry.UserID] = entry.Hash
	}
}

// chainHash computes SHA-256 over the previous hash and the entry's fields.
// Metadata keys are folded in sorted order so the digest is deterministic.
func chainHash(prev string, entry *models.AuditLogEntry) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte(entry.ID))
	h.Write([]byte(entry.Action))
	h.Write([]byte(entry.ItemID))
	h.Write([]byte(entry.UserID))
	h.Write([]byte(entry.Timestamp.Format(time.RFC3339Nano)))

	keys := make([]string, 0, len(entry.Metadata))
	for k := range entry.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte(entry.Metadata[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify walks a user's full log and reports whether the hash chain is
// intact.
func Verify(ctx context.Context, repo Repository, userID string) (bool, error) {
	entries, err := repo.Query(ctx, userID, Filters{})
	if err != nil {
		return false, err
	}
	prev := ""
	for _, entry := range entries {
		if chainHash(prev, entry) != entry.Hash {
			return false, nil
		}
		prev = entry.Hash
	}
	return true, nil
}
