package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/docstore"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

// EventKind classifies processor outcomes surfaced to the caller.
type EventKind int

const (
	// EventApplied reports a confirmed remote write.
	EventApplied EventKind = iota
	// EventConflict reports an operation rejected because the remote item
	// was newer; never auto-resolved.
	EventConflict
	// EventFailed reports a terminal failure after exhausting retries (or a
	// non-retryable error). The operation is carried for user-visible
	// recovery.
	EventFailed
)

type Event struct {
	Kind EventKind
	Op   *models.SyncOperation
	Err  error
}

// Options tune the processor; zero values fall back to defaults.
type Options struct {
	// Concurrency caps simultaneous drains of distinct items.
	Concurrency int64
	// MaxRetries is the per-operation retry ceiling.
	MaxRetries uint64
	// BackoffBase seeds the exponential backoff.
	BackoffBase time.Duration
}

func (o *Options) withDefaults() {
	if o.Concurrency == 0 {
		o.Concurrency = 3
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
}

// Processor drains the queue against the remote document store. Operations
// for the same item apply strictly in enqueue order; distinct items drain
// concurrently up to the configured cap.
type Processor struct {
	repo   Repository
	store  docstore.Store
	log    logging.Logger
	opts   Options
	events chan Event

	// drainMu keeps drains single-flight; overlapping triggers coalesce.
	drainMu sync.Mutex
}

func NewProcessor(repo Repository, store docstore.Store, log logging.Logger, opts Options) *Processor {
	opts.withDefaults()
	return &Processor{
		repo:   repo,
		store:  store,
		log:    log.With("component", "syncq"),
		opts:   opts,
		events: make(chan Event, 128),
	}
}

// Events exposes applied/conflict/failure notifications.
func (p *Processor) Events() <-chan Event { return p.events }

// Enqueue persists a mutation for later replay.
func (p *Processor) Enqueue(ctx context.Context, op *models.SyncOperation) error {
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}
	if err := p.repo.Enqueue(ctx, op); err != nil {
		return err
	}
	p.log.Info(ctx, "operation queued", "op_id", op.ID, "type", op.Type, "item_id", op.ItemID)
	return nil
}

// ProcessAll drains every pending operation for userID.
func (p *Processor) ProcessAll(ctx context.Context, userID string) error {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	ops, err := p.repo.ListPending(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list pending operations: %w", err)
	}
	if len(ops) == 0 {
		return nil
	}

	// group per item, preserving enqueue order within each group
	var order []string
	groups := make(map[string][]*models.SyncOperation)
	for _, op := range ops {
		if _, ok := groups[op.ItemID]; !ok {
			order = append(order, op.ItemID)
		}
		groups[op.ItemID] = append(groups[op.ItemID], op)
	}

	sem := semaphore.NewWeighted(p.opts.Concurrency)
	var wg sync.WaitGroup
	for _, itemID := range order {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ops []*models.SyncOperation) {
			defer wg.Done()
			defer sem.Release(1)
			p.drainItem(ctx, ops)
		}(groups[itemID])
	}
	wg.Wait()
	return ctx.Err()
}

// drainItem applies one item's operations in order, stopping at the first
// operation that stays queued so conflicting edits are never reordered.
func (p *Processor) drainItem(ctx context.Context, ops []*models.SyncOperation) {
	for _, op := range ops {
		if !p.processOne(ctx, op) {
			return
		}
	}
}

// processOne attempts a single operation and reports whether the drain of
// this item may continue.
func (p *Processor) processOne(ctx context.Context, op *models.SyncOperation) bool {
	var remaining uint64
	if uint64(op.RetryCount) < p.opts.MaxRetries {
		remaining = p.opts.MaxRetries - uint64(op.RetryCount)
	}
	backoff := retry.WithMaxRetries(remaining, retry.NewExponential(p.opts.BackoffBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.apply(ctx, op)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			op.RetryCount++
			if rerr := p.repo.IncrementRetry(ctx, op.ID); rerr != nil {
				p.log.Warn(ctx, "failed to persist retry count", "op_id", op.ID, "err", rerr)
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		if derr := p.repo.Delete(ctx, op.ID); derr != nil {
			p.log.Error(ctx, "failed to dequeue applied operation", "op_id", op.ID, "err", derr)
		}
		p.emit(Event{Kind: EventApplied, Op: op})
		return true
	}

	if errors.Is(err, common.ErrConflict) {
		// surfaced for explicit resolution, never last-write-wins
		if derr := p.repo.Delete(ctx, op.ID); derr != nil {
			p.log.Error(ctx, "failed to dequeue conflicting operation", "op_id", op.ID, "err", derr)
		}
		p.emit(Event{Kind: EventConflict, Op: op, Err: err})
		return false
	}

	if isRetryable(err) && uint64(op.RetryCount) < p.opts.MaxRetries {
		// still retryable; leave queued for the next drain
		p.log.Warn(ctx, "operation deferred", "op_id", op.ID, "retries", op.RetryCount, "err", err)
		return false
	}

	// retry ceiling exceeded or non-retryable: terminal
	if derr := p.repo.Delete(ctx, op.ID); derr != nil {
		p.log.Error(ctx, "failed to dequeue failed operation", "op_id", op.ID, "err", derr)
	}
	p.emit(Event{Kind: EventFailed, Op: op, Err: err})
	return false
}

// apply executes one operation against the remote store. The operation id
// doubles as the idempotency key, so replays after a crash are safe.
func (p *Processor) apply(ctx context.Context, op *models.SyncOperation) error {
	switch op.Type {
	case models.OpCreate, models.OpUpdate, models.OpMove:
		item := &models.VaultItem{}
		if err := json.Unmarshal(op.Payload, item); err != nil {
			return fmt.Errorf("malformed operation payload: %w", err)
		}
		item.Version = op.BaseVersion
		_, err := p.store.Put(ctx, item, op.ID)
		return err
	case models.OpDelete:
		return p.store.Delete(ctx, op.UserID, op.ItemID, op.ID)
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func (p *Processor) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		// the events channel is advisory; a full buffer must not stall the drain
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, common.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		storage.IsRetryable(err)
}
