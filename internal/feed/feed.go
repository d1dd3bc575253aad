// Package feed reconciles the local item cache against remote change
// notifications and emits snapshots and diffs to subscribers.
package feed

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/docstore"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// Filter narrows a subscription to a subset of a folder's items. Zero
// fields match everything.
type Filter struct {
	Type     models.ItemType
	FileType models.FileType
}

// Matches reports whether an item passes the filter. Soft-deleted items are
// always excluded from feeds.
func (f Filter) Matches(item *models.VaultItem) bool {
	if item.IsDeleted {
		return false
	}
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.FileType != "" && item.FileType != f.FileType {
		return false
	}
	return true
}

func (f Filter) key() string {
	return string(f.Type) + "|" + string(f.FileType)
}

// DiffKind tags one entry of a change diff.
type DiffKind string

const (
	DiffAdded    DiffKind = "added"
	DiffModified DiffKind = "modified"
	DiffRemoved  DiffKind = "removed"
)

// Diff describes one item-level change. Position is the item's index in the
// new snapshot, or the old index for removals.
type Diff struct {
	Kind     DiffKind
	Item     *models.VaultItem
	Position int
}

// Handlers receive subscription callbacks. OnUpdate gets the full current
// list on every change; OnChange, when set, additionally gets the diff.
// OnError receives transport failures; the feed never retries on its own,
// re-subscribing is the caller's decision.
type Handlers struct {
	OnUpdate func(items []*models.VaultItem)
	OnChange func(diffs []Diff)
	OnError  func(err error)
}

type subKey struct {
	ownerID  string
	parentID string
	filter   string
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.RWMutex
	cache map[string]*models.VaultItem
	order []*models.VaultItem
}

// Feed owns the logical subscriptions. One subscription exists per
// (owner, parent, filter) combination; an equivalent Subscribe call replaces
// the previous one instead of duplicating it.
type Feed struct {
	store docstore.Store
	log   logging.Logger

	mu   sync.Mutex
	subs map[subKey]*subscription
}

func New(store docstore.Store, log logging.Logger) *Feed {
	return &Feed{
		store: store,
		log:   log.With("component", "feed"),
		subs:  make(map[subKey]*subscription),
	}
}

// Subscribe starts (or replaces) the subscription for the given scope and
// returns an unsubscribe function. The initial snapshot is delivered through
// OnUpdate before any diffs.
func (f *Feed) Subscribe(ctx context.Context, ownerID, parentID string, filter Filter, h Handlers) (func(), error) {
	key := subKey{ownerID: ownerID, parentID: parentID, filter: filter.key()}

	f.mu.Lock()
	if prev, ok := f.subs[key]; ok {
		prev.cancel()
		<-prev.done
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		cancel: cancel,
		done:   make(chan struct{}),
		cache:  make(map[string]*models.VaultItem),
	}
	f.subs[key] = sub
	f.mu.Unlock()

	events, stop, err := f.store.Subscribe(subCtx, ownerID)
	if err != nil {
		f.remove(key, sub)
		cancel()
		close(sub.done)
		return nil, err
	}

	items, err := f.store.Query(subCtx, ownerID, parentID)
	if err != nil {
		stop()
		f.remove(key, sub)
		cancel()
		close(sub.done)
		return nil, err
	}
	for _, item := range items {
		if filter.Matches(item) {
			sub.cache[item.ID] = item
		}
	}
	sub.rebuild()
	if h.OnUpdate != nil {
		h.OnUpdate(sub.snapshot())
	}

	go f.run(subCtx, sub, events, parentID, filter, h)

	unsubscribe := func() {
		cancel()
		stop()
		<-sub.done
		f.remove(key, sub)
	}
	return unsubscribe, nil
}

// Snapshot returns the current reconciled list for an active subscription,
// or nil when no such subscription exists.
func (f *Feed) Snapshot(ownerID, parentID string, filter Filter) []*models.VaultItem {
	f.mu.Lock()
	sub, ok := f.subs[subKey{ownerID: ownerID, parentID: parentID, filter: filter.key()}]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.snapshot()
}

func (f *Feed) remove(key subKey, sub *subscription) {
	f.mu.Lock()
	if f.subs[key] == sub {
		delete(f.subs, key)
	}
	f.mu.Unlock()
}

func (f *Feed) run(ctx context.Context, sub *subscription, events <-chan docstore.ChangeEvent, parentID string, filter Filter, h Handlers) {
	defer close(sub.done)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil && h.OnError != nil {
					// transport gone while the caller still wants updates;
					// re-subscription is up to the caller
					h.OnError(common.ErrUnavailable)
				}
				return
			}
			diffs := sub.apply(ev, parentID, filter)
			if len(diffs) == 0 {
				continue
			}
			if h.OnUpdate != nil {
				h.OnUpdate(sub.snapshot())
			}
			if h.OnChange != nil {
				h.OnChange(diffs)
			}

		case <-ctx.Done():
			return
		}
	}
}

// apply reconciles one event into the cache and returns the resulting diff.
// The cache and ordered snapshot swap together under the lock, so readers
// never observe a half-applied change.
func (s *subscription) apply(ev docstore.ChangeEvent, parentID string, filter Filter) []Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.cache[ev.ItemID]

	inScope := !ev.Removed && ev.Item != nil &&
		ev.Item.ParentID == parentID && filter.Matches(ev.Item)

	switch {
	case inScope && !existed:
		s.cache[ev.ItemID] = ev.Item
		s.rebuild()
		return []Diff{{Kind: DiffAdded, Item: ev.Item, Position: s.position(ev.ItemID)}}

	case inScope && existed:
		s.cache[ev.ItemID] = ev.Item
		s.rebuild()
		return []Diff{{Kind: DiffModified, Item: ev.Item, Position: s.position(ev.ItemID)}}

	case !inScope && existed:
		// removed, moved out of the folder, or filtered out
		oldPos := s.position(ev.ItemID)
		delete(s.cache, ev.ItemID)
		s.rebuild()
		return []Diff{{Kind: DiffRemoved, Item: prev, Position: oldPos}}

	default:
		return nil
	}
}

// rebuild recomputes the ordered snapshot: folders first, then
// case-insensitive name order, ids as the final tie break.
func (s *subscription) rebuild() {
	items := make([]*models.VaultItem, 0, len(s.cache))
	for _, item := range s.cache {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsFolder() != items[j].IsFolder() {
			return items[i].IsFolder()
		}
		ni, nj := strings.ToLower(items[i].Name), strings.ToLower(items[j].Name)
		if ni != nj {
			return ni < nj
		}
		return items[i].ID < items[j].ID
	})
	s.order = items
}

func (s *subscription) position(itemID string) int {
	for i, item := range s.order {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func (s *subscription) snapshot() []*models.VaultItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.VaultItem(nil), s.order...)
}
