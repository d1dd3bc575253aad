package docstore

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// Memory is an in-memory Store used by tests and offline development. It
// implements the same idempotency and versioning contract as the Postgres
// adapter.
type Memory struct {
	mu         sync.Mutex
	docs       map[string]*models.VaultItem // itemID -> doc
	appliedOps map[string]struct{}
	subs       map[int]*memSub
	nextSub    int

	// Unreachable makes every call fail, simulating lost connectivity.
	Unreachable bool
}

type memSub struct {
	ownerID string
	ch      chan ChangeEvent
}

func NewMemory() *Memory {
	return &Memory{
		docs:       make(map[string]*models.VaultItem),
		appliedOps: make(map[string]struct{}),
		subs:       make(map[int]*memSub),
	}
}

func (m *Memory) Put(ctx context.Context, item *models.VaultItem, opID string) (*models.VaultItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return nil, common.ErrUnavailable
	}

	if _, done := m.appliedOps[opID]; done {
		return cloneItem(m.docs[item.ID]), nil
	}

	stored, ok := m.docs[item.ID]
	if ok && stored.Version > item.Version {
		return nil, common.ErrConflict
	}

	next := cloneItem(item)
	next.Version++
	m.docs[item.ID] = next
	m.appliedOps[opID] = struct{}{}

	m.broadcast(ChangeEvent{OwnerID: next.OwnerID, ItemID: next.ID, Item: cloneItem(next)})
	return cloneItem(next), nil
}

func (m *Memory) Get(ctx context.Context, ownerID, itemID string) (*models.VaultItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return nil, common.ErrUnavailable
	}
	doc, ok := m.docs[itemID]
	if !ok || doc.OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	return cloneItem(doc), nil
}

func (m *Memory) Query(ctx context.Context, ownerID, parentID string) ([]*models.VaultItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return nil, common.ErrUnavailable
	}
	var result []*models.VaultItem
	for _, doc := range m.docs {
		if doc.OwnerID == ownerID && doc.ParentID == parentID {
			result = append(result, cloneItem(doc))
		}
	}
	return result, nil
}

func (m *Memory) Delete(ctx context.Context, ownerID, itemID, opID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return common.ErrUnavailable
	}
	if _, done := m.appliedOps[opID]; done {
		return nil
	}
	doc, ok := m.docs[itemID]
	if !ok || doc.OwnerID != ownerID {
		return common.ErrNotFound
	}
	delete(m.docs, itemID)
	m.appliedOps[opID] = struct{}{}
	m.broadcast(ChangeEvent{OwnerID: ownerID, ItemID: itemID, Removed: true})
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return common.ErrUnavailable
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, ownerID string) (<-chan ChangeEvent, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return nil, nil, common.ErrUnavailable
	}

	id := m.nextSub
	m.nextSub++
	sub := &memSub{ownerID: ownerID, ch: make(chan ChangeEvent, 64)}
	m.subs[id] = sub

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(sub.ch)
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	return sub.ch, stop, nil
}

// SetUnreachable toggles simulated connectivity loss.
func (m *Memory) SetUnreachable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unreachable = v
}

func (m *Memory) broadcast(ev ChangeEvent) {
	for _, sub := range m.subs {
		if sub.ownerID != ev.OwnerID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// slow consumer drops events; delivery is at-least-once at the
			// system level, not per subscriber
		}
	}
}

func cloneItem(item *models.VaultItem) *models.VaultItem {
	if item == nil {
		return nil
	}
	c := *item
	if item.SharedWith != nil {
		c.SharedWith = append([]models.Grantee(nil), item.SharedWith...)
	}
	return &c
}
