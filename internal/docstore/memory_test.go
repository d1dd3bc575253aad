package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_PutAssignsVersions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	item := &models.VaultItem{ID: "i1", OwnerID: "u1", Name: "a"}
	stored, err := m.Put(ctx, item, "op1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	stored.Name = "b"
	stored2, err := m.Put(ctx, stored, "op2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored2.Version)
}

func TestMemory_PutIsIdempotentByOpID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	item := &models.VaultItem{ID: "i1", OwnerID: "u1", Name: "a"}
	_, err := m.Put(ctx, item, "op1")
	require.NoError(t, err)

	// retrying the same operation must not bump the version again
	stored, err := m.Put(ctx, item, "op1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestMemory_PutConflictOnStaleBaseVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	item := &models.VaultItem{ID: "i1", OwnerID: "u1"}
	stored, err := m.Put(ctx, item, "op1")
	require.NoError(t, err)

	_, err = m.Put(ctx, stored, "op2")
	require.NoError(t, err)

	// a write based on the old version conflicts
	stale := cloneItem(stored)
	stale.Version = 1
	_, err = m.Put(ctx, stale, "op3")
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestMemory_QueryFiltersByOwnerAndParent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, it := range []*models.VaultItem{
		{ID: "a", OwnerID: "u1", ParentID: ""},
		{ID: "b", OwnerID: "u1", ParentID: "a"},
		{ID: "c", OwnerID: "u2", ParentID: ""},
	} {
		_, err := m.Put(ctx, it, "op-"+it.ID)
		require.NoError(t, err)
	}

	got, err := m.Query(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestMemory_SubscribeDeliversChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ch, stop, err := m.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer stop()

	_, err = m.Put(ctx, &models.VaultItem{ID: "i1", OwnerID: "u1"}, "op1")
	require.NoError(t, err)
	_, err = m.Put(ctx, &models.VaultItem{ID: "x", OwnerID: "other"}, "op2")
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, "i1", ev.ItemID)
		assert.False(t, ev.Removed)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	require.NoError(t, m.Delete(ctx, "u1", "i1", "op3"))
	select {
	case ev := <-ch:
		assert.Equal(t, "i1", ev.ItemID)
		assert.True(t, ev.Removed)
	case <-time.After(time.Second):
		t.Fatal("no delete event delivered")
	}
}

func TestMemory_UnreachableFailsEverything(t *testing.T) {
	m := NewMemory()
	m.SetUnreachable(true)
	ctx := context.Background()

	require.Error(t, m.Ping(ctx))
	_, err := m.Put(ctx, &models.VaultItem{ID: "i"}, "op")
	require.Error(t, err)

	m.SetUnreachable(false)
	require.NoError(t, m.Ping(ctx))
}
