package checkpoint

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeCheckpoint(i int, status Status) *Checkpoint {
	cp := New(map[string]any{"i": i}, nil, nil, "", "main")
	cp.ID = fmt.Sprintf("cp-%03d", i)
	cp.Timestamp = time.Unix(int64(1000+i), 0).UTC()
	cp.Status = status
	return cp
}

func TestStore_InsertGet(t *testing.T) {
	store := NewStore(10)
	cp := makeCheckpoint(1, StatusActive)
	store.Insert(cp)

	got, ok := store.Get(cp.ID)
	require.True(t, ok)
	assert.Equal(t, cp.ID, got.ID)
	assert.Equal(t, 1, store.Len())

	_, ok = store.Get("missing")
	assert.False(t, ok)
}

func TestStore_SetStatus(t *testing.T) {
	store := NewStore(10)
	cp := makeCheckpoint(1, StatusActive)
	store.Insert(cp)

	store.SetStatus(cp.ID, StatusRolledBack)
	got, _ := store.Get(cp.ID)
	assert.Equal(t, StatusRolledBack, got.Status)

	// Missing ids are ignored.
	assert.NotPanics(t, func() { store.SetStatus("missing", StatusCommitted) })
}

func TestStore_EvictsOldestFinalized(t *testing.T) {
	store := NewStore(3)
	for i := 1; i <= 5; i++ {
		store.Insert(makeCheckpoint(i, StatusCommitted))
	}

	assert.Equal(t, 3, store.Len())

	// The two oldest finalized entries are gone.
	_, ok := store.Get("cp-001")
	assert.False(t, ok)
	_, ok = store.Get("cp-002")
	assert.False(t, ok)
	_, ok = store.Get("cp-005")
	assert.True(t, ok)
}

func TestStore_NeverEvictsActiveOrRecovered(t *testing.T) {
	store := NewStore(2)
	store.Insert(makeCheckpoint(1, StatusActive))
	store.Insert(makeCheckpoint(2, StatusRecovered))
	store.Insert(makeCheckpoint(3, StatusActive))
	store.Insert(makeCheckpoint(4, StatusActive))

	// No eviction candidates exist, so the store stays over its limit.
	assert.Equal(t, 4, store.Len())

	store.Insert(makeCheckpoint(5, StatusCommitted))
	store.Insert(makeCheckpoint(6, StatusCommitted))

	_, ok := store.Get("cp-001")
	assert.True(t, ok)
	_, ok = store.Get("cp-002")
	assert.True(t, ok)
}

func TestStore_AllReturnsCopies(t *testing.T) {
	store := NewStore(10)
	store.Insert(makeCheckpoint(1, StatusActive))

	all := store.All()
	require.Len(t, all, 1)
	all["cp-001"].State["i"] = 99

	got, _ := store.Get("cp-001")
	assert.Equal(t, 1, got.State["i"])
}

func TestStore_Restore(t *testing.T) {
	store := NewStore(10)
	store.Insert(makeCheckpoint(1, StatusActive))

	replacement := map[string]*Checkpoint{
		"cp-007": makeCheckpoint(7, StatusCommitted),
	}
	store.Restore(replacement)

	assert.Equal(t, 1, store.Len())
	_, ok := store.Get("cp-001")
	assert.False(t, ok)
	_, ok = store.Get("cp-007")
	assert.True(t, ok)
}
