package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
)

func newCheckpoint(id, branch string, ts time.Time) *checkpoint.Checkpoint {
	cp := checkpoint.New(map[string]any{"id": id}, nil, nil, "", branch)
	cp.ID = id
	cp.Timestamp = ts
	return cp
}

func TestSink_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(nil)

	cp := newCheckpoint("cp-1", "main", time.Now().UTC())
	require.NoError(t, sink.Save(ctx, cp))

	t.Run("load", func(t *testing.T) {
		loaded, err := sink.Load(ctx, "cp-1")
		require.NoError(t, err)
		assert.Equal(t, cp.ID, loaded.ID)
		assert.Equal(t, cp.BranchName, loaded.BranchName)
		assert.Equal(t, "cp-1", loaded.State["id"])
	})

	t.Run("load missing", func(t *testing.T) {
		_, err := sink.Load(ctx, "ghost")
		assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, sink.Delete(ctx, "cp-1"))
		_, err := sink.Load(ctx, "cp-1")
		assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
	})

	t.Run("delete missing", func(t *testing.T) {
		assert.ErrorIs(t, sink.Delete(ctx, "ghost"), checkpoint.ErrCheckpointNotFound)
	})
}

func TestSink_SaveRejectsInvalid(t *testing.T) {
	sink := NewSink(nil)
	bad := &checkpoint.Checkpoint{ID: "x"}
	assert.Error(t, sink.Save(context.Background(), bad))
}

func TestSink_List(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-1", "main", base)))
	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-2", "main", base.Add(time.Hour))))
	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-3", "feature", base.Add(2*time.Hour))))

	t.Run("newest first", func(t *testing.T) {
		all, err := sink.List(ctx, checkpoint.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "cp-3", all[0].ID)
		assert.Equal(t, "cp-1", all[2].ID)
	})

	t.Run("branch filter", func(t *testing.T) {
		got, err := sink.List(ctx, checkpoint.Filter{Branch: "feature"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "cp-3", got[0].ID)
	})

	t.Run("since filter", func(t *testing.T) {
		since := base.Add(30 * time.Minute)
		got, err := sink.List(ctx, checkpoint.Filter{Since: &since})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := sink.List(ctx, checkpoint.Filter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "cp-3", got[0].ID)
	})
}

func TestSink_Session(t *testing.T) {
	ctx := context.Background()
	sink := NewSink(nil)

	t.Run("empty sink has no session", func(t *testing.T) {
		snap, err := sink.LoadSession(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	t.Run("round trip", func(t *testing.T) {
		snap := &session.Snapshot{AgentName: "tester", CurrentBranch: "main"}
		require.NoError(t, sink.SaveSession(ctx, snap))

		loaded, err := sink.LoadSession(ctx)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, "tester", loaded.AgentName)
	})
}
