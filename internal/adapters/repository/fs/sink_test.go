package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := NewSink(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	return sink
}

func newCheckpoint(id, branch string, ts time.Time) *checkpoint.Checkpoint {
	cp := checkpoint.New(map[string]any{"id": id}, []string{"step"}, nil, "", branch)
	cp.ID = id
	cp.Timestamp = ts
	return cp
}

func TestSink_SaveLoad(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	cp := newCheckpoint("cp-1", "main", time.Now().UTC())
	require.NoError(t, sink.Save(ctx, cp))

	loaded, err := sink.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, loaded.ID)
	assert.Equal(t, cp.BranchName, loaded.BranchName)
	assert.Equal(t, cp.LogicPath, loaded.LogicPath)
	assert.Equal(t, cp.Hash, loaded.Hash)

	_, err = sink.Load(ctx, "ghost")
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
}

func TestSink_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "store")

	first, err := NewSink(root)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, newCheckpoint("cp-1", "main", time.Now().UTC())))

	second, err := NewSink(root)
	require.NoError(t, err)
	loaded, err := second.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-1", loaded.ID)
}

func TestSink_List(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-1", "main", base)))
	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-2", "main", base.Add(time.Hour))))
	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-3", "feature", base.Add(2*time.Hour))))

	t.Run("newest first", func(t *testing.T) {
		all, err := sink.List(ctx, checkpoint.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "cp-3", all[0].ID)
	})

	t.Run("branch and limit", func(t *testing.T) {
		got, err := sink.List(ctx, checkpoint.Filter{Branch: "main", Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "cp-2", got[0].ID)
	})

	t.Run("unreadable documents are skipped", func(t *testing.T) {
		path := filepath.Join(sink.root, "checkpoints", "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		all, err := sink.List(ctx, checkpoint.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestSink_Delete(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-1", "main", time.Now().UTC())))
	require.NoError(t, sink.Delete(ctx, "cp-1"))
	assert.ErrorIs(t, sink.Delete(ctx, "cp-1"), checkpoint.ErrCheckpointNotFound)
}

func TestSink_Session(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	t.Run("absent session", func(t *testing.T) {
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

func TestSink_Clear(t *testing.T) {
	ctx := context.Background()
	sink := newTestSink(t)

	require.NoError(t, sink.Save(ctx, newCheckpoint("cp-1", "main", time.Now().UTC())))
	require.NoError(t, sink.Clear())

	all, err := sink.List(ctx, checkpoint.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
