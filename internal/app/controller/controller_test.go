package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/branch"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
)

// seedScenario records the usual three-step research session:
// init -> process -> analyze on main.
func seedScenario(t *testing.T, c *Controller) []*checkpoint.Checkpoint {
	t.Helper()
	ctx := context.Background()
	cps := []*checkpoint.Checkpoint{
		c.Checkpoint(ctx, map[string]any{"step": 1}, nil, "initialized", "init"),
		c.Checkpoint(ctx, map[string]any{"step": 2}, nil, "processed input", "process"),
		c.Checkpoint(ctx, map[string]any{"step": 3}, nil, "analysis complete", "analyze"),
	}
	for _, cp := range cps {
		require.NotNil(t, cp)
	}
	return cps
}

func TestCheckpoint_LogicPathGrowth(t *testing.T) {
	c := New("test-agent")
	cps := seedScenario(t, c)

	assert.Equal(t, []string{"init"}, cps[0].LogicPath)
	assert.Equal(t, []string{"init", "process"}, cps[1].LogicPath)
	assert.Equal(t, []string{"init", "process", "analyze"}, cps[2].LogicPath)

	// Parent linkage follows the chain.
	assert.Equal(t, "", cps[0].ParentID)
	assert.Equal(t, cps[0].ID, cps[1].ParentID)
	assert.Equal(t, cps[1].ID, cps[2].ParentID)
}

func TestCheckpoint_RecordsLogicNode(t *testing.T) {
	c := New("test-agent")
	ctx := context.Background()

	cp := c.Checkpoint(ctx, map[string]any{"k": 1}, nil, "did something", "work")
	node, ok := c.Tree().Get(cp.ID)
	require.True(t, ok)
	assert.Equal(t, "did something", node.Description)

	// Neither description nor logic step: no node.
	silent := c.Checkpoint(ctx, map[string]any{"k": 2}, nil, "", "")
	_, ok = c.Tree().Get(silent.ID)
	assert.False(t, ok)
}

func TestRollback_Steps(t *testing.T) {
	t.Run("rollback two steps restores initial state", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		head, err := c.Rollback(2)
		require.NoError(t, err)
		assert.Equal(t, cps[0].ID, head.ID)
		assert.Equal(t, []string{"init"}, head.LogicPath)

		st, err := c.GetState()
		require.NoError(t, err)
		assert.Equal(t, 1, st["step"])
	})

	t.Run("steps beyond history clamp to oldest", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		head, err := c.Rollback(50)
		require.NoError(t, err)
		assert.Equal(t, cps[0].ID, head.ID)
		assert.Equal(t, checkpoint.StatusRecovered, head.Status)
	})

	t.Run("dropped checkpoints are marked rolled back", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		_, err := c.Rollback(1)
		require.NoError(t, err)

		dropped, ok := c.store.Get(cps[2].ID)
		require.True(t, ok)
		assert.Equal(t, checkpoint.StatusRolledBack, dropped.Status)
	})

	t.Run("zero steps returns the head unchanged", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		head, err := c.Rollback(0)
		require.NoError(t, err)
		assert.Equal(t, cps[2].ID, head.ID)
	})

	t.Run("empty branch yields nil", func(t *testing.T) {
		c := New("test-agent")
		head, err := c.Rollback(3)
		assert.NoError(t, err)
		assert.Nil(t, head)
	})
}

func TestRollbackTo(t *testing.T) {
	t.Run("exact checkpoint", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		head, err := c.RollbackTo(cps[1].ID)
		require.NoError(t, err)
		assert.Equal(t, cps[1].ID, head.ID)

		st, err := c.GetState()
		require.NoError(t, err)
		assert.Equal(t, 2, st["step"])
	})

	t.Run("id not on branch", func(t *testing.T) {
		c := New("test-agent")
		seedScenario(t, c)

		_, err := c.RollbackTo("not-a-real-id")
		assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
	})

	t.Run("rolling back to the head is a no-op rollback", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		head, err := c.RollbackTo(cps[2].ID)
		require.NoError(t, err)
		assert.Equal(t, cps[2].ID, head.ID)
	})
}

func TestGetState(t *testing.T) {
	t.Run("empty branch", func(t *testing.T) {
		c := New("test-agent")
		st, err := c.GetState()
		assert.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("returns an owned copy", func(t *testing.T) {
		c := New("test-agent")
		seedScenario(t, c)

		st, err := c.GetState()
		require.NoError(t, err)
		st["step"] = 99

		again, err := c.GetState()
		require.NoError(t, err)
		assert.Equal(t, 3, again["step"])
	})
}

func TestBranch(t *testing.T) {
	ctx := context.Background()

	t.Run("fork shares the prefix up to the fork point", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		b := c.Branch("experiment", cps[1].ID)
		require.NotNil(t, b)
		assert.Equal(t, []string{cps[0].ID, cps[1].ID}, b.Checkpoints)
		assert.Equal(t, branch.Main, b.ParentBranch)
		assert.Equal(t, "experiment", c.Metrics().CurrentBranch)
	})

	t.Run("empty fork id uses the current head", func(t *testing.T) {
		c := New("test-agent")
		cps := seedScenario(t, c)

		b := c.Branch("from-head", "")
		assert.Equal(t, cps[2].ID, b.Tail())
		assert.Len(t, b.Checkpoints, 3)
	})

	t.Run("existing name only switches", func(t *testing.T) {
		c := New("test-agent")
		seedScenario(t, c)

		c.Branch("experiment", "")
		before := c.Metrics().TotalBranches

		again := c.Branch("experiment", "")
		require.NotNil(t, again)
		assert.Equal(t, before, c.Metrics().TotalBranches)
	})

	t.Run("branch work is isolated from main", func(t *testing.T) {
		c := New("test-agent")
		seedScenario(t, c)

		c.Branch("experiment", "")
		c.Checkpoint(ctx, map[string]any{"step": 99}, nil, "experimenting", "experiment")

		_, err := c.SwitchBranch(branch.Main)
		require.NoError(t, err)

		st, err := c.GetState()
		require.NoError(t, err)
		assert.Equal(t, 3, st["step"])

		b, _ := c.branches.Get("experiment")
		assert.Len(t, b.Checkpoints, 4)
		main, _ := c.branches.Get(branch.Main)
		assert.Len(t, main.Checkpoints, 3)
	})

	t.Run("switch to unknown branch", func(t *testing.T) {
		c := New("test-agent")
		_, err := c.SwitchBranch("ghost")
		assert.ErrorIs(t, err, branch.ErrBranchNotFound)
	})
}

func TestListBranches(t *testing.T) {
	c := New("test-agent")
	seedScenario(t, c)
	c.Branch("experiment", "")

	infos := c.ListBranches()
	require.Len(t, infos, 2)

	byName := map[string]BranchInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName["experiment"].IsCurrent)
	assert.False(t, byName[branch.Main].IsCurrent)
	assert.Equal(t, 3, byName[branch.Main].CheckpointCount)
}

func TestMetrics(t *testing.T) {
	c := New("test-agent")
	seedScenario(t, c)
	_, err := c.Rollback(1)
	require.NoError(t, err)
	c.Branch("experiment", "")

	m := c.Metrics()
	assert.Equal(t, int64(3), m.TotalCheckpoints)
	assert.Equal(t, int64(1), m.TotalRollbacks)
	assert.Equal(t, int64(2), m.TotalBranches)
	assert.Equal(t, "experiment", m.CurrentBranch)
	assert.Equal(t, 3, m.CheckpointsInMemory)
}

func TestHistory(t *testing.T) {
	c := New("test-agent")
	cps := seedScenario(t, c)

	t.Run("newest first", func(t *testing.T) {
		entries := c.History("", 10)
		require.Len(t, entries, 3)
		assert.Equal(t, cps[2].ID, entries[0].ID)
		assert.Equal(t, cps[0].ID, entries[2].ID)
		assert.Equal(t, []string{"step"}, entries[0].StateKeys)
	})

	t.Run("limit trims to the trailing entries", func(t *testing.T) {
		entries := c.History("", 2)
		require.Len(t, entries, 2)
		assert.Equal(t, cps[2].ID, entries[0].ID)
		assert.Equal(t, cps[1].ID, entries[1].ID)
	})

	t.Run("unknown branch", func(t *testing.T) {
		assert.Nil(t, c.History("ghost", 10))
	})
}

func TestVisualizeTree(t *testing.T) {
	c := New("test-agent")
	assert.Equal(t, "(empty tree)", c.VisualizeTree())

	seedScenario(t, c)
	out := c.VisualizeTree()
	assert.Contains(t, out, "initialized")
	assert.Contains(t, out, "analysis complete")
}
