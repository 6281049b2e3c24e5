package agentstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid options", func(t *testing.T) {
		eng, err := New(Options{AgentName: "researcher"})
		require.NoError(t, err)
		assert.Equal(t, "researcher", eng.AgentName())
		assert.Equal(t, MainBranch, eng.Metrics().CurrentBranch)
	})

	t.Run("empty agent name is rejected", func(t *testing.T) {
		_, err := New(Options{})
		assert.Error(t, err)
	})

	t.Run("negative max checkpoints is rejected", func(t *testing.T) {
		_, err := New(Options{AgentName: "x", MaxCheckpoints: -1})
		assert.Error(t, err)
	})
}

func TestImport(t *testing.T) {
	eng, err := New(Options{AgentName: "researcher"})
	require.NoError(t, err)
	eng.Checkpoint(context.Background(), map[string]any{"step": 1}, nil, "started", "init")

	restored, err := Import(eng.ExportSession(), Options{AgentName: "researcher"})
	require.NoError(t, err)
	assert.Equal(t, eng.History("", 50), restored.History("", 50))

	t.Run("nil snapshot", func(t *testing.T) {
		_, err := Import(nil, Options{AgentName: "x"})
		assert.Error(t, err)
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(Options{})

	t.Run("get before register", func(t *testing.T) {
		assert.Nil(t, reg.Get("nobody"))
	})

	t.Run("for agent creates on demand", func(t *testing.T) {
		eng, err := reg.ForAgent("writer")
		require.NoError(t, err)
		assert.Equal(t, "writer", eng.AgentName())

		again, err := reg.ForAgent("writer")
		require.NoError(t, err)
		assert.Same(t, eng, again)
	})

	t.Run("register and remove", func(t *testing.T) {
		eng, err := New(Options{AgentName: "critic"})
		require.NoError(t, err)
		reg.Register(eng)
		assert.Same(t, eng, reg.Get("critic"))

		reg.Remove("critic")
		assert.Nil(t, reg.Get("critic"))
	})

	t.Run("names", func(t *testing.T) {
		assert.Contains(t, reg.Names(), "writer")
	})
}

func TestWrap(t *testing.T) {
	ctx := context.Background()
	eng, err := New(Options{AgentName: "guarded"})
	require.NoError(t, err)

	t.Run("success passes result through", func(t *testing.T) {
		guarded := Wrap(eng, func(ctx context.Context, st map[string]any) (map[string]any, error) {
			st["done"] = true
			return st, nil
		}, GuardConfig{Description: "simple task"})

		result, err := guarded(ctx, map[string]any{"task": "t"})
		require.NoError(t, err)
		assert.Equal(t, true, result["done"])
	})

	t.Run("exhaustion surfaces the typed error", func(t *testing.T) {
		guarded := Wrap(eng, func(ctx context.Context, st map[string]any) (map[string]any, error) {
			return nil, errors.New("always fails")
		}, GuardConfig{Description: "doomed task", MaxRetries: 1})

		_, err := guarded(ctx, map[string]any{})
		var exhausted *OperationExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, "doomed task", exhausted.Description)
	})
}
