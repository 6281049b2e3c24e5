package controller

import (
	"context"
	"fmt"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/branch"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// MergeStrategy selects how two branch states are combined.
type MergeStrategy string

const (
	// MergePreferHigherConfidence keeps the state whose head checkpoint
	// carries the higher metadata confidence; ties favor the source.
	MergePreferHigherConfidence MergeStrategy = "prefer_higher_confidence"
	// MergeCombine shallow-merges: target first, source top-level keys win.
	MergeCombine MergeStrategy = "combine"
	// MergePreferSource takes the source state verbatim.
	MergePreferSource MergeStrategy = "prefer_source"
	// MergePreferTarget keeps the current branch's state unchanged.
	MergePreferTarget MergeStrategy = "prefer_target"
)

// Merge combines the source branch's head state into the current branch
// according to strategy and records exactly one new checkpoint on the
// current branch. The source branch is never mutated or removed. An
// unrecognized strategy behaves like MergePreferTarget.
func (c *Controller) Merge(ctx context.Context, sourceBranch string, strategy MergeStrategy) (*checkpoint.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	source, ok := c.branches.Get(sourceBranch)
	if !ok {
		return nil, fmt.Errorf("%w: %q", branch.ErrBranchNotFound, sourceBranch)
	}
	if len(source.Checkpoints) == 0 {
		return nil, fmt.Errorf("%w: %q", branch.ErrEmptyBranch, sourceBranch)
	}

	sourceCP, ok := c.store.Get(source.Tail())
	if !ok {
		return nil, fmt.Errorf("%w: source head %s", checkpoint.ErrCheckpointEvicted, source.Tail())
	}

	// A headless target merges against an empty map rather than failing.
	targetState, err := c.stateLocked()
	if err != nil {
		return nil, err
	}
	if targetState == nil {
		targetState = map[string]any{}
	}

	var merged map[string]any
	switch strategy {
	case MergePreferHigherConfidence:
		var targetCP *checkpoint.Checkpoint
		if tail := c.branches.Current().Tail(); tail != "" {
			targetCP, _ = c.store.Get(tail)
		}
		if sourceCP.Confidence() >= targetCP.Confidence() {
			merged = state.Clone(sourceCP.State)
		} else {
			merged = targetState
		}
	case MergeCombine:
		merged = targetState
		for k, v := range state.Clone(sourceCP.State) {
			merged[k] = v
		}
	case MergePreferSource:
		merged = state.Clone(sourceCP.State)
	default:
		merged = targetState
	}

	cp := c.checkpointLocked(ctx, merged,
		map[string]any{
			"merged_from":       sourceBranch,
			"merge_strategy":    string(strategy),
			"source_checkpoint": sourceCP.ID,
		},
		fmt.Sprintf("Merged %q into %q", sourceBranch, c.branches.CurrentName()),
		"merge:"+sourceBranch,
	)
	c.logger.Info("merged branch", "source", sourceBranch, "target", c.branches.CurrentName(), "strategy", string(strategy))
	return cp, nil
}
