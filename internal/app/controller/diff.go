package controller

import (
	"fmt"
	"sort"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// Change records a modified key's before/after values.
type Change struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Diff is the structural comparison of two checkpoint states.
type Diff struct {
	CheckpointA string            `json:"checkpoint_a"`
	CheckpointB string            `json:"checkpoint_b"`
	Added       map[string]any    `json:"added"`
	Removed     map[string]any    `json:"removed"`
	Modified    map[string]Change `json:"modified"`
	Unchanged   []string          `json:"unchanged"`
}

// Diff compares the states of two checkpoints over the union of their keys.
// A key is added when absent from A, removed when absent from B, modified
// when structurally unequal, unchanged otherwise. Comparison is deep
// structural equality, not identity.
func (c *Controller) Diff(idA, idB string) (*Diff, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cpA, okA := c.store.Get(idA)
	if !okA {
		return nil, fmt.Errorf("%w: %s", checkpoint.ErrCheckpointNotFound, idA)
	}
	cpB, okB := c.store.Get(idB)
	if !okB {
		return nil, fmt.Errorf("%w: %s", checkpoint.ErrCheckpointNotFound, idB)
	}

	d := &Diff{
		CheckpointA: idA,
		CheckpointB: idB,
		Added:       map[string]any{},
		Removed:     map[string]any{},
		Modified:    map[string]Change{},
	}

	keys := make(map[string]bool)
	for k := range cpA.State {
		keys[k] = true
	}
	for k := range cpB.State {
		keys[k] = true
	}

	for k := range keys {
		aVal, inA := cpA.State[k]
		bVal, inB := cpB.State[k]
		switch {
		case !inA:
			d.Added[k] = state.CloneValue(bVal)
		case !inB:
			d.Removed[k] = state.CloneValue(aVal)
		case !state.Equal(aVal, bVal):
			d.Modified[k] = Change{Before: state.CloneValue(aVal), After: state.CloneValue(bVal)}
		default:
			d.Unchanged = append(d.Unchanged, k)
		}
	}
	sort.Strings(d.Unchanged)
	return d, nil
}
