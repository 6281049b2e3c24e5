package controller

import (
	"context"
	"log/slog"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/recovery"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
)

// ExportSession captures the entire session: identity, checkpoint table,
// branch table, logic tree and metrics. The snapshot is deep-copied and
// sufficient for exact reconstruction via ImportSession.
func (c *Controller) ExportSession() *session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &session.Snapshot{
		AgentName:     c.agentName,
		CreatedAt:     c.createdAt,
		CurrentBranch: c.branches.CurrentName(),
		Checkpoints:   c.store.All(),
		Branches:      c.branches.All(),
		LogicTree: session.Tree{
			RootID: c.tree.RootID(),
			Nodes:  c.tree.Nodes(),
		},
		Metrics: c.counters,
	}
}

// SaveSession hands the exported session to the persistence sink.
func (c *Controller) SaveSession(ctx context.Context) error {
	snap := c.ExportSession()
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.SaveSession(ctx, snap)
}

// ImportOption configures the controller reconstructed from a snapshot.
type ImportOption = Option

// ImportSession reconstructs a controller from an exported snapshot. The
// restored controller's history output is element-wise equal to the
// original's.
func ImportSession(snap *session.Snapshot, opts ...ImportOption) *Controller {
	c := New(snap.AgentName, opts...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdAt = snap.CreatedAt
	c.counters = snap.Metrics
	c.store.Restore(snap.Checkpoints)
	c.branches.Restore(snap.Branches, snap.CurrentBranch)
	c.tree.Restore(snap.LogicTree.Nodes, snap.LogicTree.RootID)
	return c
}

// LoadSession restores the most recent session from a sink, or returns
// (nil, nil) when the sink holds none.
func LoadSession(ctx context.Context, sink session.Sink, logger *slog.Logger, strategies ...recovery.Strategy) (*Controller, error) {
	snap, err := sink.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	opts := []Option{WithSink(sink), WithStrategies(strategies...)}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	return ImportSession(snap, opts...), nil
}

// ResolveCheckpoint looks a checkpoint up in the live store first, then in
// the persistence sink. Used by presentation layers inspecting audit
// history that may have been evicted from memory.
func (c *Controller) ResolveCheckpoint(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	if cp, ok := c.store.Get(id); ok {
		return cp.Clone(), nil
	}
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink == nil {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return sink.Load(ctx, id)
}
