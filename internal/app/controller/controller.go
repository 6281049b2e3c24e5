// Package controller implements the version controller: the orchestrating
// component composing the checkpoint store, branch table and logic tree
// behind the checkpoint / rollback / branch / merge / diff / history
// surface, plus guarded execution with staged recovery.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/branch"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/logic"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/recovery"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
	"github.com/ekessh/agent-checkpoint-protocol/internal/infrastructure/metrics"
)

// Controller owns one agent's versioned state: checkpoint table, branch
// table, current-branch pointer, logic tree and metrics. It assumes a
// single logical owner; the internal mutex makes the mutating surface safe
// against accidental concurrent use, it does not add parallelism.
type Controller struct {
	mu sync.Mutex

	agentName string
	createdAt time.Time

	store      *checkpoint.Store
	branches   *branch.Table
	tree       *logic.Tree
	sink       session.Sink
	strategies []recovery.Strategy
	logger     *slog.Logger

	counters session.Counters
}

// Option configures a Controller.
type Option func(*config)

type config struct {
	maxCheckpoints int
	sink           session.Sink
	strategies     []recovery.Strategy
	logger         *slog.Logger
}

// WithSink attaches a persistence collaborator; every checkpoint is handed
// to it synchronously after creation.
func WithSink(s session.Sink) Option {
	return func(c *config) { c.sink = s }
}

// WithMaxCheckpoints sets the resident-count eviction limit.
func WithMaxCheckpoints(n int) Option {
	return func(c *config) { c.maxCheckpoints = n }
}

// WithStrategies sets the recovery strategies consulted, in order, by
// guarded execution.
func WithStrategies(s ...recovery.Strategy) Option {
	return func(c *config) { c.strategies = s }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New creates a controller with the main branch selected and no
// checkpoints.
func New(agentName string, opts ...Option) *Controller {
	cfg := config{maxCheckpoints: checkpoint.DefaultMaxResident}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	c := &Controller{
		agentName:  agentName,
		createdAt:  time.Now().UTC(),
		store:      checkpoint.NewStore(cfg.maxCheckpoints),
		branches:   branch.NewTable(),
		tree:       logic.NewTree(),
		sink:       cfg.sink,
		strategies: cfg.strategies,
		logger:     cfg.logger,
		counters:   session.Counters{TotalBranches: 1},
	}
	c.logger.Info("controller initialized", "agent", agentName)
	return c
}

// AgentName returns the agent this controller tracks.
func (c *Controller) AgentName() string { return c.agentName }

// Checkpoint snapshots the supplied state on the current branch.
//
// The parent is the branch tail; the new logic path is the parent's plus
// logicStep when non-empty. A logic node is recorded whenever logicStep or
// description is supplied. The checkpoint is handed to the persistence
// sink when one is configured.
func (c *Controller) Checkpoint(ctx context.Context, st, metadata map[string]any, description, logicStep string) *checkpoint.Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkpointLocked(ctx, st, metadata, description, logicStep)
}

func (c *Controller) checkpointLocked(ctx context.Context, st, metadata map[string]any, description, logicStep string) *checkpoint.Checkpoint {
	br := c.branches.Current()
	parentID := br.Tail()

	var logicPath []string
	if parentID != "" {
		if parent, ok := c.store.Get(parentID); ok {
			logicPath = append(logicPath, parent.LogicPath...)
		}
	}
	if logicStep != "" {
		logicPath = append(logicPath, logicStep)
	}

	cp := checkpoint.New(st, logicPath, metadata, parentID, br.Name)
	br.Checkpoints = append(br.Checkpoints, cp.ID)
	c.store.Insert(cp)

	if logicStep != "" || description != "" {
		desc := description
		if desc == "" {
			desc = logicStep
		}
		c.tree.AddNode(&logic.Node{
			ID:           cp.ID,
			Description:  desc,
			CheckpointID: cp.ID,
			Parent:       parentID,
			Outcome:      logic.OutcomeInProgress,
			Confidence:   cp.Confidence(),
		})
	}

	if c.sink != nil {
		if err := c.sink.Save(ctx, cp); err != nil {
			c.logger.Warn("checkpoint persistence failed", "id", cp.ID, "error", err)
		}
	}

	c.counters.TotalCheckpoints++
	metrics.IncCheckpoints()
	c.logger.Debug("checkpoint created", "id", cp.ID, "branch", br.Name)
	return cp
}

// Rollback drops the trailing steps checkpoints from the current branch.
// steps is clamped so count-based rollback can never empty a non-empty
// branch: the oldest entry always survives. Returns the new head, or nil
// when the branch has no checkpoints at all.
func (c *Controller) Rollback(steps int) (*checkpoint.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	br := c.branches.Current()
	if len(br.Checkpoints) == 0 {
		return nil, nil
	}

	start := time.Now()
	if steps > len(br.Checkpoints)-1 {
		steps = len(br.Checkpoints) - 1
	}
	if steps <= 0 {
		cp, ok := c.store.Get(br.Tail())
		if !ok {
			return nil, checkpoint.ErrCheckpointEvicted
		}
		return cp, nil
	}

	cut := len(br.Checkpoints) - steps
	c.abandon(br.Checkpoints[cut:])
	br.Checkpoints = br.Checkpoints[:cut]

	return c.finishRollback(br, start)
}

// RollbackTo rolls the current branch back to a specific checkpoint id.
// The id must be on this branch's chain; anything after it is marked
// RolledBack and its logic node Abandoned.
func (c *Controller) RollbackTo(id string) (*checkpoint.Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	br := c.branches.Current()
	if len(br.Checkpoints) == 0 {
		return nil, nil
	}

	start := time.Now()
	idx := br.IndexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s not on branch %q", checkpoint.ErrCheckpointNotFound, id, br.Name)
	}

	c.abandon(br.Checkpoints[idx+1:])
	br.Checkpoints = br.Checkpoints[:idx+1]

	return c.finishRollback(br, start)
}

// abandon marks dropped checkpoints RolledBack and their logic nodes
// Abandoned. Evicted ids are tolerated.
func (c *Controller) abandon(ids []string) {
	for _, id := range ids {
		c.store.SetStatus(id, checkpoint.StatusRolledBack)
		c.tree.SetOutcome(id, logic.OutcomeAbandoned)
	}
}

func (c *Controller) finishRollback(br *branch.Branch, start time.Time) (*checkpoint.Checkpoint, error) {
	if len(br.Checkpoints) == 0 {
		return nil, nil
	}
	tail := br.Tail()
	c.store.SetStatus(tail, checkpoint.StatusRecovered)

	elapsed := time.Since(start)
	c.counters.TotalRollbacks++
	c.counters.RecoverySeconds += elapsed.Seconds()
	metrics.IncRollbacks()
	metrics.AddRecoveryNanos(elapsed.Nanoseconds())

	cp, ok := c.store.Get(tail)
	if !ok {
		return nil, checkpoint.ErrCheckpointEvicted
	}
	c.logger.Info("rolled back", "to", cp.ID, "branch", br.Name)
	return cp, nil
}

// GetState returns a deep copy of the current branch's head state. A nil
// map with nil error means the branch is empty; a dangling (evicted) head
// id reports ErrCheckpointEvicted.
func (c *Controller) GetState() (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() (map[string]any, error) {
	br := c.branches.Current()
	tail := br.Tail()
	if tail == "" {
		return nil, nil
	}
	cp, ok := c.store.Get(tail)
	if !ok {
		return nil, fmt.Errorf("%w: branch %q head %s", checkpoint.ErrCheckpointEvicted, br.Name, tail)
	}
	return state.Clone(cp.State), nil
}

// Branch creates and switches to a new branch forked from fromCheckpointID,
// or from the current branch's head when empty. An existing name just
// switches — idempotent, no new branch, no counter bump. The new branch
// shares the current chain's prefix up to the fork id; a fork id not on the
// current chain starts the branch as that single id.
func (c *Controller) Branch(name, fromCheckpointID string) *branch.Branch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.branchLocked(name, fromCheckpointID)
}

func (c *Controller) branchLocked(name, fromCheckpointID string) *branch.Branch {
	if existing, ok := c.branches.Get(name); ok {
		_ = c.branches.Switch(name)
		c.logger.Debug("branch exists, switched", "name", name)
		return existing
	}

	current := c.branches.Current()
	forkID := fromCheckpointID
	if forkID == "" {
		forkID = current.Tail()
	}

	nb := branch.New(name, current.Name, forkID)
	if forkID != "" {
		if idx := current.IndexOf(forkID); idx >= 0 {
			nb.Checkpoints = append(nb.Checkpoints, current.Checkpoints[:idx+1]...)
		} else {
			nb.Checkpoints = []string{forkID}
		}
	}

	c.branches.Register(nb)
	_ = c.branches.Switch(name)
	c.counters.TotalBranches++
	metrics.IncBranches()
	c.logger.Info("branch created", "name", name, "from", current.Name, "fork", forkID)
	return nb
}

// SwitchBranch moves the current-branch pointer only.
func (c *Controller) SwitchBranch(name string) (*branch.Branch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.branches.Switch(name); err != nil {
		return nil, fmt.Errorf("%w: %q", branch.ErrBranchNotFound, name)
	}
	br, _ := c.branches.Get(name)
	return br, nil
}

// BranchInfo summarizes one branch for listings.
type BranchInfo struct {
	Name            string `json:"name"`
	IsCurrent       bool   `json:"is_current"`
	CheckpointCount int    `json:"checkpoint_count"`
	Parent          string `json:"parent,omitempty"`
	IsActive        bool   `json:"is_active"`
}

// ListBranches reports every branch and which one is selected.
func (c *Controller) ListBranches() []BranchInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.branches.CurrentName()
	var infos []BranchInfo
	for _, name := range c.branches.Names() {
		br, _ := c.branches.Get(name)
		infos = append(infos, BranchInfo{
			Name:            name,
			IsCurrent:       name == current,
			CheckpointCount: len(br.Checkpoints),
			Parent:          br.ParentBranch,
			IsActive:        br.IsActive,
		})
	}
	return infos
}

// VisualizeTree renders the logic tree as indented text.
func (c *Controller) VisualizeTree() string {
	return c.tree.Visualize()
}

// Tree exposes the logic tree for read-side inspection.
func (c *Controller) Tree() *logic.Tree {
	return c.tree
}

// MetricsSnapshot is the read-only counters view.
type MetricsSnapshot struct {
	session.Counters
	CurrentBranch       string   `json:"current_branch"`
	Branches            []string `json:"branches"`
	CheckpointsInMemory int      `json:"checkpoints_in_memory"`
}

// Metrics returns a snapshot of the running counters.
func (c *Controller) Metrics() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MetricsSnapshot{
		Counters:            c.counters,
		CurrentBranch:       c.branches.CurrentName(),
		Branches:            c.branches.Names(),
		CheckpointsInMemory: c.store.Len(),
	}
}
