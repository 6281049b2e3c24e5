package agentstate

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ekessh/agent-checkpoint-protocol/internal/app/controller"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/branch"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/logic"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/recovery"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
)

// Engine manages the checkpoint history, branches, and logic tree for a
// single agent.
type Engine = controller.Controller

// Re-exported domain types. Callers normally need only these and never
// import the internal packages directly.
type (
	Checkpoint              = checkpoint.Checkpoint
	Status                  = checkpoint.Status
	Branch                  = branch.Branch
	BranchInfo              = controller.BranchInfo
	HistoryEntry            = controller.HistoryEntry
	Diff                    = controller.Diff
	Change                  = controller.Change
	MergeStrategy           = controller.MergeStrategy
	MetricsSnapshot         = controller.MetricsSnapshot
	Operation               = controller.Operation
	OperationExhaustedError = controller.OperationExhaustedError
	Strategy                = recovery.Strategy
	Snapshot                = session.Snapshot
	Sink                    = session.Sink
	Node                    = logic.Node
	Outcome                 = logic.Outcome
)

const (
	StatusActive     = checkpoint.StatusActive
	StatusCommitted  = checkpoint.StatusCommitted
	StatusRolledBack = checkpoint.StatusRolledBack
	StatusAbandoned  = checkpoint.StatusAbandoned
	StatusRecovered  = checkpoint.StatusRecovered

	MergePreferHigherConfidence = controller.MergePreferHigherConfidence
	MergeCombine                = controller.MergeCombine
	MergePreferSource           = controller.MergePreferSource
	MergePreferTarget           = controller.MergePreferTarget

	MainBranch = branch.Main
)

// Sentinel errors surfaced by engine operations.
var (
	ErrCheckpointNotFound = checkpoint.ErrCheckpointNotFound
	ErrCheckpointEvicted  = checkpoint.ErrCheckpointEvicted
	ErrBranchNotFound     = branch.ErrBranchNotFound
	ErrEmptyBranch        = branch.ErrEmptyBranch
)

// Options configures a new Engine.
type Options struct {
	// AgentName identifies the agent whose state is versioned.
	AgentName string `validate:"required,min=1,max=128"`

	// MaxCheckpoints bounds resident history before eviction kicks in.
	// Zero selects the default limit.
	MaxCheckpoints int `validate:"gte=0"`

	// Sink, when set, receives every checkpoint and exported session.
	Sink Sink

	// Strategies are tried in order when a guarded operation fails.
	Strategies []Strategy

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// New builds an Engine from validated options.
func New(opts Options) (*Engine, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}

	var ctrlOpts []controller.Option
	if opts.Sink != nil {
		ctrlOpts = append(ctrlOpts, controller.WithSink(opts.Sink))
	}
	if opts.MaxCheckpoints > 0 {
		ctrlOpts = append(ctrlOpts, controller.WithMaxCheckpoints(opts.MaxCheckpoints))
	}
	if len(opts.Strategies) > 0 {
		ctrlOpts = append(ctrlOpts, controller.WithStrategies(opts.Strategies...))
	}
	if opts.Logger != nil {
		ctrlOpts = append(ctrlOpts, controller.WithLogger(opts.Logger))
	}
	return controller.New(opts.AgentName, ctrlOpts...), nil
}

// Import rebuilds an Engine from a previously exported session snapshot.
func Import(snap *Snapshot, opts Options) (*Engine, error) {
	if snap == nil {
		return nil, fmt.Errorf("invalid engine options: nil snapshot")
	}
	var ctrlOpts []controller.Option
	if opts.Sink != nil {
		ctrlOpts = append(ctrlOpts, controller.WithSink(opts.Sink))
	}
	if opts.MaxCheckpoints > 0 {
		ctrlOpts = append(ctrlOpts, controller.WithMaxCheckpoints(opts.MaxCheckpoints))
	}
	if len(opts.Strategies) > 0 {
		ctrlOpts = append(ctrlOpts, controller.WithStrategies(opts.Strategies...))
	}
	if opts.Logger != nil {
		ctrlOpts = append(ctrlOpts, controller.WithLogger(opts.Logger))
	}
	return controller.ImportSession(snap, ctrlOpts...), nil
}
