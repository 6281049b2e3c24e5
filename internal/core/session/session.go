// Package session defines the full-session snapshot exchanged with
// persistence sinks and the counters the controller maintains.
package session

import (
	"context"
	"time"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/branch"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/logic"
)

// Counters are the controller's running metrics.
type Counters struct {
	TotalCheckpoints int64   `json:"total_checkpoints"`
	TotalRollbacks   int64   `json:"total_rollbacks"`
	TotalRecoveries  int64   `json:"total_recoveries"`
	TotalBranches    int64   `json:"total_branches"`
	ErrorsCaught     int64   `json:"errors_caught"`
	RecoverySeconds  float64 `json:"recovery_seconds"`
}

// Tree is the serializable form of the logic tree.
type Tree struct {
	RootID string                 `json:"root_id,omitempty"`
	Nodes  map[string]*logic.Node `json:"nodes"`
}

// Snapshot carries everything needed to reconstruct a controller exactly:
// identity, the full checkpoint and branch tables, the logic tree and the
// metrics counters.
type Snapshot struct {
	AgentName     string                            `json:"agent_name"`
	CreatedAt     time.Time                         `json:"created_at"`
	CurrentBranch string                            `json:"current_branch"`
	Checkpoints   map[string]*checkpoint.Checkpoint `json:"checkpoints"`
	Branches      map[string]*branch.Branch         `json:"branches"`
	LogicTree     Tree                              `json:"logic_tree"`
	Metrics       Counters                          `json:"metrics"`
}

// Sink is the full persistence collaborator contract: per-checkpoint CRUD
// plus whole-session save/load.
type Sink interface {
	checkpoint.Saver

	// SaveSession persists a full session snapshot.
	SaveSession(ctx context.Context, snap *Snapshot) error

	// LoadSession returns the most recent session snapshot, or nil when
	// none has been saved.
	LoadSession(ctx context.Context) (*Snapshot, error)
}
