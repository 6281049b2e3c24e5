// Package checkpoint provides the core checkpoint domain entities:
// the immutable snapshot record, content hashing, the in-memory store
// with its eviction policy, and the persistence sink interface.
package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// Status tracks a checkpoint through its lifecycle.
type Status string

const (
	StatusActive     Status = "active"      // current working state
	StatusCommitted  Status = "committed"   // finalized, eligible for eviction
	StatusRolledBack Status = "rolled_back" // dropped from a branch chain by rollback
	StatusAbandoned  Status = "abandoned"   // part of an abandoned path
	StatusRecovered  Status = "recovered"   // restored as the head after a rollback
)

// Checkpoint is a snapshot of agent state at one reasoning step.
//
// Once created, State, LogicPath, Hash and ParentID never change; only
// Status mutates, reflecting rollback and recovery transitions. State is
// an owned deep copy and never aliases caller storage.
type Checkpoint struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	State        map[string]any `json:"state"`
	LogicPath    []string       `json:"logic_path"`
	Metadata     map[string]any `json:"metadata"`
	ParentID     string         `json:"parent_id,omitempty"`
	BranchName   string         `json:"branch_name"`
	Status       Status         `json:"status"`
	ErrorContext map[string]any `json:"error_context,omitempty"`
	Hash         string         `json:"hash"`
}

// New constructs a checkpoint with an owned deep copy of the supplied state
// and a content hash over its canonical form. The short uuid id keeps logs
// and tree renderings readable.
func New(st map[string]any, logicPath []string, metadata map[string]any, parentID, branchName string) *Checkpoint {
	owned := state.Clone(st)
	if owned == nil {
		owned = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	path := make([]string, len(logicPath))
	copy(path, logicPath)

	return &Checkpoint{
		ID:         uuid.NewString()[:12],
		Timestamp:  time.Now().UTC(),
		State:      owned,
		LogicPath:  path,
		Metadata:   metadata,
		ParentID:   parentID,
		BranchName: branchName,
		Status:     StatusActive,
		Hash:       ContentHash(owned),
	}
}

// Validate ensures checkpoint integrity before persistence.
func (c *Checkpoint) Validate() error {
	if c == nil || c.ID == "" {
		return ErrInvalidCheckpointID
	}
	if c.BranchName == "" {
		return ErrInvalidBranchName
	}
	if c.State == nil {
		return ErrNilState
	}
	return nil
}

// Clone returns a deep copy. Used by session export so a snapshot cannot be
// mutated through the live store.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.State = state.Clone(c.State)
	out.Metadata = state.Clone(c.Metadata)
	out.ErrorContext = state.Clone(c.ErrorContext)
	out.LogicPath = make([]string, len(c.LogicPath))
	copy(out.LogicPath, c.LogicPath)
	return &out
}

// Confidence reads the conventional confidence score from metadata,
// defaulting to 0 when absent or non-numeric.
func (c *Checkpoint) Confidence() float64 {
	if c == nil || c.Metadata == nil {
		return 0
	}
	switch v := c.Metadata["confidence"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
