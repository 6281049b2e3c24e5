// Package branch provides named, ordered chains of checkpoint ids and the
// table tracking them plus the currently selected branch.
package branch

import (
	"sync"
	"time"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// Main is the branch every controller starts on. It always exists.
const Main = "main"

// Branch is a named reasoning path. Checkpoints holds checkpoint ids in
// chain order; the prefix up to ForkCheckpointID is structurally shared
// with the parent branch (ids only, checkpoints are immutable and never
// cloned per branch).
//
// Invariant: read left to right, each id's checkpoint has ParentID equal
// to the previous id, except possibly the first.
type Branch struct {
	Name             string         `json:"name"`
	CreatedAt        time.Time      `json:"created_at"`
	ParentBranch     string         `json:"parent_branch,omitempty"`
	ForkCheckpointID string         `json:"fork_checkpoint_id,omitempty"`
	IsActive         bool           `json:"is_active"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Checkpoints      []string       `json:"checkpoints"`
}

// New creates a branch forked from parent at forkID.
func New(name, parent, forkID string) *Branch {
	return &Branch{
		Name:             name,
		CreatedAt:        time.Now().UTC(),
		ParentBranch:     parent,
		ForkCheckpointID: forkID,
		IsActive:         true,
		Metadata:         map[string]any{},
	}
}

// Tail returns the last checkpoint id, or "" when the branch is empty.
func (b *Branch) Tail() string {
	if len(b.Checkpoints) == 0 {
		return ""
	}
	return b.Checkpoints[len(b.Checkpoints)-1]
}

// IndexOf returns the position of id in the chain, or -1.
func (b *Branch) IndexOf(id string) int {
	for i, cid := range b.Checkpoints {
		if cid == id {
			return i
		}
	}
	return -1
}

// Clone deep-copies the branch record for session export.
func (b *Branch) Clone() *Branch {
	if b == nil {
		return nil
	}
	out := *b
	out.Metadata = state.Clone(b.Metadata)
	out.Checkpoints = make([]string, len(b.Checkpoints))
	copy(out.Checkpoints, b.Checkpoints)
	return &out
}

// Table owns all branches by name and the current-branch pointer. The
// pointer is always a key present in the table; branches are registered
// and switched, never deleted.
type Table struct {
	mu       sync.RWMutex
	branches map[string]*Branch
	current  string
}

// NewTable creates a table with the main branch selected.
func NewTable() *Table {
	t := &Table{
		branches: make(map[string]*Branch),
		current:  Main,
	}
	t.branches[Main] = New(Main, "", "")
	t.branches[Main].ParentBranch = ""
	return t
}

// Get returns the branch for name, or false.
func (t *Table) Get(name string) (*Branch, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.branches[name]
	return b, ok
}

// Current returns the currently selected branch.
func (t *Table) Current() *Branch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.branches[t.current]
}

// CurrentName returns the name of the currently selected branch.
func (t *Table) CurrentName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Switch moves the current-branch pointer. The target must exist.
func (t *Table) Switch(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.branches[name]; !ok {
		return ErrBranchNotFound
	}
	t.current = name
	return nil
}

// Register adds a branch to the table.
func (t *Table) Register(b *Branch) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.branches[b.Name] = b
}

// Names returns all branch names in no particular order.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.branches))
	for name := range t.branches {
		names = append(names, name)
	}
	return names
}

// Len reports the number of registered branches.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.branches)
}

// All returns deep copies of every branch, keyed by name.
func (t *Table) All() map[string]*Branch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*Branch, len(t.branches))
	for name, b := range t.branches {
		out[name] = b.Clone()
	}
	return out
}

// Restore replaces the table contents and pointer, used when importing a
// session. An unknown current name falls back to main.
func (t *Table) Restore(branches map[string]*Branch, current string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.branches = make(map[string]*Branch, len(branches))
	for name, b := range branches {
		t.branches[name] = b.Clone()
	}
	if _, ok := t.branches[Main]; !ok {
		t.branches[Main] = New(Main, "", "")
	}
	if _, ok := t.branches[current]; !ok {
		current = Main
	}
	t.current = current
}
