package controller

import (
	"sort"
	"time"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// HistoryEntry is one line of the reasoning timeline.
type HistoryEntry struct {
	ID        string         `json:"id"`
	Hash      string         `json:"hash,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
	Branch    string         `json:"branch,omitempty"`
	LogicPath []string       `json:"logic_path,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	StateKeys []string       `json:"state_keys,omitempty"`
	ParentID  string         `json:"parent_id,omitempty"`
}

// statusEvicted marks history entries whose checkpoint id remains on a
// branch chain but whose record was evicted from the store.
const statusEvicted = "evicted"

// History returns the branch's timeline, newest first, limited to the
// trailing limit entries. An empty branchName means the current branch; an
// unknown one yields an empty timeline. Evicted ids resolve to a
// placeholder entry rather than being dropped or crashing.
func (c *Controller) History(branchName string, limit int) []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if branchName == "" {
		branchName = c.branches.CurrentName()
	}
	br, ok := c.branches.Get(branchName)
	if !ok {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}

	ids := br.Checkpoints
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	entries := make([]HistoryEntry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		cp, ok := c.store.Get(ids[i])
		if !ok {
			entries = append(entries, HistoryEntry{ID: ids[i], Status: statusEvicted, Branch: branchName})
			continue
		}
		keys := make([]string, 0, len(cp.State))
		for k := range cp.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries = append(entries, HistoryEntry{
			ID:        cp.ID,
			Hash:      cp.Hash,
			Timestamp: cp.Timestamp,
			Status:    string(cp.Status),
			Branch:    cp.BranchName,
			LogicPath: append([]string(nil), cp.LogicPath...),
			Metadata:  state.Clone(cp.Metadata),
			StateKeys: keys,
			ParentID:  cp.ParentID,
		})
	}
	return entries
}
