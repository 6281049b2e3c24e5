package checkpoint

import (
	"sort"
	"sync"
)

// DefaultMaxResident is the default resident-count limit before eviction.
const DefaultMaxResident = 1000

// Store owns all checkpoint records by id and enforces the resident-count
// eviction policy. Eviction is a pure memory-residency concern: it never
// touches branch sequences or logic-tree nodes, so an evicted id may remain
// referenced elsewhere and must be handled by callers as a dangling lookup.
type Store struct {
	mu    sync.RWMutex
	items map[string]*Checkpoint
	limit int
}

// NewStore creates a store with the given resident limit. A non-positive
// limit falls back to DefaultMaxResident.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultMaxResident
	}
	return &Store{
		items: make(map[string]*Checkpoint),
		limit: limit,
	}
}

// Insert adds a checkpoint and runs the eviction pass.
func (s *Store) Insert(cp *Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cp.ID] = cp
	s.evict()
}

// Get returns the checkpoint for id, or false if absent (never inserted,
// or evicted).
func (s *Store) Get(id string) (*Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.items[id]
	return cp, ok
}

// Len reports the resident checkpoint count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetStatus mutates the status of a resident checkpoint. Status is the only
// field that may change after creation. Missing ids are ignored: rollback
// bookkeeping must never fail on evicted entries.
func (s *Store) SetStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp, ok := s.items[id]; ok {
		cp.Status = status
	}
}

// All returns deep copies of every resident checkpoint, keyed by id.
func (s *Store) All() map[string]*Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Checkpoint, len(s.items))
	for id, cp := range s.items {
		out[id] = cp.Clone()
	}
	return out
}

// Restore replaces the store contents, used when importing a session.
func (s *Store) Restore(items map[string]*Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*Checkpoint, len(items))
	for id, cp := range items {
		s.items[id] = cp.Clone()
	}
}

// evict removes the oldest Committed/RolledBack checkpoints until the
// resident count is at or under the limit. Active and Recovered entries
// represent live or restorable heads and are never evicted. Caller holds
// the write lock.
func (s *Store) evict() {
	if len(s.items) <= s.limit {
		return
	}

	candidates := make([]*Checkpoint, 0, len(s.items))
	for _, cp := range s.items {
		if cp.Status == StatusCommitted || cp.Status == StatusRolledBack {
			candidates = append(candidates, cp)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.Before(candidates[j].Timestamp)
	})

	excess := len(s.items) - s.limit
	for i := 0; i < excess && i < len(candidates); i++ {
		delete(s.items, candidates[i].ID)
	}
}
