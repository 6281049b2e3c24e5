// Package memory provides an in-memory persistence sink: fast, ephemeral,
// intended for tests and single-process runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/checkpoint"
	"github.com/ekessh/agent-checkpoint-protocol/internal/core/session"
	"github.com/ekessh/agent-checkpoint-protocol/pkg/serialization"
)

// Sink implements session.Sink over serialized in-memory entries. Entries
// go through the serializer so the same encoding path is exercised as with
// durable sinks.
type Sink struct {
	mu          sync.RWMutex
	checkpoints map[string][]byte
	session     *session.Snapshot
	serializer  *serialization.Serializer
}

// NewSink creates an in-memory sink. A nil serializer uses the default.
func NewSink(serializer *serialization.Serializer) *Sink {
	if serializer == nil {
		serializer = serialization.Default()
	}
	return &Sink{
		checkpoints: make(map[string][]byte),
		serializer:  serializer,
	}
}

// Save persists a checkpoint.
func (s *Sink) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	data, err := s.serializer.Serialize(cp)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	s.mu.Lock()
	s.checkpoints[cp.ID] = data
	s.mu.Unlock()
	return nil
}

// Load retrieves a checkpoint by id.
func (s *Sink) Load(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.checkpoints[id]
	s.mu.RUnlock()
	if !ok {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	var cp checkpoint.Checkpoint
	if err := s.serializer.Deserialize(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	return &cp, nil
}

// List returns checkpoints matching the filter, newest first.
func (s *Sink) List(_ context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*checkpoint.Checkpoint
	for _, data := range s.checkpoints {
		var cp checkpoint.Checkpoint
		if err := s.serializer.Deserialize(data, &cp); err != nil {
			return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
		}
		if filter.Branch != "" && cp.BranchName != filter.Branch {
			continue
		}
		if filter.Since != nil && cp.Timestamp.Before(*filter.Since) {
			continue
		}
		results = append(results, &cp)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Delete removes a checkpoint by id.
func (s *Sink) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checkpoints[id]; !ok {
		return checkpoint.ErrCheckpointNotFound
	}
	delete(s.checkpoints, id)
	return nil
}

// SaveSession keeps the latest session snapshot.
func (s *Sink) SaveSession(_ context.Context, snap *session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = snap
	return nil
}

// LoadSession returns the latest saved snapshot, or nil.
func (s *Sink) LoadSession(_ context.Context) (*session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, nil
}
